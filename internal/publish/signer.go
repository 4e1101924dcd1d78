package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// ErrNoSigner indicates no signing capability is available. Fatal for
// the current publish attempt and never retried here: the caller
// redirects to authentication instead of prompting in a loop.
var ErrNoSigner = errors.New("no signer available")

// Signer produces signed events.
//
// Sign must be assumed to take seconds, not milliseconds - remote
// signers prompt a human - so callers pass a context and must not hold
// locks across the call.
type Signer interface {
	PubKey() string
	Sign(ctx context.Context, ev *nostr.Event) error
}

// LocalSigner signs with an in-process secret key.
type LocalSigner struct {
	secret string
	pubkey string
}

// NewLocalSigner creates a signer from a 64-hex secret key.
func NewLocalSigner(secretHex string) (*LocalSigner, error) {
	pub, err := nostr.GetPublicKey(secretHex)
	if err != nil {
		return nil, fmt.Errorf("local signer: derive pubkey: %w", err)
	}
	return &LocalSigner{secret: secretHex, pubkey: pub}, nil
}

// PubKey returns the signer's public key.
func (s *LocalSigner) PubKey() string {
	return s.pubkey
}

// Sign computes the event id and signature in place.
func (s *LocalSigner) Sign(_ context.Context, ev *nostr.Event) error {
	if err := ev.Sign(s.secret); err != nil {
		return fmt.Errorf("local signer: %w", err)
	}
	return nil
}
