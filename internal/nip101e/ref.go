package nip101e

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Event kinds defined by NIP-101e, plus the NIP-51 collection kind used
// for library grouping.
const (
	KindWorkoutRecord   = 1301
	KindCollection      = 30003
	KindExercise        = 33401
	KindWorkoutTemplate = 33402
)

// Ref is an addressable event reference: the (kind, pubkey, d-tag) triple
// that identifies a replaceable event. It is the universal foreign key
// between exercises, templates, collections, and records.
//
// Refs are immutable once constructed. Equality is structural; use Key()
// when comparing refs that may differ only in Unicode normalization of
// the d-tag.
type Ref struct {
	Kind   int
	PubKey string
	DTag   string
}

// ParseRef parses the canonical "kind:pubkey:d-tag" serialization.
//
// The pubkey must be exactly 64 lowercase hex characters. Relaxed pubkey
// forms are rejected: a ref that fails this check cannot address an event
// on any conforming relay, so accepting it only defers the failure.
//
// The d-tag may itself contain ':' characters, so the string is split on
// the first two separators only.
func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Ref{}, fmt.Errorf("parse ref %q: want kind:pubkey:d-tag", s)
	}

	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return Ref{}, fmt.Errorf("parse ref %q: bad kind: %w", s, err)
	}
	if !isHex64(parts[1]) {
		return Ref{}, fmt.Errorf("parse ref %q: pubkey is not 64 lowercase hex chars", s)
	}
	if parts[2] == "" {
		return Ref{}, fmt.Errorf("parse ref %q: empty d-tag", s)
	}

	return Ref{Kind: kind, PubKey: parts[1], DTag: parts[2]}, nil
}

// String returns the canonical "kind:pubkey:d-tag" form.
func (r Ref) String() string {
	return strconv.Itoa(r.Kind) + ":" + r.PubKey + ":" + r.DTag
}

// Key returns a comparison key with the d-tag NFC-normalized.
// Two refs that render identically must resolve to the same entity even
// when their byte representations differ.
func (r Ref) Key() string {
	return strconv.Itoa(r.Kind) + ":" + r.PubKey + ":" + norm.NFC.String(r.DTag)
}

// IsZero reports whether the ref is the zero value.
func (r Ref) IsZero() bool {
	return r.Kind == 0 && r.PubKey == "" && r.DTag == ""
}

// MarshalJSON serializes the ref in its canonical string form.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses the canonical string form, strictly.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// IsHexPubkey reports whether s is a well-formed pubkey: exactly 64
// lowercase hex characters.
func IsHexPubkey(s string) bool {
	return isHex64(s)
}

// isHex64 reports whether s is exactly 64 lowercase hex characters.
func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
