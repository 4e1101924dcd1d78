package testutil

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/openlift/openlift/internal/nip101e"
)

// Key is a deterministic test keypair.
type Key struct {
	Secret string
	Public string
}

// NewKey derives a deterministic keypair from a single seed byte, so
// fixtures and golden files are stable across runs.
func NewKey(t testing.TB, seed byte) Key {
	t.Helper()
	secret := strings.Repeat(byteHex(seed), 32)
	pub, err := nostr.GetPublicKey(secret)
	require.NoError(t, err)
	return Key{Secret: secret, Public: pub}
}

func byteHex(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

// sign signs in place and fails the test on error.
func sign(t testing.TB, key Key, ev *nostr.Event) *nostr.Event {
	t.Helper()
	require.NoError(t, ev.Sign(key.Secret))
	return ev
}

// SignedExercise builds a minimal valid kind-33401 event carrying the
// standard strength format.
func SignedExercise(t testing.TB, key Key, dTag, name string, createdAt time.Time) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{
		Kind:      nip101e.KindExercise,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Content:   "Test exercise: " + name,
		Tags: nostr.Tags{
			{"d", dTag},
			{"title", name},
			{"format", "weight", "reps", "rpe", "set_type"},
			{"format_units", "kg", "count", "0-10", "warmup|normal|drop|failure"},
			{"equipment", "barbell"},
			{"t", "legs"},
		},
	}
	return sign(t, key, ev)
}

// PrescribedSet is one exercise tag of a template fixture.
type PrescribedSet struct {
	Ref       nip101e.Ref
	Weight    string
	Reps      string
	RPE       string
	SetType   string
	SetNumber int
}

// SignedTemplate builds a valid kind-33402 event from prescriptions.
func SignedTemplate(t testing.TB, key Key, dTag, name, workoutType string, sets []PrescribedSet, createdAt time.Time) *nostr.Event {
	t.Helper()
	tags := nostr.Tags{
		{"d", dTag},
		{"title", name},
		{"type", workoutType},
	}
	for _, s := range sets {
		tags = append(tags, nostr.Tag{
			"exercise", s.Ref.String(), "",
			s.Weight, s.Reps, s.RPE, s.SetType,
			strconv.Itoa(s.SetNumber),
		})
	}
	ev := &nostr.Event{
		Kind:      nip101e.KindWorkoutTemplate,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Content:   "Test template: " + name,
		Tags:      tags,
	}
	return sign(t, key, ev)
}

// SignedCollection builds a valid kind-30003 event referencing refs.
func SignedCollection(t testing.TB, key Key, dTag, name string, refs []nip101e.Ref, createdAt time.Time) *nostr.Event {
	t.Helper()
	tags := nostr.Tags{
		{"d", dTag},
		{"title", name},
	}
	for _, ref := range refs {
		tags = append(tags, nostr.Tag{"a", ref.String()})
	}
	ev := &nostr.Event{
		Kind:      nip101e.KindCollection,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Tags:      tags,
	}
	return sign(t, key, ev)
}
