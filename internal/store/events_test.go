package store

import (
	"context"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthor = strings.Repeat("ab", 32)

func exerciseEvent(id, dTag string, createdAt int64) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		Kind:      33401,
		PubKey:    testAuthor,
		CreatedAt: nostr.Timestamp(createdAt),
		Content:   "exercise",
		Tags:      nostr.Tags{{"d", dTag}, {"title", "Squat"}},
		Sig:       "sig-" + id,
	}
}

func TestSaveEvent_AddressableNewestWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	kept, err := s.SaveEvent(ctx, exerciseEvent("ev-old", "squat", 100))
	require.NoError(t, err)
	assert.True(t, kept)

	// Newer version of the same (kind, pubkey, d-tag) replaces.
	kept, err = s.SaveEvent(ctx, exerciseEvent("ev-new", "squat", 200))
	require.NoError(t, err)
	assert.True(t, kept)

	// Stale version arriving late is dropped.
	kept, err = s.SaveEvent(ctx, exerciseEvent("ev-stale", "squat", 150))
	require.NoError(t, err)
	assert.False(t, kept)

	events, err := s.QueryEvents(ctx, nostr.Filter{Kinds: []int{33401}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-new", events[0].ID)
}

func TestSaveEvent_SameAgeKeepsCached(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveEvent(ctx, exerciseEvent("ev-a", "squat", 100))
	require.NoError(t, err)

	kept, err := s.SaveEvent(ctx, exerciseEvent("ev-b", "squat", 100))
	require.NoError(t, err)
	assert.False(t, kept)
}

func TestSaveEvent_NonAddressableIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &nostr.Event{
		ID:        "rec-1",
		Kind:      1301,
		PubKey:    testAuthor,
		CreatedAt: 300,
		Tags:      nostr.Tags{{"d", "workout-1"}},
	}
	_, err := s.SaveEvent(ctx, rec)
	require.NoError(t, err)
	_, err = s.SaveEvent(ctx, rec)
	require.NoError(t, err)

	events, err := s.QueryEvents(ctx, nostr.Filter{IDs: []string{"rec-1"}})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestQueryEvents_FilterDimensions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	other := strings.Repeat("cd", 32)
	_, err := s.SaveEvent(ctx, exerciseEvent("ev-squat", "squat", 100))
	require.NoError(t, err)
	_, err = s.SaveEvent(ctx, exerciseEvent("ev-bench", "bench", 200))
	require.NoError(t, err)
	otherEv := exerciseEvent("ev-other", "squat", 300)
	otherEv.PubKey = other
	_, err = s.SaveEvent(ctx, otherEv)
	require.NoError(t, err)

	t.Run("by author", func(t *testing.T) {
		events, err := s.QueryEvents(ctx, nostr.Filter{Authors: []string{other}})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "ev-other", events[0].ID)
	})

	t.Run("by d tag", func(t *testing.T) {
		events, err := s.QueryEvents(ctx, nostr.Filter{
			Kinds: []int{33401},
			Tags:  nostr.TagMap{"d": []string{"bench"}},
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "ev-bench", events[0].ID)
	})

	t.Run("since until", func(t *testing.T) {
		since := nostr.Timestamp(150)
		until := nostr.Timestamp(250)
		events, err := s.QueryEvents(ctx, nostr.Filter{Since: &since, Until: &until})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "ev-bench", events[0].ID)
	})

	t.Run("ordered newest first", func(t *testing.T) {
		events, err := s.QueryEvents(ctx, nostr.Filter{Kinds: []int{33401}})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "ev-other", events[0].ID)
		assert.Equal(t, "ev-bench", events[1].ID)
		assert.Equal(t, "ev-squat", events[2].ID)
	})

	t.Run("no match is empty not nil", func(t *testing.T) {
		events, err := s.QueryEvents(ctx, nostr.Filter{Kinds: []int{9999}})
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})
}

func TestQueryEvents_MultipleFiltersUnionDedupe(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveEvent(ctx, exerciseEvent("ev-squat", "squat", 100))
	require.NoError(t, err)

	events, err := s.QueryEvents(ctx,
		nostr.Filter{Kinds: []int{33401}},
		nostr.Filter{Authors: []string{testAuthor}},
	)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestQueryEvents_RoundTripsTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := exerciseEvent("ev-tags", "squat", 100)
	ev.Tags = append(ev.Tags, nostr.Tag{"exercise", "33401:" + testAuthor + ":squat", "", "100", "5", "8", "normal", "1"})
	_, err := s.SaveEvent(ctx, ev)
	require.NoError(t, err)

	events, err := s.QueryEvents(ctx, nostr.Filter{IDs: []string{"ev-tags"}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.Tags, events[0].Tags)
	assert.Equal(t, ev.Sig, events[0].Sig)
}
