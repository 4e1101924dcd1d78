package nip101e

import (
	"fmt"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseEvent(tags nostr.Tags) *nostr.Event {
	return &nostr.Event{
		ID:        "ex-event-1",
		Kind:      KindExercise,
		PubKey:    testPubkey,
		CreatedAt: nostr.Timestamp(1700000000),
		Content:   "Barbell back squat.",
		Tags:      tags,
	}
}

func validExerciseTags() nostr.Tags {
	return nostr.Tags{
		{"d", "squat-barbell"},
		{"title", "Barbell Squat"},
		{"format", "weight", "reps", "rpe", "set_type"},
		{"format_units", "kg", "count", "0-10", "warmup|normal|drop|failure"},
		{"equipment", "barbell"},
		{"difficulty", "intermediate"},
		{"t", "legs"},
		{"t", "quads"},
		{"t", "compound"},
	}
}

func TestParser_Exercise(t *testing.T) {
	p := NewParser()
	ex, err := p.Exercise(exerciseEvent(validExerciseTags()))
	require.NoError(t, err)

	assert.Equal(t, "squat-barbell", ex.ID)
	assert.Equal(t, "Barbell Squat", ex.Name)
	assert.Equal(t, "Barbell back squat.", ex.Description)
	assert.Equal(t, "barbell", ex.Equipment)
	assert.Equal(t, "intermediate", ex.Difficulty)
	assert.Equal(t, []string{"weight", "reps", "rpe", "set_type"}, ex.Format)
	assert.Equal(t, []string{"kg", "count", "0-10", "warmup|normal|drop|failure"}, ex.FormatUnits)

	// Known muscle groups are lifted out of the hashtags; unknown tags stay
	// hashtags only.
	assert.Equal(t, []string{"legs", "quads"}, ex.MuscleGroups)
	assert.Equal(t, []string{"legs", "quads", "compound"}, ex.Hashtags)

	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ex.CreatedAt.UTC())
	assert.Equal(t, Ref{Kind: KindExercise, PubKey: testPubkey, DTag: "squat-barbell"}, ex.Ref())
}

func TestParser_Exercise_Rejections(t *testing.T) {
	drop := func(name string) nostr.Tags {
		var tags nostr.Tags
		for _, tag := range validExerciseTags() {
			if tag[0] != name {
				tags = append(tags, tag)
			}
		}
		return tags
	}

	tests := []struct {
		name string
		tags nostr.Tags
	}{
		{"missing d", drop("d")},
		{"missing title", drop("title")},
		{"missing format", drop("format")},
		{"missing format_units", drop("format_units")},
		{"missing equipment", drop("equipment")},
		{"format arrays of different length", nostr.Tags{
			{"d", "squat"},
			{"title", "Squat"},
			{"format", "weight", "reps"},
			{"format_units", "kg"},
			{"equipment", "barbell"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Exercise(exerciseEvent(tt.tags))
			assert.Error(t, err)
		})
	}
}

func TestParser_Exercise_WrongKind(t *testing.T) {
	ev := exerciseEvent(validExerciseTags())
	ev.Kind = KindWorkoutTemplate
	_, err := NewParser().Exercise(ev)
	assert.Error(t, err)
}

func templateEvent(tags nostr.Tags) *nostr.Event {
	return &nostr.Event{
		ID:        "tpl-event-1",
		Kind:      KindWorkoutTemplate,
		PubKey:    testPubkey,
		CreatedAt: nostr.Timestamp(1700000100),
		Content:   "Lower body strength day.",
		Tags:      tags,
	}
}

func TestParser_Template(t *testing.T) {
	squatRef := "33401:" + testPubkey + ":squat-barbell"
	tags := nostr.Tags{
		{"d", "legs-day"},
		{"title", "Legs Day"},
		{"type", "strength"},
		{"rounds", "1"},
		{"duration", "3600"},
		{"rest_between_sets", "180"},
		{"exercise", squatRef, "wss://relay.damus.io", "100", "5", "8", "normal", "1"},
		{"exercise", squatRef, "wss://relay.damus.io", "100", "5", "8", "normal", "2"},
		{"exercise", squatRef, "wss://relay.damus.io", "100", "5", "8", "normal", "3"},
	}

	tpl, err := NewParser().Template(templateEvent(tags))
	require.NoError(t, err)

	assert.Equal(t, "legs-day", tpl.ID)
	assert.Equal(t, "strength", tpl.Type)
	assert.Equal(t, time.Hour, tpl.EstimatedDuration)
	assert.Equal(t, 3*time.Minute, tpl.RestBetweenSets)

	// Three prescribed sets of one exercise survive as three entries,
	// distinguished only by their trailing set numbers.
	require.Len(t, tpl.Sets, 3)
	for i, set := range tpl.Sets {
		assert.Equal(t, i+1, set.SetNumber)
		assert.Equal(t, 100.0, set.PrescribedWeight)
		assert.Equal(t, 5, set.PrescribedReps)
		assert.Equal(t, 8.0, set.PrescribedRPE)
		assert.Equal(t, "normal", set.PrescribedSetType)
	}

	// Distinct refs, not distinct sets.
	refs := tpl.ExerciseRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, "squat-barbell", refs[0].DTag)
}

func TestParser_Template_Rejections(t *testing.T) {
	squatRef := "33401:" + testPubkey + ":squat-barbell"
	base := nostr.Tags{
		{"d", "legs-day"},
		{"title", "Legs Day"},
		{"type", "strength"},
	}

	tests := []struct {
		name string
		tag  nostr.Tag
	}{
		{"too few elements", nostr.Tag{"exercise", squatRef, ""}},
		{"set number zero", nostr.Tag{"exercise", squatRef, "", "100", "5", "8", "normal", "0"}},
		{"set number non-numeric", nostr.Tag{"exercise", squatRef, "", "100", "5", "8", "normal", "x"}},
		{"ref of wrong kind", nostr.Tag{"exercise", "33402:" + testPubkey + ":legs-day", "", "100", "5", "8", "normal", "1"}},
		{"relaxed pubkey ref", nostr.Tag{"exercise", "33401:npub1xyz:squat", "", "100", "5", "8", "normal", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Template(templateEvent(append(base, tt.tag)))
			assert.Error(t, err)
		})
	}
}

func TestParser_Collection(t *testing.T) {
	tags := nostr.Tags{
		{"d", "powerlifting"},
		{"title", "Powerlifting Library"},
		{"a", "33401:" + testPubkey + ":squat-barbell"},
		{"a", "33402:" + testPubkey + ":legs-day"},
	}
	ev := &nostr.Event{
		ID:        "col-event-1",
		Kind:      KindCollection,
		PubKey:    testPubkey,
		CreatedAt: nostr.Timestamp(1700000200),
		Tags:      tags,
	}

	col, err := NewParser().Collection(ev)
	require.NoError(t, err)
	assert.Equal(t, "Powerlifting Library", col.Name)
	require.Len(t, col.ContentRefs, 2)
	assert.Equal(t, KindExercise, col.ContentRefs[0].Kind)
	assert.Equal(t, KindWorkoutTemplate, col.ContentRefs[1].Kind)
}

func TestParser_Collection_MalformedRefRejectsEvent(t *testing.T) {
	ev := &nostr.Event{
		ID:     "col-event-2",
		Kind:   KindCollection,
		PubKey: testPubkey,
		Tags: nostr.Tags{
			{"d", "broken"},
			{"a", "33401:" + testPubkey + ":squat-barbell"},
			{"a", "not-a-ref"},
		},
	}
	_, err := NewParser().Collection(ev)
	assert.Error(t, err)
}

func TestParser_Record(t *testing.T) {
	squatRef := "33401:" + testPubkey + ":squat-barbell"
	ev := &nostr.Event{
		ID:        "rec-event-1",
		Kind:      KindWorkoutRecord,
		PubKey:    testPubkey,
		CreatedAt: nostr.Timestamp(1700004000),
		Content:   "Legs Day - 2 sets",
		Tags: nostr.Tags{
			{"d", "workout-abc"},
			{"title", "Legs Day"},
			{"type", "strength"},
			{"start", "1700000000"},
			{"end", "1700003600"},
			{"completed", "true"},
			{"template", "33402:" + testPubkey + ":legs-day", ""},
			{"exercise", squatRef, "", "100", "5", "8", "normal", "1"},
			{"exercise", squatRef, "", "100", "5", "", "normal", "2"},
		},
	}

	rec, err := NewParser().Record(ev)
	require.NoError(t, err)

	assert.Equal(t, "workout-abc", rec.ID)
	assert.True(t, rec.Completed)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.Start)
	require.NotNil(t, rec.TemplateRef)
	assert.Equal(t, "legs-day", rec.TemplateRef.DTag)

	require.Len(t, rec.Sets, 2)
	assert.Equal(t, 1, rec.Sets[0].SetNumber)
	assert.Equal(t, 8.0, rec.Sets[0].RPE)
	assert.Equal(t, 2, rec.Sets[1].SetNumber)
	assert.Zero(t, rec.Sets[1].RPE) // empty rpe position decodes as unrecorded
}

func TestParser_Record_WrongTagArity(t *testing.T) {
	ev := &nostr.Event{
		ID:     "rec-event-2",
		Kind:   KindWorkoutRecord,
		PubKey: testPubkey,
		Tags: nostr.Tags{
			{"d", "workout-abc"},
			{"title", "Legs Day"},
			{"type", "strength"},
			{"start", "1700000000"},
			{"end", "1700003600"},
			{"completed", "true"},
			// Missing the trailing set number.
			{"exercise", "33401:" + testPubkey + ":squat-barbell", "", "100", "5", "8", "normal"},
		},
	}
	_, err := NewParser().Record(ev)
	assert.Error(t, err)
}

func TestParser_MemoizesByEventID(t *testing.T) {
	p := NewParser()
	ev := exerciseEvent(validExerciseTags())

	first, err := p.Exercise(ev)
	require.NoError(t, err)

	// Mutating the event after a successful decode does not change the
	// memoized result: signed events are immutable in practice and the
	// id is the cache key.
	ev.Tags = nostr.Tags{{"d", "other"}}
	second, err := p.Exercise(ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParser_MemoDropsWholesaleAtLimit(t *testing.T) {
	p := NewParser()
	for i := 0; i < memoLimit+10; i++ {
		ev := exerciseEvent(validExerciseTags())
		ev.ID = fmt.Sprintf("ex-%05d", i)
		_, err := p.Exercise(ev)
		require.NoError(t, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.LessOrEqual(t, len(p.memo), memoLimit)
}
