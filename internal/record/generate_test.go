package record

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlift/openlift/internal/nip101e"
)

func benchRef() nip101e.Ref {
	return nip101e.Ref{Kind: nip101e.KindExercise, PubKey: testAuthor, DTag: "bench-press"}
}

// fullWorkout is the canonical snapshot input: repeated identical sets,
// a set with no recorded RPE, fractional weight, a template ref, notes.
func fullWorkout() CompletedWorkout {
	start := time.Unix(1700000000, 0).UTC()
	tplRef := nip101e.Ref{Kind: nip101e.KindWorkoutTemplate, PubKey: testAuthor, DTag: "legs-day"}
	return CompletedWorkout{
		WorkoutID:   "workout-0001",
		Title:       "Legs Day",
		Type:        TypeStrength,
		StartTime:   start,
		EndTime:     start.Add(63 * time.Minute),
		TemplateRef: &tplRef,
		Notes:       "Felt strong.",
		Sets: []CompletedSet{
			{ExerciseRef: squatRef(), SetNumber: 1, Reps: 5, Weight: 100, RPE: 8, SetType: SetNormal},
			{ExerciseRef: squatRef(), SetNumber: 2, Reps: 5, Weight: 100, RPE: 8, SetType: SetNormal},
			{ExerciseRef: squatRef(), SetNumber: 3, Reps: 3, Weight: 102.5, RPE: 9.5, SetType: SetNormal},
			{ExerciseRef: benchRef(), SetNumber: 1, Reps: 8, Weight: 80, SetType: SetNormal},
			{ExerciseRef: benchRef(), SetNumber: 2, Reps: 6, Weight: 80, RPE: 8, SetType: SetNormal},
		},
	}
}

func testGenerator() *Generator {
	g := NewGenerator("wss://relay.damus.io")
	g.Now = func() time.Time { return time.Unix(1700003790, 0).UTC() }
	return g
}

func TestGenerate_IdenticalSetsStayDistinct(t *testing.T) {
	w := fullWorkout()
	ev, err := testGenerator().Generate(w, testAuthor)
	require.NoError(t, err)

	var exerciseTags []string
	for _, tag := range ev.Tags {
		if tag[0] == "exercise" {
			exerciseTags = append(exerciseTags, strings.Join(tag, "|"))
		}
	}

	// One tag per completed set. Sets 1 and 2 of the squat record
	// identical values and differ only in the trailing set number; if
	// that position were dropped, a deduplicating consumer would
	// collapse them and the workout would lose a set.
	require.Len(t, exerciseTags, len(w.Sets))
	seen := make(map[string]bool)
	for _, tag := range exerciseTags {
		assert.False(t, seen[tag], "duplicate exercise tag %q", tag)
		seen[tag] = true
	}
}

func TestGenerate_SetNumberIsTrailingElement(t *testing.T) {
	ev, err := testGenerator().Generate(fullWorkout(), testAuthor)
	require.NoError(t, err)

	n := 0
	for _, tag := range ev.Tags {
		if tag[0] != "exercise" {
			continue
		}
		require.Len(t, tag, 8)
		assert.Equal(t, fmt.Sprint(fullWorkout().Sets[n].SetNumber), tag[7])
		n++
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := testGenerator()
	first, err := g.Generate(fullWorkout(), testAuthor)
	require.NoError(t, err)
	second, err := g.Generate(fullWorkout(), testAuthor)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerate_Unsigned(t *testing.T) {
	ev, err := testGenerator().Generate(fullWorkout(), testAuthor)
	require.NoError(t, err)
	assert.Empty(t, ev.Sig)
	assert.Empty(t, ev.ID)
	assert.Equal(t, nip101e.KindWorkoutRecord, ev.Kind)
	assert.Equal(t, testAuthor, ev.PubKey)
}

func TestGenerate_RejectsInvalidWorkout(t *testing.T) {
	w := fullWorkout()
	w.Sets = nil
	_, err := testGenerator().Generate(w, testAuthor)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGenerate_RejectsRelaxedAuthorPubkey(t *testing.T) {
	_, err := testGenerator().Generate(fullWorkout(), "npub1xyz")
	assert.Error(t, err)
}

func TestGenerate_NoTemplateTagWithoutRef(t *testing.T) {
	w := fullWorkout()
	w.TemplateRef = nil
	ev, err := testGenerator().Generate(w, testAuthor)
	require.NoError(t, err)
	for _, tag := range ev.Tags {
		assert.NotEqual(t, "template", tag[0])
	}
}

func TestGenerate_Snapshot(t *testing.T) {
	ev, err := testGenerator().Generate(fullWorkout(), testAuthor)
	require.NoError(t, err)

	var b strings.Builder
	fmt.Fprintf(&b, "kind %d\n", ev.Kind)
	fmt.Fprintf(&b, "pubkey %s\n", ev.PubKey)
	fmt.Fprintf(&b, "created_at %d\n", ev.CreatedAt)
	for _, tag := range ev.Tags {
		fmt.Fprintf(&b, "tag %s\n", strings.Join(tag, "|"))
	}
	fmt.Fprintf(&b, "content\n%s\n", ev.Content)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "workout_record", []byte(b.String()))
}
