package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/openlift/openlift/internal/nip101e"
)

// Generator builds signable kind-1301 events from completed workouts.
//
// Generation is deterministic: the same workout always produces the
// same tags and content (created_at comes from the injected clock).
// The generator never mutates its input and never signs.
type Generator struct {
	// RelayURL fills the relay hint position of exercise and template
	// tags. Empty is valid per the wire format.
	RelayURL string

	// Now supplies created_at. Defaults to time.Now; tests inject a
	// fixed clock for reproducible events.
	Now func() time.Time
}

// NewGenerator creates a Generator with the given relay hint.
func NewGenerator(relayURL string) *Generator {
	return &Generator{RelayURL: relayURL, Now: time.Now}
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Generate validates the workout and constructs its workout record
// event for the given author. The returned event is unsigned.
//
// Every completed set emits one exercise tag with the set number in the
// trailing position: [ref, relayUrl, weight, reps, rpe, setType,
// setNumber]. The trailing setNumber exists solely to guarantee
// tag-array uniqueness when two sets share identical recorded values.
// Conforming Nostr clients deduplicate array-of-arrays tag sets, so
// omitting it silently drops repeated identical sets.
func (g *Generator) Generate(w CompletedWorkout, authorPubkey string) (*nostr.Event, error) {
	if err := Validate(w).Err(); err != nil {
		return nil, fmt.Errorf("generate record: %w", err)
	}
	if !nip101e.IsHexPubkey(authorPubkey) {
		return nil, fmt.Errorf("generate record: author pubkey is not 64 lowercase hex chars")
	}

	tags := nostr.Tags{
		{"d", w.WorkoutID},
		{"title", w.Title},
		{"type", w.Type},
		{"start", strconv.FormatInt(w.StartTime.Unix(), 10)},
		{"end", strconv.FormatInt(w.EndTime.Unix(), 10)},
		{"completed", "true"},
	}

	if w.TemplateRef != nil {
		tags = append(tags, nostr.Tag{"template", w.TemplateRef.String(), g.RelayURL})
	}

	for _, set := range w.Sets {
		tags = append(tags, nostr.Tag{
			"exercise",
			set.ExerciseRef.String(),
			g.RelayURL,
			formatFloat(set.Weight),
			strconv.Itoa(set.Reps),
			formatRPE(set.RPE),
			set.SetType,
			strconv.Itoa(set.SetNumber),
		})
	}

	return &nostr.Event{
		Kind:      nip101e.KindWorkoutRecord,
		PubKey:    authorPubkey,
		CreatedAt: nostr.Timestamp(g.now().Unix()),
		Tags:      tags,
		Content:   summarize(w),
	}, nil
}

// summarize renders the human-readable workout summary. Cosmetic, but
// deterministic for a given input to support snapshot tests: exercises
// appear in first-completion order.
func summarize(w CompletedWorkout) string {
	type group struct {
		ref  nip101e.Ref
		sets []CompletedSet
	}
	var groups []*group
	byKey := make(map[string]*group)
	for _, set := range w.Sets {
		key := set.ExerciseRef.Key()
		grp, ok := byKey[key]
		if !ok {
			grp = &group{ref: set.ExerciseRef}
			byKey[key] = grp
			groups = append(groups, grp)
		}
		grp.sets = append(grp.sets, set)
	}

	var b strings.Builder
	duration := w.EndTime.Sub(w.StartTime).Round(time.Minute)
	fmt.Fprintf(&b, "%s - %d sets across %d exercises in %s", w.Title, len(w.Sets), len(groups), duration)

	for _, grp := range groups {
		fmt.Fprintf(&b, "\n%s: %dx%s @ %skg", grp.ref.DTag, len(grp.sets), repRange(grp.sets), weightRange(grp.sets))
	}

	if w.Notes != "" {
		b.WriteString("\n\n")
		b.WriteString(w.Notes)
	}

	return b.String()
}

func repRange(sets []CompletedSet) string {
	lo, hi := sets[0].Reps, sets[0].Reps
	for _, s := range sets[1:] {
		if s.Reps < lo {
			lo = s.Reps
		}
		if s.Reps > hi {
			hi = s.Reps
		}
	}
	if lo == hi {
		return strconv.Itoa(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

func weightRange(sets []CompletedSet) string {
	lo, hi := sets[0].Weight, sets[0].Weight
	for _, s := range sets[1:] {
		if s.Weight < lo {
			lo = s.Weight
		}
		if s.Weight > hi {
			hi = s.Weight
		}
	}
	if lo == hi {
		return formatFloat(lo)
	}
	return formatFloat(lo) + "-" + formatFloat(hi)
}

// formatFloat renders without trailing zeros: 60 not 60.000000.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatRPE renders an unrecorded RPE as the empty string, keeping the
// tag position intact.
func formatRPE(rpe float64) string {
	if rpe == 0 {
		return ""
	}
	return strconv.FormatFloat(rpe, 'f', -1, 64)
}
