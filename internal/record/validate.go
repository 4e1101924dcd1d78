package record

import (
	"fmt"
	"strings"

	"github.com/openlift/openlift/internal/nip101e"
)

// ValidationResult reports every rule a workout violates, not just the
// first. Validation never partially applies: a workout either passes
// all rules or the full violation list is surfaced.
type ValidationResult struct {
	Violations []string
}

// Valid reports whether the workout passed every rule.
func (r ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns a *ValidationError carrying the violations, or nil.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Violations: r.Violations}
}

// ValidationError is the structurally-invalid-workout error.
// Always recoverable locally: it is raised before any network or
// signing call.
type ValidationError struct {
	Violations []string
}

// Error joins all violations into one human-readable message.
func (e *ValidationError) Error() string {
	return "invalid workout: " + strings.Join(e.Violations, "; ")
}

var validWorkoutTypes = map[string]bool{
	TypeStrength: true, TypeCircuit: true, TypeEMOM: true, TypeAMRAP: true,
}

var validSetTypes = map[string]bool{
	SetWarmup: true, SetNormal: true, SetDrop: true, SetFailure: true,
}

// Validate checks every structural rule on a completed workout and
// reports all violations.
func Validate(w CompletedWorkout) ValidationResult {
	var v []string

	if w.WorkoutID == "" {
		v = append(v, "workout id is empty")
	}
	if w.Title == "" {
		v = append(v, "title is empty")
	}
	if !validWorkoutTypes[w.Type] {
		v = append(v, fmt.Sprintf("workout type %q is not one of strength/circuit/emom/amrap", w.Type))
	}
	if !w.EndTime.After(w.StartTime) {
		v = append(v, "end time is not after start time")
	}
	if len(w.Sets) == 0 {
		v = append(v, "workout has no completed sets")
	}

	for i, set := range w.Sets {
		if _, err := nip101e.ParseRef(set.ExerciseRef.String()); err != nil {
			v = append(v, fmt.Sprintf("set %d: exercise ref %q does not match kind:pubkey:d-tag", i+1, set.ExerciseRef.String()))
		}
		if set.SetNumber < 1 {
			v = append(v, fmt.Sprintf("set %d: set number %d is not positive", i+1, set.SetNumber))
		}
		if set.Reps <= 0 {
			v = append(v, fmt.Sprintf("set %d: reps %d is not positive", i+1, set.Reps))
		}
		if set.Weight < 0 {
			v = append(v, fmt.Sprintf("set %d: weight %g is negative", i+1, set.Weight))
		}
		if set.RPE != 0 && (set.RPE < 1 || set.RPE > 10) {
			v = append(v, fmt.Sprintf("set %d: rpe %g is outside [1,10]", i+1, set.RPE))
		}
		if !validSetTypes[set.SetType] {
			v = append(v, fmt.Sprintf("set %d: set type %q is not one of warmup/normal/drop/failure", i+1, set.SetType))
		}
	}

	if w.TemplateRef != nil {
		if w.TemplateRef.Kind != nip101e.KindWorkoutTemplate {
			v = append(v, fmt.Sprintf("template ref kind %d is not %d", w.TemplateRef.Kind, nip101e.KindWorkoutTemplate))
		}
		if _, err := nip101e.ParseRef(w.TemplateRef.String()); err != nil {
			v = append(v, fmt.Sprintf("template ref %q does not match 33402:<64-hex>:<d-tag>", w.TemplateRef.String()))
		}
	}

	return ValidationResult{Violations: v}
}
