// Package record builds publishable workout record events from
// completed-workout state.
//
// The generator is stateless and never signs: ownership of the
// CompletedWorkout transfers here by value when a session finishes, and
// the output event goes to the publish actor for signing.
package record

import (
	"time"

	"github.com/openlift/openlift/internal/nip101e"
)

// Workout types accepted by the validator.
const (
	TypeStrength = "strength"
	TypeCircuit  = "circuit"
	TypeEMOM     = "emom"
	TypeAMRAP    = "amrap"
)

// Set types accepted by the validator.
const (
	SetWarmup  = "warmup"
	SetNormal  = "normal"
	SetDrop    = "drop"
	SetFailure = "failure"
)

// CompletedSet is one recorded set.
//
// SetNumber is a first-class required field, unique per exercise ref
// within a workout, assigned by the recorder - never derived from array
// position. Two sets with identical weight/reps/rpe/setType are
// otherwise indistinguishable and would be silently collapsed by any
// consumer that deduplicates on tag content.
type CompletedSet struct {
	ExerciseRef nip101e.Ref `json:"exercise_ref"`
	SetNumber   int         `json:"set_number"`
	Reps        int         `json:"reps"`
	Weight      float64     `json:"weight"`
	RPE         float64     `json:"rpe,omitempty"` // 0 means not recorded; valid range is [1,10]
	SetType     string      `json:"set_type"`
	CompletedAt time.Time   `json:"completed_at"`
}

// CompletedWorkout is the mutable aggregate a session actor accumulates.
// It is exclusively owned by the active session until the workout
// finishes, at which point it transfers by value to the generator.
type CompletedWorkout struct {
	WorkoutID   string         `json:"workout_id"`
	Title       string         `json:"title"`
	Type        string         `json:"type"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Sets        []CompletedSet `json:"sets"`
	TemplateRef *nip101e.Ref   `json:"template_ref,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}
