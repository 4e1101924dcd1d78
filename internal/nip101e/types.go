package nip101e

import "time"

// Exercise is a parsed kind-33401 exercise template.
//
// Format and FormatUnits are parallel arrays carrying the positional
// meaning of per-set parameters (e.g. "weight" in "kg"). This schema
// travels in the data, not in code: consumers interpret set parameters
// by position according to the exercise they reference.
type Exercise struct {
	ID           string // d-tag
	Name         string
	Description  string
	Equipment    string
	Difficulty   string
	MuscleGroups []string
	Format       []string
	FormatUnits  []string
	Hashtags     []string
	AuthorPubkey string
	CreatedAt    time.Time
	EventID      string
	RawTags      [][]string
}

// Ref returns the addressable reference for this exercise.
func (e Exercise) Ref() Ref {
	return Ref{Kind: KindExercise, PubKey: e.AuthorPubkey, DTag: e.ID}
}

// TemplateSet is one prescribed set inside a workout template.
//
// SetNumber distinguishes repeated prescriptions of the same exercise:
// a template may prescribe three otherwise-identical sets of one
// exercise, and SetNumber is what keeps them apart.
type TemplateSet struct {
	ExerciseRef       Ref
	RelayURL          string
	Params            []string // raw positional params as published
	PrescribedWeight  float64
	PrescribedReps    int
	PrescribedRPE     float64
	PrescribedSetType string
	SetNumber         int
}

// WorkoutTemplate is a parsed kind-33402 workout template.
type WorkoutTemplate struct {
	ID                string // d-tag
	Name              string
	Description       string
	Type              string
	Sets              []TemplateSet
	Rounds            int
	EstimatedDuration time.Duration
	Interval          time.Duration
	RestBetweenRounds time.Duration
	RestBetweenSets   time.Duration
	Difficulty        string
	Hashtags          []string
	AuthorPubkey      string
	CreatedAt         time.Time
	EventID           string
}

// Ref returns the addressable reference for this template.
func (t WorkoutTemplate) Ref() Ref {
	return Ref{Kind: KindWorkoutTemplate, PubKey: t.AuthorPubkey, DTag: t.ID}
}

// ExerciseRefs returns the distinct exercise refs prescribed by the
// template, in first-appearance order.
func (t WorkoutTemplate) ExerciseRefs() []Ref {
	seen := make(map[string]bool, len(t.Sets))
	var refs []Ref
	for _, s := range t.Sets {
		key := s.ExerciseRef.Key()
		if !seen[key] {
			seen[key] = true
			refs = append(refs, s.ExerciseRef)
		}
	}
	return refs
}

// Collection is a parsed kind-30003 list of exercise, template, or
// collection references used for library grouping.
type Collection struct {
	ID           string // d-tag
	Name         string
	ContentRefs  []Ref
	AuthorPubkey string
	CreatedAt    time.Time
	EventID      string
}

// Ref returns the addressable reference for this collection.
func (c Collection) Ref() Ref {
	return Ref{Kind: KindCollection, PubKey: c.AuthorPubkey, DTag: c.ID}
}

// RecordSet is one completed set inside a published workout record.
type RecordSet struct {
	ExerciseRef Ref
	RelayURL    string
	Weight      float64
	Reps        int
	RPE         float64
	SetType     string
	SetNumber   int
}

// WorkoutRecord is a parsed kind-1301 workout record.
type WorkoutRecord struct {
	ID           string // d-tag
	Title        string
	Type         string
	Start        time.Time
	End          time.Time
	Completed    bool
	Sets         []RecordSet
	TemplateRef  *Ref
	Hashtags     []string
	AuthorPubkey string
	CreatedAt    time.Time
	EventID      string
}
