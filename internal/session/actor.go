// Package session drives a workout from template selection through live
// tracking to completion and publication.
//
// It is built as a parent/child pair: the Orchestrator owns the
// top-level lifecycle state machine and spawns one Actor per active
// workout. The actor exclusively owns the in-progress CompletedWorkout;
// the parent never reads the child's internals and only reacts to its
// terminal output.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openlift/openlift/internal/nip101e"
	"github.com/openlift/openlift/internal/record"
)

// ErrSessionEnded is returned for commands sent after the actor reached
// a terminal state.
var ErrSessionEnded = errors.New("session has ended")

// ErrSessionPaused is returned when a set is completed while paused.
var ErrSessionPaused = errors.New("session is paused")

// SetInput describes one completed set. Nil fields fall back to the
// hydrated template's prescription for that exercise and set position -
// prescriptions are defaults the user may override, never regenerated.
type SetInput struct {
	ExerciseRef nip101e.Ref
	Weight      *float64
	Reps        *int
	RPE         *float64
	SetType     *string
}

// Status is a point-in-time view the actor publishes about itself.
type Status struct {
	Paused    bool
	Elapsed   time.Duration
	SetCount  int
	StartedAt time.Time
}

// Config describes the workout an actor is spawned with.
type Config struct {
	WorkoutID   string
	Title       string
	Type        string
	Template    *nip101e.WorkoutTemplate
	TemplateRef *nip101e.Ref

	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time
}

type cmdKind int

const (
	cmdCompleteSet cmdKind = iota + 1
	cmdPause
	cmdResume
	cmdFinish
	cmdCancel
	cmdStatus
)

type command struct {
	kind  cmdKind
	set   SetInput
	notes string
	reply chan reply
}

type reply struct {
	set     record.CompletedSet
	workout record.CompletedWorkout
	status  Status
	err     error
}

// Actor owns the mutable state of one in-progress workout: elapsed
// time, completed sets, pause state.
//
// All mutations happen in the single run-loop goroutine. Public methods
// submit commands over a channel and wait for the reply, so callers see
// synchronous semantics while the owned state stays single-writer.
// COMPLETE_SET commands are processed strictly in receipt order, which
// makes set number assignment deterministic per exercise.
type Actor struct {
	cmds chan command
	done chan struct{}
}

// Spawn starts an actor for the given workout. The caller owns the
// returned handle and is responsible for ending it via Finish or
// Cancel; no actor may outlive its parent's transition out of active.
func Spawn(cfg Config) *Actor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	a := &Actor{
		cmds: make(chan command),
		done: make(chan struct{}),
	}
	go a.run(cfg)
	return a
}

// run is the single-writer loop owning the CompletedWorkout.
func (a *Actor) run(cfg Config) {
	defer close(a.done)

	workout := record.CompletedWorkout{
		WorkoutID:   cfg.WorkoutID,
		Title:       cfg.Title,
		Type:        cfg.Type,
		StartTime:   cfg.Now(),
		TemplateRef: cfg.TemplateRef,
	}

	// Set numbering is per exercise reference, not global: each
	// exercise starts its own numbering at 1.
	counters := make(map[string]int)
	paused := false

	for cmd := range a.cmds {
		switch cmd.kind {
		case cmdCompleteSet:
			if paused {
				cmd.reply <- reply{err: ErrSessionPaused}
				continue
			}
			set := buildSet(cfg, counters, cmd.set)
			workout.Sets = append(workout.Sets, set)
			cmd.reply <- reply{set: set}

		case cmdPause:
			paused = true
			cmd.reply <- reply{}

		case cmdResume:
			paused = false
			cmd.reply <- reply{}

		case cmdStatus:
			cmd.reply <- reply{status: Status{
				Paused:    paused,
				Elapsed:   cfg.Now().Sub(workout.StartTime),
				SetCount:  len(workout.Sets),
				StartedAt: workout.StartTime,
			}}

		case cmdFinish:
			workout.EndTime = cfg.Now()
			workout.Notes = cmd.notes
			// Ownership transfers by value; the actor terminates.
			cmd.reply <- reply{workout: workout}
			return

		case cmdCancel:
			// Destroyed without emitting anything: a cancelled workout
			// is never published, partially or otherwise.
			cmd.reply <- reply{}
			return
		}
	}
}

// buildSet assembles a CompletedSet from input plus prescription
// defaults, assigning the next per-exercise set number.
func buildSet(cfg Config, counters map[string]int, in SetInput) record.CompletedSet {
	key := in.ExerciseRef.Key()
	counters[key]++
	setNumber := counters[key]

	set := record.CompletedSet{
		ExerciseRef: in.ExerciseRef,
		SetNumber:   setNumber,
		SetType:     record.SetNormal,
		CompletedAt: cfg.Now(),
	}

	if p := prescriptionFor(cfg.Template, in.ExerciseRef, setNumber); p != nil {
		set.Weight = p.PrescribedWeight
		set.Reps = p.PrescribedReps
		set.RPE = p.PrescribedRPE
		if p.PrescribedSetType != "" {
			set.SetType = p.PrescribedSetType
		}
	}

	if in.Weight != nil {
		set.Weight = *in.Weight
	}
	if in.Reps != nil {
		set.Reps = *in.Reps
	}
	if in.RPE != nil {
		set.RPE = *in.RPE
	}
	if in.SetType != nil {
		set.SetType = *in.SetType
	}

	return set
}

// prescriptionFor finds the template prescription for the given
// exercise and set position. Falls back to the exercise's last
// prescription when the user completes more sets than prescribed.
func prescriptionFor(t *nip101e.WorkoutTemplate, ref nip101e.Ref, setNumber int) *nip101e.TemplateSet {
	if t == nil {
		return nil
	}
	var last *nip101e.TemplateSet
	for i := range t.Sets {
		s := &t.Sets[i]
		if s.ExerciseRef.Key() != ref.Key() {
			continue
		}
		if s.SetNumber == setNumber {
			return s
		}
		last = s
	}
	return last
}

// send submits a command and waits for the actor's reply.
func (a *Actor) send(ctx context.Context, cmd command) (reply, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case a.cmds <- cmd:
	case <-a.done:
		return reply{}, ErrSessionEnded
	case <-ctx.Done():
		return reply{}, fmt.Errorf("session command: %w", ctx.Err())
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, fmt.Errorf("session command: %w", ctx.Err())
	}
}

// CompleteSet records a set and returns it as stored, with defaults
// applied and the per-exercise set number assigned.
func (a *Actor) CompleteSet(ctx context.Context, in SetInput) (record.CompletedSet, error) {
	r, err := a.send(ctx, command{kind: cmdCompleteSet, set: in})
	return r.set, err
}

// Pause suspends the session. No time is deducted from start/end
// bookkeeping; pause accounting is a concern layered above this core.
func (a *Actor) Pause(ctx context.Context) error {
	_, err := a.send(ctx, command{kind: cmdPause})
	return err
}

// Resume reverses Pause.
func (a *Actor) Resume(ctx context.Context) error {
	_, err := a.send(ctx, command{kind: cmdResume})
	return err
}

// Status reports the actor's own view of the session.
func (a *Actor) Status(ctx context.Context) (Status, error) {
	r, err := a.send(ctx, command{kind: cmdStatus})
	return r.status, err
}

// Finish ends the session and returns the completed workout by value.
// The actor terminates.
func (a *Actor) Finish(ctx context.Context, notes string) (record.CompletedWorkout, error) {
	r, err := a.send(ctx, command{kind: cmdFinish, notes: notes})
	return r.workout, err
}

// Cancel destroys the session. Nothing is emitted and nothing is ever
// published. Safe to call on an already-ended actor.
func (a *Actor) Cancel(ctx context.Context) error {
	_, err := a.send(ctx, command{kind: cmdCancel})
	if errors.Is(err, ErrSessionEnded) {
		return nil
	}
	return err
}

// Done is closed when the actor has terminated.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}
