package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlift/openlift/internal/nip101e"
	"github.com/openlift/openlift/internal/publish"
	"github.com/openlift/openlift/internal/record"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateSetup      State = "setup"
	StateActive     State = "active"
	StatePublishing State = "publishing"
	StatePublished  State = "published"
	StateError      State = "error"
)

// ErrWorkoutInProgress is returned when setup is requested while a
// workout is active or publishing. The request is a no-op: the running
// session is untouched.
var ErrWorkoutInProgress = errors.New("a workout is already in progress")

// ErrNoActiveSession is returned for session commands outside the
// active state.
var ErrNoActiveSession = errors.New("no active session")

// ErrSetupCancelled is returned when the machine is stopped while a
// setup resolution is in flight. The stale resolution is discarded
// instead of reviving a stopped machine.
var ErrSetupCancelled = errors.New("setup cancelled")

// Orchestrator is the top-level lifecycle state machine:
//
//	idle --StartSetup--> setup --ok--> active --Finish--> publishing --ok--> published
//	                       |                  \--Cancel--> idle          \--fail--> error
//	                       \--fail--> error
//	error/published --Reset--> idle
//
// Only idle and published accept a fresh StartSetup, which prevents
// concurrent workouts within one orchestrator instance.
//
// The orchestrator is intended to live for the whole application
// session: navigating away from the active-workout surface and back
// never loses in-progress state, because the state lives here, not in
// any view.
type Orchestrator struct {
	setup     *SetupResolver
	generator *record.Generator
	publisher *publish.Publisher
	signer    publish.Signer

	publishTimeout time.Duration
	newWorkoutID   func() string
	now            func() time.Time

	mu          sync.Mutex
	state       State
	setupGen    uint64
	actor       *Actor
	hydrated    SetupResult
	lastErr     error
	lastPublish publish.Result
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPublishTimeout overrides the confirmed-publish timeout.
func WithPublishTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publishTimeout = d
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithWorkoutIDs overrides workout id generation. Used by tests.
func WithWorkoutIDs(gen func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newWorkoutID = gen
	}
}

// NewOrchestrator wires the lifecycle machine with its collaborators.
// Every dependency is passed in explicitly; nothing reaches for globals.
func NewOrchestrator(
	setup *SetupResolver,
	generator *record.Generator,
	publisher *publish.Publisher,
	signer publish.Signer,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		setup:          setup,
		generator:      generator,
		publisher:      publisher,
		signer:         signer,
		publishTimeout: publish.DefaultConfirmTimeout,
		newWorkoutID:   func() string { return uuid.NewString() },
		now:            time.Now,
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the error that moved the machine into StateError.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// LastPublish returns the result of the most recent publish attempt.
func (o *Orchestrator) LastPublish() publish.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastPublish
}

// StartSetup resolves the template and, on success, spawns the session
// actor and enters active. Accepted only from idle or published; any
// other state rejects the request as a no-op.
//
// Setup failure moves to error, which requires an explicit Reset - the
// failure happened before any session state was created, so nothing is
// lost. A Stop while the resolution is in flight discards the outcome
// and returns ErrSetupCancelled.
func (o *Orchestrator) StartSetup(ctx context.Context, templateRef nip101e.Ref) error {
	o.mu.Lock()
	if o.state != StateIdle && o.state != StatePublished {
		o.mu.Unlock()
		slog.Warn("setup rejected", "state", string(o.state))
		return ErrWorkoutInProgress
	}
	o.state = StateSetup
	o.setupGen++
	gen := o.setupGen
	o.mu.Unlock()

	slog.Info("setup started", "template", templateRef.String())

	// Resolution may hit the network; the lock is not held across it.
	// Stop can tear the machine down in that window, so the outcome is
	// installed only if this attempt is still the current one.
	result, err := o.setup.Run(ctx, templateRef)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateSetup || o.setupGen != gen {
		slog.Info("setup discarded", "template", templateRef.String(), "state", string(o.state))
		return ErrSetupCancelled
	}

	if err != nil {
		o.state = StateError
		o.lastErr = err
		slog.Warn("setup failed", "template", templateRef.String(), "error", err)
		return err
	}

	ref := result.Template.Ref()
	o.hydrated = result
	o.actor = Spawn(Config{
		WorkoutID:   o.newWorkoutID(),
		Title:       result.Template.Name,
		Type:        result.Template.Type,
		Template:    &result.Template,
		TemplateRef: &ref,
		Now:         o.now,
	})
	o.state = StateActive
	slog.Info("session active", "template", templateRef.String(), "exercises", len(result.Exercises))
	return nil
}

// Hydrated returns the resolved template and exercises of the current
// session.
func (o *Orchestrator) Hydrated() (SetupResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateActive && o.state != StatePublishing {
		return SetupResult{}, false
	}
	return o.hydrated, true
}

// session returns the live actor handle, or ErrNoActiveSession.
func (o *Orchestrator) session() (*Actor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateActive || o.actor == nil {
		return nil, ErrNoActiveSession
	}
	return o.actor, nil
}

// CompleteSet forwards a set to the active session.
func (o *Orchestrator) CompleteSet(ctx context.Context, in SetInput) (record.CompletedSet, error) {
	actor, err := o.session()
	if err != nil {
		return record.CompletedSet{}, err
	}
	return actor.CompleteSet(ctx, in)
}

// Pause forwards a pause to the active session.
func (o *Orchestrator) Pause(ctx context.Context) error {
	actor, err := o.session()
	if err != nil {
		return err
	}
	return actor.Pause(ctx)
}

// Resume forwards a resume to the active session.
func (o *Orchestrator) Resume(ctx context.Context) error {
	actor, err := o.session()
	if err != nil {
		return err
	}
	return actor.Resume(ctx)
}

// SessionStatus reports the active session's status.
func (o *Orchestrator) SessionStatus(ctx context.Context) (Status, error) {
	actor, err := o.session()
	if err != nil {
		return Status{}, err
	}
	return actor.Status(ctx)
}

// FinishWorkout completes the active session and publishes its record.
//
// The child's FINISH output transfers the workout by value; the child
// is terminated before the machine enters publishing. Generation and
// validation failures, and non-retryable publish failures, move to
// error. A queued (timed-out) confirmed publish is success.
func (o *Orchestrator) FinishWorkout(ctx context.Context, notes string) (publish.Result, error) {
	o.mu.Lock()
	if o.state != StateActive || o.actor == nil {
		o.mu.Unlock()
		return publish.Result{}, ErrNoActiveSession
	}
	actor := o.actor
	o.mu.Unlock()

	workout, err := actor.Finish(ctx, notes)
	if err != nil {
		return publish.Result{}, fmt.Errorf("finish workout: %w", err)
	}

	o.mu.Lock()
	o.actor = nil
	o.state = StatePublishing
	o.mu.Unlock()
	slog.Info("workout completed", "workout_id", workout.WorkoutID, "sets", len(workout.Sets))

	result := o.generateAndPublish(ctx, workout)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastPublish = result
	if result.Success {
		o.state = StatePublished
		slog.Info("workout published", "event_id", result.EventID, "queued", result.Queued)
	} else {
		o.state = StateError
		o.lastErr = result.Err
		slog.Error("workout publish failed", "error", result.Err)
	}
	return result, result.Err
}

// generateAndPublish runs the generator and publish actor outside the
// state lock. Signing may prompt a human and must not block other
// machine instances.
func (o *Orchestrator) generateAndPublish(ctx context.Context, workout record.CompletedWorkout) publish.Result {
	if o.signer == nil {
		return publish.Result{Err: publish.ErrNoSigner}
	}

	ev, err := o.generator.Generate(workout, o.signer.PubKey())
	if err != nil {
		return publish.Result{Err: err}
	}

	return o.publisher.Publish(ctx, ev, publish.Options{
		Mode:    publish.ModeConfirmed,
		Timeout: o.publishTimeout,
	})
}

// CancelWorkout destroys the active session and returns to idle.
// The cancelled workout leaves no trace in the published record stream.
func (o *Orchestrator) CancelWorkout(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateActive || o.actor == nil {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	actor := o.actor
	o.actor = nil
	o.state = StateIdle
	o.hydrated = SetupResult{}
	o.mu.Unlock()

	if err := actor.Cancel(ctx); err != nil {
		return fmt.Errorf("cancel workout: %w", err)
	}
	slog.Info("workout cancelled")
	return nil
}

// Reset acknowledges a terminal state and returns to idle. Accepted
// from error and published; a no-op elsewhere.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateError && o.state != StatePublished {
		return
	}
	o.state = StateIdle
	o.lastErr = nil
	o.hydrated = SetupResult{}
}

// Stop tears the orchestrator down, synchronously stopping any spawned
// session. Used at process shutdown.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	actor := o.actor
	o.actor = nil
	o.state = StateIdle
	o.setupGen++
	o.mu.Unlock()

	if actor != nil {
		if err := actor.Cancel(ctx); err != nil {
			slog.Warn("session stop failed", "error", err)
		}
	}
}
