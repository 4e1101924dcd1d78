package session

import (
	"context"
	"fmt"

	"github.com/openlift/openlift/internal/nip101e"
	"github.com/openlift/openlift/internal/resolve"
)

// ResolutionError reports a setup failure: the selected template could
// not be hydrated into a runnable exercise list.
//
// Setup failures are not retried automatically; retry is a
// user-initiated re-entry into setup.
type ResolutionError struct {
	Ref    nip101e.Ref
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s", e.Ref.String(), e.Reason)
}

// SetupResult is the hydrated output handed to a spawned session actor.
type SetupResult struct {
	Template  nip101e.WorkoutTemplate
	Exercises []nip101e.Exercise
}

// SetupResolver is the invoked child of the orchestrator: it runs once
// per setup attempt, either producing a hydrated template or failing.
// No intermediate state is externally observable.
type SetupResolver struct {
	engine *resolve.Engine
}

// NewSetupResolver creates a resolver over the given engine.
func NewSetupResolver(engine *resolve.Engine) *SetupResolver {
	return &SetupResolver{engine: engine}
}

// Run hydrates the selected template. A template that cannot be found,
// or that resolves zero exercises, is a failure: a session with no
// exercises has nothing to track.
//
// Individual exercises that fail to resolve are resolution gaps, not
// errors - the session proceeds and renders them as unknown.
func (r *SetupResolver) Run(ctx context.Context, templateRef nip101e.Ref) (SetupResult, error) {
	if templateRef.Kind != nip101e.KindWorkoutTemplate {
		return SetupResult{}, &ResolutionError{Ref: templateRef, Reason: "not a workout template ref"}
	}

	resolved, err := r.engine.Resolve(ctx, []nip101e.Ref{templateRef})
	if err != nil {
		return SetupResult{}, &ResolutionError{Ref: templateRef, Reason: err.Error()}
	}

	var template *nip101e.WorkoutTemplate
	for i := range resolved.Templates {
		if resolved.Templates[i].Ref().Key() == templateRef.Key() {
			template = &resolved.Templates[i]
			break
		}
	}
	if template == nil {
		return SetupResult{}, &ResolutionError{Ref: templateRef, Reason: "template not found"}
	}
	if len(resolved.Exercises) == 0 {
		return SetupResult{}, &ResolutionError{Ref: templateRef, Reason: "no exercises resolved"}
	}

	return SetupResult{Template: *template, Exercises: resolved.Exercises}, nil
}
