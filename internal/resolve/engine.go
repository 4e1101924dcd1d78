// Package resolve turns chains of addressable event references into
// concrete, validated domain objects.
//
// Resolution is batched and cache-first: the local event store is
// consulted before any network round-trip, and a single network fetch
// covers all still-missing refs of the same kind. A ref that cannot be
// resolved is an absence in the result, never an error - callers render
// "unknown exercise" rather than aborting a workout.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nbd-wtf/go-nostr"

	"github.com/openlift/openlift/internal/nip101e"
)

// Source is the event store the engine resolves against.
// CachedEvents must never touch the network; FetchEvents may, and is
// expected to write its results back into the cache.
type Source interface {
	CachedEvents(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error)
	FetchEvents(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error)
}

// ResolvedSet is the output of a resolution call.
//
// Unresolved lists every requested or expanded ref that produced no
// entity: not found, malformed, or a nested collection beyond the
// single expansion level this engine follows per call.
type ResolvedSet struct {
	Templates  []nip101e.WorkoutTemplate
	Exercises  []nip101e.Exercise
	Unresolved []nip101e.Ref
}

// Engine resolves addressable reference chains.
type Engine struct {
	source Source
	parser *nip101e.Parser
}

// New creates an Engine over the given source.
func New(source Source, parser *nip101e.Parser) *Engine {
	return &Engine{source: source, parser: parser}
}

// Resolve resolves templates, exercises, and collections.
//
// Collections expand one level: their content refs are resolved in the
// same call, but collections nested inside collections are reported as
// unresolved so the caller can re-enter. Templates resolve their
// exercise refs (depth 1). Entities are deduplicated by addressable
// reference, newest created_at winning.
func (e *Engine) Resolve(ctx context.Context, refs []nip101e.Ref) (ResolvedSet, error) {
	if err := ctx.Err(); err != nil {
		return ResolvedSet{}, fmt.Errorf("resolve: %w", err)
	}
	return e.resolve(ctx, refs, false), nil
}

// ResolveOffline is Resolve restricted to cache-only lookups.
// Missing refs are silently omitted; the call never fails. This is the
// mechanism behind genuine offline operation.
func (e *Engine) ResolveOffline(ctx context.Context, refs []nip101e.Ref) ResolvedSet {
	return e.resolve(ctx, refs, true)
}

func (e *Engine) resolve(ctx context.Context, refs []nip101e.Ref, offline bool) ResolvedSet {
	var out ResolvedSet

	// Partition by kind. Unknown kinds resolve to nothing.
	var exerciseRefs, templateRefs, collectionRefs []nip101e.Ref
	for _, ref := range refs {
		switch ref.Kind {
		case nip101e.KindExercise:
			exerciseRefs = append(exerciseRefs, ref)
		case nip101e.KindWorkoutTemplate:
			templateRefs = append(templateRefs, ref)
		case nip101e.KindCollection:
			collectionRefs = append(collectionRefs, ref)
		default:
			slog.Warn("unresolvable ref kind", "ref", ref.String())
			out.Unresolved = append(out.Unresolved, ref)
		}
	}

	// Collections expand first: their contents join the template and
	// exercise partitions before those are fetched, keeping the whole
	// resolution to one batched round per kind.
	if len(collectionRefs) > 0 {
		collections := e.fetchPartition(ctx, nip101e.KindCollection, collectionRefs, offline)
		for _, ref := range collectionRefs {
			ev, ok := collections[ref.Key()]
			if !ok {
				out.Unresolved = append(out.Unresolved, ref)
				continue
			}
			col, err := e.parser.Collection(ev)
			if err != nil {
				slog.Warn("malformed collection omitted", "ref", ref.String(), "error", err)
				out.Unresolved = append(out.Unresolved, ref)
				continue
			}
			for _, content := range col.ContentRefs {
				switch content.Kind {
				case nip101e.KindExercise:
					exerciseRefs = append(exerciseRefs, content)
				case nip101e.KindWorkoutTemplate:
					templateRefs = append(templateRefs, content)
				case nip101e.KindCollection:
					// One nesting level per call bounds resolution cost.
					out.Unresolved = append(out.Unresolved, content)
				default:
					out.Unresolved = append(out.Unresolved, content)
				}
			}
		}
	}

	// Templates resolve before exercises so their prescribed exercise
	// refs can join the exercise partition (depth 1 recursion).
	templateRefs = dedupeRefs(templateRefs)
	templates := e.fetchPartition(ctx, nip101e.KindWorkoutTemplate, templateRefs, offline)
	for _, ref := range templateRefs {
		ev, ok := templates[ref.Key()]
		if !ok {
			out.Unresolved = append(out.Unresolved, ref)
			continue
		}
		t, err := e.parser.Template(ev)
		if err != nil {
			slog.Warn("malformed template omitted", "ref", ref.String(), "error", err)
			out.Unresolved = append(out.Unresolved, ref)
			continue
		}
		out.Templates = append(out.Templates, t)
		exerciseRefs = append(exerciseRefs, t.ExerciseRefs()...)
	}

	exerciseRefs = dedupeRefs(exerciseRefs)
	exercises := e.fetchPartition(ctx, nip101e.KindExercise, exerciseRefs, offline)
	for _, ref := range exerciseRefs {
		ev, ok := exercises[ref.Key()]
		if !ok {
			out.Unresolved = append(out.Unresolved, ref)
			continue
		}
		ex, err := e.parser.Exercise(ev)
		if err != nil {
			slog.Warn("malformed exercise omitted", "ref", ref.String(), "error", err)
			out.Unresolved = append(out.Unresolved, ref)
			continue
		}
		out.Exercises = append(out.Exercises, ex)
	}

	return out
}

// fetchPartition fetches all refs of one kind as a single batch,
// cache first, and returns the events keyed by normalized ref key.
//
// The batch filter is a cross product (all authors x all d-tags), so it
// can overfetch entities nobody asked about. The membership post-filter
// below is mandatory: without it, unrelated entities from the same
// authors bleed into the result set.
func (e *Engine) fetchPartition(ctx context.Context, kind int, refs []nip101e.Ref, offline bool) map[string]*nostr.Event {
	found := make(map[string]*nostr.Event)
	if len(refs) == 0 {
		return found
	}

	requested := make(map[string]bool, len(refs))
	for _, ref := range refs {
		requested[ref.Key()] = true
	}

	// admit keeps only requested refs, newest created_at winning.
	admit := func(events []*nostr.Event) {
		for _, ev := range events {
			ref := refForEvent(ev)
			key := ref.Key()
			if !requested[key] {
				continue
			}
			if prev, ok := found[key]; ok && prev.CreatedAt >= ev.CreatedAt {
				continue
			}
			found[key] = ev
		}
	}

	cached, err := e.source.CachedEvents(ctx, partitionFilter(kind, refs))
	if err != nil {
		slog.Warn("cache query failed", "kind", kind, "error", err)
	} else {
		admit(cached)
	}

	if offline || len(found) == len(requested) {
		return found
	}

	// One network round for the refs the cache could not satisfy.
	var missing []nip101e.Ref
	for _, ref := range refs {
		if _, ok := found[ref.Key()]; !ok {
			missing = append(missing, ref)
		}
	}
	fetched, err := e.source.FetchEvents(ctx, partitionFilter(kind, missing))
	if err != nil {
		slog.Warn("network fetch failed, proceeding with cache", "kind", kind, "error", err)
		return found
	}
	admit(fetched)

	return found
}

// partitionFilter builds the single batched filter covering all refs of
// one kind.
func partitionFilter(kind int, refs []nip101e.Ref) nostr.Filter {
	authors := make([]string, 0, len(refs))
	dTags := make([]string, 0, len(refs))
	seenAuthor := make(map[string]bool)
	seenD := make(map[string]bool)
	for _, ref := range refs {
		if !seenAuthor[ref.PubKey] {
			seenAuthor[ref.PubKey] = true
			authors = append(authors, ref.PubKey)
		}
		if !seenD[ref.DTag] {
			seenD[ref.DTag] = true
			dTags = append(dTags, ref.DTag)
		}
	}
	return nostr.Filter{
		Kinds:   []int{kind},
		Authors: authors,
		Tags:    nostr.TagMap{"d": dTags},
	}
}

// refForEvent derives the addressable ref of a cached event.
func refForEvent(ev *nostr.Event) nip101e.Ref {
	d := ""
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			d = tag[1]
			break
		}
	}
	return nip101e.Ref{Kind: ev.Kind, PubKey: ev.PubKey, DTag: d}
}

// dedupeRefs removes duplicate refs, preserving first-appearance order.
func dedupeRefs(refs []nip101e.Ref) []nip101e.Ref {
	seen := make(map[string]bool, len(refs))
	var out []nip101e.Ref
	for _, ref := range refs {
		key := ref.Key()
		if !seen[key] {
			seen[key] = true
			out = append(out, ref)
		}
	}
	return out
}
