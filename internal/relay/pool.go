// Package relay is the network layer of the event store: it fetches
// events from configured relays into the local cache and delivers
// outgoing events from the durable outbox.
//
// The pool is the single owner of publish retries. Layers above it hand
// an event over exactly once; a queued event survives restarts and is
// re-attempted by the flusher until some relay acknowledges it.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/openlift/openlift/internal/store"
)

// DefaultFetchTimeout bounds a single network fetch round.
const DefaultFetchTimeout = 5 * time.Second

// Pool manages connections to a fixed set of relays and moves events
// between them and the local store.
//
// Thread-safety model:
//   - CachedEvents / FetchEvents: safe from any goroutine
//   - Publish / Flush: safe from any goroutine (store serializes writes)
//   - RunFlusher: must be called from exactly one goroutine
type Pool struct {
	store        *store.Store
	urls         []string
	fetchTimeout time.Duration

	mu     sync.Mutex
	relays map[string]*nostr.Relay

	// connect is swappable for tests; defaults to nostr.RelayConnect.
	connect func(ctx context.Context, url string) (*nostr.Relay, error)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithFetchTimeout overrides the per-round network fetch timeout.
func WithFetchTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.fetchTimeout = d
	}
}

// NewPool creates a Pool over the given relay URLs.
// Connections are established lazily on first use.
func NewPool(st *store.Store, urls []string, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        st,
		urls:         append([]string(nil), urls...),
		fetchTimeout: DefaultFetchTimeout,
		relays:       make(map[string]*nostr.Relay),
		connect: func(ctx context.Context, url string) (*nostr.Relay, error) {
			return nostr.RelayConnect(ctx, url)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URLs returns the configured relay URLs.
func (p *Pool) URLs() []string {
	return append([]string(nil), p.urls...)
}

// CachedEvents returns locally cached events matching the filters.
// Never touches the network.
func (p *Pool) CachedEvents(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	return p.store.QueryEvents(ctx, filters...)
}

// FetchEvents queries every reachable relay for the filters, writes the
// results into the cache, and returns them deduplicated by id.
//
// Unreachable relays are skipped with a warning; the fetch fails only
// when the context is cancelled before any relay responds.
func (p *Pool) FetchEvents(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	seen := make(map[string]bool)
	events := []*nostr.Event{}

	for _, url := range p.urls {
		r, err := p.relay(ctx, url)
		if err != nil {
			slog.Warn("relay unreachable", "url", url, "error", err)
			continue
		}
		for _, f := range filters {
			matched, err := r.QuerySync(ctx, f)
			if err != nil {
				slog.Warn("relay query failed", "url", url, "error", err)
				continue
			}
			for _, ev := range matched {
				if seen[ev.ID] {
					continue
				}
				seen[ev.ID] = true
				if _, err := p.store.SaveEvent(ctx, ev); err != nil {
					slog.Warn("cache write failed", "event_id", ev.ID, "error", err)
				}
				events = append(events, ev)
			}
		}
	}

	if err := ctx.Err(); err != nil && len(events) == 0 {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	return events, nil
}

// Publish durably queues a signed event and attempts immediate delivery.
//
// The outbox write happens before any network I/O: once it commits, the
// event cannot be lost. The returned ack reports whether at least one
// relay accepted the event before ctx expired; ack=false with nil error
// means "queued, the flusher will retry".
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) (acked bool, err error) {
	if err := p.store.EnqueueOutbox(ctx, ev); err != nil {
		return false, fmt.Errorf("publish %s: %w", ev.ID, err)
	}

	return p.attemptDelivery(ctx, ev), nil
}

// attemptDelivery tries each relay until one acknowledges or ctx is done.
// On ack the outbox row is marked and the event enters the local cache.
func (p *Pool) attemptDelivery(ctx context.Context, ev *nostr.Event) bool {
	for _, url := range p.urls {
		if ctx.Err() != nil {
			return false
		}
		r, err := p.relay(ctx, url)
		if err != nil {
			slog.Warn("relay unreachable", "url", url, "error", err)
			continue
		}
		if err := r.Publish(ctx, *ev); err != nil {
			slog.Warn("relay rejected event", "url", url, "event_id", ev.ID, "error", err)
			if err := p.store.BumpOutboxAttempt(ctx, ev.ID); err != nil {
				slog.Warn("outbox attempt bump failed", "event_id", ev.ID, "error", err)
			}
			continue
		}

		if err := p.store.MarkOutboxAcked(ctx, ev.ID); err != nil {
			slog.Warn("outbox ack mark failed", "event_id", ev.ID, "error", err)
		}
		if _, err := p.store.SaveEvent(ctx, ev); err != nil {
			slog.Warn("cache write failed", "event_id", ev.ID, "error", err)
		}
		slog.Info("event delivered", "event_id", ev.ID, "relay", url)
		return true
	}
	return false
}

// Flush attempts delivery of every pending outbox event.
// Returns the number of events acknowledged during this pass.
func (p *Pool) Flush(ctx context.Context) (int, error) {
	pending, err := p.store.PendingOutbox(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}

	delivered := 0
	for _, ev := range pending {
		if ctx.Err() != nil {
			break
		}
		if p.attemptDelivery(ctx, ev) {
			delivered++
		}
	}
	return delivered, nil
}

// RunFlusher periodically drains the outbox until ctx is cancelled.
// Must be called from exactly one goroutine.
func (p *Pool) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.Flush(ctx); err != nil {
				slog.Error("outbox flush failed", "error", err)
			} else if n > 0 {
				slog.Info("outbox flushed", "delivered", n)
			}
		}
	}
}

// Close closes all relay connections.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, r := range p.relays {
		r.Close()
		delete(p.relays, url)
	}
}

// relay returns a live connection to url, dialing if needed.
func (p *Pool) relay(ctx context.Context, url string) (*nostr.Relay, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.relays[url]; ok {
		return r, nil
	}
	r, err := p.connect(ctx, url)
	if err != nil {
		return nil, err
	}
	p.relays[url] = r
	return r, nil
}
