package testutil

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// MemorySource is an in-memory resolve source. Cached holds events the
// local store already has; Remote holds events only the network knows
// about. FetchEvents writes its hits back into Cached, mirroring the
// real pool's write-back behavior.
type MemorySource struct {
	mu     sync.Mutex
	cached []*nostr.Event
	remote []*nostr.Event

	// FetchErr, when set, makes every FetchEvents call fail. Simulates
	// being offline.
	FetchErr error

	CacheCalls int
	FetchCalls int
}

// NewMemorySource creates a source with the given cached events.
func NewMemorySource(cached ...*nostr.Event) *MemorySource {
	return &MemorySource{cached: cached}
}

// AddCached appends events to the local cache.
func (s *MemorySource) AddCached(events ...*nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = append(s.cached, events...)
}

// AddRemote appends events reachable only via FetchEvents.
func (s *MemorySource) AddRemote(events ...*nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = append(s.remote, events...)
}

// CachedEvents returns cached events matching any filter.
func (s *MemorySource) CachedEvents(_ context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CacheCalls++
	return match(s.cached, filters), nil
}

// FetchEvents returns cached plus remote matches and caches the remote
// hits.
func (s *MemorySource) FetchEvents(_ context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FetchCalls++
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	s.cached = append(s.cached, match(s.remote, filters)...)
	return match(s.cached, filters), nil
}

func match(events []*nostr.Event, filters []nostr.Filter) []*nostr.Event {
	var out []*nostr.Event
	seen := make(map[string]bool)
	for _, ev := range events {
		if seen[ev.ID] {
			continue
		}
		for _, f := range filters {
			if f.Matches(ev) {
				seen[ev.ID] = true
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// FakeTransport records published events and returns a scripted
// outcome.
type FakeTransport struct {
	mu        sync.Mutex
	published []*nostr.Event

	// Acked is the ack result returned for each publish.
	Acked bool
	// Err, when set, is returned instead of an outcome.
	Err error
	// Hang, when set, blocks until the caller's context expires and
	// then reports not-acked. Simulates an unreachable relay behind a
	// durable queue.
	Hang bool
}

// Publish implements publish.Transport.
func (f *FakeTransport) Publish(ctx context.Context, ev *nostr.Event) (bool, error) {
	f.mu.Lock()
	f.published = append(f.published, ev)
	f.mu.Unlock()

	if f.Err != nil {
		return false, f.Err
	}
	if f.Hang {
		<-ctx.Done()
		return false, nil
	}
	return f.Acked, nil
}

// Published returns a snapshot of the events handed to the transport.
func (f *FakeTransport) Published() []*nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*nostr.Event(nil), f.published...)
}

// FakeSigner counts sign calls without producing a real signature.
type FakeSigner struct {
	mu        sync.Mutex
	Pub       string
	SignErr   error
	signCalls int
}

// PubKey implements publish.Signer.
func (f *FakeSigner) PubKey() string { return f.Pub }

// Sign implements publish.Signer.
func (f *FakeSigner) Sign(_ context.Context, ev *nostr.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signCalls++
	if f.SignErr != nil {
		return f.SignErr
	}
	ev.PubKey = f.Pub
	ev.ID = ev.GetID()
	ev.Sig = "0000" // shape only; tests never verify signatures
	return nil
}

// SignCalls reports how many times Sign ran.
func (f *FakeSigner) SignCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signCalls
}
