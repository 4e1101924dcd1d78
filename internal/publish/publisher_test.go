package publish

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hangingTransport simulates relays that never acknowledge: it queues
// the event, then waits out the caller's deadline.
type hangingTransport struct {
	published chan *nostr.Event
}

func (tr *hangingTransport) Publish(ctx context.Context, ev *nostr.Event) (bool, error) {
	select {
	case tr.published <- ev:
	default:
	}
	<-ctx.Done()
	return false, nil
}

type ackingTransport struct {
	acked bool
	err   error
	calls int
}

func (tr *ackingTransport) Publish(ctx context.Context, ev *nostr.Event) (bool, error) {
	tr.calls++
	return tr.acked, tr.err
}

// testSecret is a fixed valid secp256k1 secret key.
var testSecret = strings.Repeat("01", 32)

func testEvent() *nostr.Event {
	return &nostr.Event{
		Kind:      1301,
		CreatedAt: nostr.Timestamp(1700000000),
		Tags: nostr.Tags{
			{"d", "workout-0001"},
			{"title", "Legs Day"},
		},
		Content: "summary",
	}
}

func testSigner(t *testing.T) *LocalSigner {
	t.Helper()
	s, err := NewLocalSigner(testSecret)
	require.NoError(t, err)
	return s
}

func TestPublish_ConfirmedAck(t *testing.T) {
	tr := &ackingTransport{acked: true}
	p := New(testSigner(t), tr)

	result := p.Publish(context.Background(), testEvent(), Options{Mode: ModeConfirmed})

	assert.True(t, result.Success)
	assert.False(t, result.Queued)
	assert.NotEmpty(t, result.EventID)
	assert.NoError(t, result.Err)
}

func TestPublish_TimeoutIsQueuedSuccess(t *testing.T) {
	tr := &hangingTransport{published: make(chan *nostr.Event, 1)}
	p := New(testSigner(t), tr)

	start := time.Now()
	result := p.Publish(context.Background(), testEvent(), Options{
		Mode:    ModeConfirmed,
		Timeout: 50 * time.Millisecond,
	})

	// No relay answered within the timeout, but the event sits in the
	// durable queue: that is success with queued set, not failure.
	assert.True(t, result.Success)
	assert.True(t, result.Queued)
	assert.NotEmpty(t, result.EventID)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPublish_NoSignerFailsSynchronously(t *testing.T) {
	tr := &ackingTransport{acked: true}
	p := New(nil, tr)

	result := p.Publish(context.Background(), testEvent(), Options{Mode: ModeConfirmed})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrNoSigner)
	assert.Zero(t, tr.calls, "transport must not be touched without a signer")
}

func TestPublish_RejectsMalformedEvent(t *testing.T) {
	tr := &ackingTransport{acked: true}
	p := New(testSigner(t), tr)

	tests := []struct {
		name   string
		mutate func(*nostr.Event)
	}{
		{"no kind", func(ev *nostr.Event) { ev.Kind = 0 }},
		{"no created_at", func(ev *nostr.Event) { ev.CreatedAt = 0 }},
		{"no d tag", func(ev *nostr.Event) { ev.Tags = nostr.Tags{{"title", "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := testEvent()
			tt.mutate(ev)
			result := p.Publish(context.Background(), ev, Options{Mode: ModeConfirmed})
			assert.False(t, result.Success)
			assert.Error(t, result.Err)
		})
	}
	assert.Zero(t, tr.calls)
}

func TestPublish_SignsOnce(t *testing.T) {
	tr := &ackingTransport{acked: true}
	p := New(testSigner(t), tr)

	ev := testEvent()
	result := p.Publish(context.Background(), ev, Options{Mode: ModeConfirmed})
	require.True(t, result.Success)
	require.NotEmpty(t, ev.Sig)

	sig := ev.Sig
	result = p.Publish(context.Background(), ev, Options{Mode: ModeConfirmed})
	require.True(t, result.Success)
	assert.Equal(t, sig, ev.Sig, "an already-signed event is not re-signed")
}

func TestPublish_OptimisticReturnsImmediately(t *testing.T) {
	tr := &hangingTransport{published: make(chan *nostr.Event, 1)}
	p := New(testSigner(t), tr)

	start := time.Now()
	result := p.Publish(context.Background(), testEvent(), Options{Mode: ModeOptimistic})

	assert.True(t, result.Success)
	assert.True(t, result.Queued)
	assert.NotEmpty(t, result.EventID)
	assert.Less(t, time.Since(start), time.Second)

	// Delivery still happens in the background.
	select {
	case ev := <-tr.published:
		assert.Equal(t, result.EventID, ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("optimistic publish never reached the transport")
	}
}

func TestPublish_TransportErrorFails(t *testing.T) {
	tr := &ackingTransport{err: errors.New("outbox write failed")}
	p := New(testSigner(t), tr)

	result := p.Publish(context.Background(), testEvent(), Options{Mode: ModeConfirmed})
	assert.False(t, result.Success)
	assert.Error(t, result.Err)
}

func TestLocalSigner_SignSetsIdentity(t *testing.T) {
	s := testSigner(t)
	ev := testEvent()

	require.NoError(t, s.Sign(context.Background(), ev))
	assert.Equal(t, s.PubKey(), ev.PubKey)
	assert.NotEmpty(t, ev.ID)
	assert.NotEmpty(t, ev.Sig)
}
