// Package publish hands constructed workout events to the signer and
// the event store's network layer.
//
// The publisher holds no queue and no persistent state: the relay
// layer's durable outbox is the single source of retry truth, and this
// actor must not implement a second, competing retry mechanism.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Mode selects how long Publish waits for relay acknowledgment.
type Mode string

const (
	// ModeConfirmed blocks, bounded by the timeout, until a relay acks
	// or the event is left in the durable queue.
	ModeConfirmed Mode = "confirmed"
	// ModeOptimistic returns immediately with the locally-computed
	// event id. Used for low-stakes progress pings where blocking on a
	// relay round-trip is unacceptable.
	ModeOptimistic Mode = "optimistic"
)

// DefaultConfirmTimeout bounds confirmed-mode waits when the caller
// does not supply a timeout.
const DefaultConfirmTimeout = 10 * time.Second

// Transport is the network layer the publisher hands events to.
// Publish returns once the event is durably queued; ack reports whether
// a relay accepted it before ctx expired.
type Transport interface {
	Publish(ctx context.Context, ev *nostr.Event) (acked bool, err error)
}

// Options configure a single publish call.
type Options struct {
	Mode    Mode
	Timeout time.Duration // confirmed mode only; default DefaultConfirmTimeout
}

// Result reports the outcome of a publish call.
//
// Success with Queued set means the event reached the durable local
// queue but no relay has acknowledged it yet. Once an event is
// structurally valid and signed, loss of connectivity must never lose
// user data, so a confirmed-mode timeout is success, not failure.
type Result struct {
	Success bool
	EventID string
	Queued  bool
	Err     error
}

// Publisher signs and hands events to the transport.
type Publisher struct {
	signer    Signer
	transport Transport
}

// New creates a Publisher. A nil signer is valid and causes every
// publish attempt to fail synchronously with ErrNoSigner.
func New(signer Signer, transport Transport) *Publisher {
	return &Publisher{signer: signer, transport: transport}
}

// Publish signs the event if needed and delivers it per the options.
//
// Precondition failures - no signer, structurally invalid event - are
// fatal and non-retryable: they return synchronously without touching
// the network layer.
func (p *Publisher) Publish(ctx context.Context, ev *nostr.Event, opts Options) Result {
	if p.signer == nil {
		return Result{Err: ErrNoSigner}
	}
	if err := checkShape(ev); err != nil {
		return Result{Err: err}
	}

	if ev.Sig == "" {
		// May prompt a human; bounded only by ctx.
		if err := p.signer.Sign(ctx, ev); err != nil {
			return Result{Err: fmt.Errorf("publish: sign: %w", err)}
		}
	}

	if opts.Mode == ModeOptimistic {
		id := ev.GetID()
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultConfirmTimeout)
			defer cancel()
			if _, err := p.transport.Publish(ctx, ev); err != nil {
				slog.Error("optimistic publish failed", "event_id", id, "error", err)
			}
		}()
		return Result{Success: true, EventID: id, Queued: true}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	acked, err := p.transport.Publish(ctx, ev)
	if err != nil {
		// The only true network failure is the absence of a durable
		// local queue, which the transport contract rules out.
		return Result{EventID: ev.ID, Err: fmt.Errorf("publish: %w", err)}
	}
	if acked {
		slog.Info("publish confirmed", "event_id", ev.ID)
		return Result{Success: true, EventID: ev.ID}
	}
	slog.Info("publish queued for retry", "event_id", ev.ID)
	return Result{Success: true, EventID: ev.ID, Queued: true}
}

// checkShape is the basic required-field check applied before signing.
// Full semantic validation happens in the record package; this only
// rejects events that could never be valid on the wire.
func checkShape(ev *nostr.Event) error {
	if ev == nil {
		return fmt.Errorf("publish: nil event")
	}
	if ev.Kind <= 0 {
		return fmt.Errorf("publish: event has no kind")
	}
	if ev.CreatedAt <= 0 {
		return fmt.Errorf("publish: event has no created_at")
	}
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "d" && tag[1] != "" {
			return nil
		}
	}
	return fmt.Errorf("publish: event has no d tag")
}
