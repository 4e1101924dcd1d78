package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// EnqueueOutbox records a signed event as awaiting relay delivery.
// Uses ON CONFLICT(event_id) DO NOTHING for idempotency - re-queueing an
// event that is already queued (or already acked) is a no-op.
//
// The outbox row is the durability guarantee behind confirmed-mode
// publishing: once this write commits, loss of network connectivity
// cannot lose the event.
func (s *Store) EnqueueOutbox(ctx context.Context, ev *nostr.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("enqueue outbox %s: marshal: %w", ev.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outbox (event_id, raw, queued_at)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, ev.ID, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("enqueue outbox %s: insert: %w", ev.ID, err)
	}

	return nil
}

// PendingOutbox returns unacked events in queue order (oldest first).
// Returns an empty slice (not nil) when the outbox is drained.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]*nostr.Event, error) {
	query := `
		SELECT raw FROM outbox
		WHERE acked_at IS NULL
		ORDER BY queued_at ASC, event_id ASC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pending outbox: %w", err)
	}
	defer rows.Close()

	events := []*nostr.Event{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("pending outbox: scan: %w", err)
		}
		var ev nostr.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("pending outbox: unmarshal: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending outbox: iterate: %w", err)
	}

	return events, nil
}

// MarkOutboxAcked records that at least one relay accepted the event.
func (s *Store) MarkOutboxAcked(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET acked_at = ? WHERE event_id = ? AND acked_at IS NULL
	`, time.Now().Unix(), eventID)
	if err != nil {
		return fmt.Errorf("mark outbox acked %s: %w", eventID, err)
	}
	return nil
}

// BumpOutboxAttempt increments the delivery attempt counter.
func (s *Store) BumpOutboxAttempt(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1 WHERE event_id = ?
	`, eventID)
	if err != nil {
		return fmt.Errorf("bump outbox attempt %s: %w", eventID, err)
	}
	return nil
}

// OutboxDepth returns the number of unacked events.
func (s *Store) OutboxDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox WHERE acked_at IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outbox depth: %w", err)
	}
	return n, nil
}
