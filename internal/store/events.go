package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// addressable reports whether a kind is parameterized-replaceable:
// identified by (kind, pubkey, d-tag), newest created_at wins.
func addressable(kind int) bool {
	return kind >= 30000 && kind < 40000
}

// dTag extracts the d tag value of an event, empty if absent.
func dTag(ev *nostr.Event) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			return tag[1]
		}
	}
	return ""
}

// SaveEvent inserts an event into the cache.
//
// For addressable kinds the (kind, pubkey, d-tag) triple is the identity:
// an incoming event older than (or the same age as) the cached version is
// dropped, a newer one replaces it. Non-addressable events insert by id
// with ON CONFLICT DO NOTHING for idempotency.
//
// Returns whether the event is now the cached version.
func (s *Store) SaveEvent(ctx context.Context, ev *nostr.Event) (bool, error) {
	tagsJSON, err := json.Marshal(ev.Tags)
	if err != nil {
		return false, fmt.Errorf("save event %s: marshal tags: %w", ev.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("save event %s: begin tx: %w", ev.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	d := dTag(ev)
	if addressable(ev.Kind) {
		var existingID string
		var existingCreatedAt int64
		err := tx.QueryRowContext(ctx, `
			SELECT id, created_at FROM events
			WHERE kind = ? AND pubkey = ? AND d_tag = ?
		`, ev.Kind, ev.PubKey, d).Scan(&existingID, &existingCreatedAt)
		switch {
		case err == nil:
			if existingCreatedAt >= int64(ev.CreatedAt) {
				// Cached version is newer or same age - keep it.
				return existingID == ev.ID, nil
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, existingID); err != nil {
				return false, fmt.Errorf("save event %s: evict superseded: %w", ev.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			// First version of this triple.
		default:
			return false, fmt.Errorf("save event %s: lookup: %w", ev.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, kind, pubkey, d_tag, created_at, content, tags, sig)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Kind,
		ev.PubKey,
		d,
		int64(ev.CreatedAt),
		ev.Content,
		string(tagsJSON),
		ev.Sig,
	)
	if err != nil {
		return false, fmt.Errorf("save event %s: insert: %w", ev.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("save event %s: commit: %w", ev.ID, err)
	}

	return true, nil
}

// QueryEvents returns cached events matching any of the given filters.
// Results are deduplicated by id and ordered deterministically:
// created_at DESC, id ASC.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryEvents(ctx context.Context, filters ...nostr.Filter) ([]*nostr.Event, error) {
	seen := make(map[string]bool)
	events := []*nostr.Event{}

	for _, f := range filters {
		matched, err := s.queryFilter(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, ev := range matched {
			if !seen[ev.ID] {
				seen[ev.ID] = true
				events = append(events, ev)
			}
		}
	}

	return events, nil
}

// queryFilter executes a single filter against the cache.
// Kind, author, id, #d, and since/until constraints are pushed into SQL.
func (s *Store) queryFilter(ctx context.Context, f nostr.Filter) ([]*nostr.Event, error) {
	var conds []string
	var args []any

	if len(f.IDs) > 0 {
		conds = append(conds, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(f.Kinds) > 0 {
		conds = append(conds, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if len(f.Authors) > 0 {
		conds = append(conds, "pubkey IN ("+placeholders(len(f.Authors))+")")
		for _, a := range f.Authors {
			args = append(args, a)
		}
	}
	if dTags := f.Tags["d"]; len(dTags) > 0 {
		conds = append(conds, "d_tag IN ("+placeholders(len(dTags))+")")
		for _, d := range dTags {
			args = append(args, d)
		}
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, int64(*f.Since))
	}
	if f.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, int64(*f.Until))
	}

	query := "SELECT id, kind, pubkey, created_at, content, tags, sig FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*nostr.Event
	for rows.Next() {
		var ev nostr.Event
		var createdAt int64
		var tagsJSON string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.PubKey, &createdAt, &ev.Content, &tagsJSON, &ev.Sig); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &ev.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags for %s: %w", ev.ID, err)
		}
		ev.CreatedAt = nostr.Timestamp(createdAt)
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
