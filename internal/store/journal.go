package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lucendex/crossroute/internal/events"
)

var ErrNoFeed = errors.New("no feed recorded")

// Journal appends gateway events to feed.events. Each gateway process writes
// under its own feed id, so a feed always starts at seq 1 with the startup
// admin events and can be replayed on its own.
type Journal struct {
	db     *sql.DB
	feedID string
}

func NewJournal(db *sql.DB, feedID string) *Journal {
	return &Journal{db: db, feedID: feedID}
}

func (j *Journal) FeedID() string {
	return j.feedID
}

// Publish implements events.Sink. Redelivered events are ignored.
func (j *Journal) Publish(ctx context.Context, ev events.Event) error {
	return j.Append(ctx, j.feedID, ev)
}

func (j *Journal) Append(ctx context.Context, feedID string, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	query := `
		INSERT INTO feed.events (event_id, feed_id, seq, kind, emitted_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err = j.db.ExecContext(ctx, query, ev.ID, feedID, int64(ev.Seq), string(ev.Kind), ev.Time, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append event %d: %w", ev.Seq, err)
	}
	return nil
}

// Load returns every event of feedID in sequence order.
func (j *Journal) Load(ctx context.Context, feedID string) ([]events.Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT payload
		FROM feed.events
		WHERE feed_id = $1
		ORDER BY seq ASC
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed %s: %w", feedID, err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := events.Decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feedID, err)
	}
	return out, nil
}

// LatestFeed returns the feed with the most recent event.
func (j *Journal) LatestFeed(ctx context.Context) (string, error) {
	var feedID string
	err := j.db.QueryRowContext(ctx, `
		SELECT feed_id
		FROM feed.events
		ORDER BY emitted_at DESC, seq DESC
		LIMIT 1
	`).Scan(&feedID)

	if err == sql.ErrNoRows {
		return "", ErrNoFeed
	}
	if err != nil {
		return "", fmt.Errorf("failed to find latest feed: %w", err)
	}
	return feedID, nil
}

func (j *Journal) LastSeq(ctx context.Context, feedID string) (uint64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM feed.events WHERE feed_id = $1
	`, feedID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read last seq: %w", err)
	}
	return uint64(seq), nil
}
