package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type AuditEntry struct {
	Event      string
	Actor      *string
	Severity   string
	DurationMs *int
	Outcome    string
	Metadata   map[string]interface{}
	ErrorCode  *string
}

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// LogAudit writes the map form produced by the router and gateway.
func (s *AuditStore) LogAudit(ctx context.Context, entry map[string]interface{}) error {
	return s.Write(ctx, entryFromMap(entry))
}

func (s *AuditStore) Write(ctx context.Context, e *AuditEntry) error {
	var metaJSON []byte
	if e.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO feed.audit
			(event, actor, severity, duration_ms, outcome, metadata, error_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.Event, e.Actor, e.Severity, e.DurationMs, e.Outcome, metaJSON, e.ErrorCode,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit: %w", err)
	}
	return nil
}

// PurgeAudit drops info-level entries older than retention. Warn and critical
// entries are kept.
func (s *AuditStore) PurgeAudit(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM feed.audit
		WHERE severity = 'info' AND created_at < $1
	`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// PurgeRequestIDs drops API replay-protection ids past their expiry.
func (s *AuditStore) PurgeRequestIDs(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api.request_ids WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge request ids: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func entryFromMap(m map[string]interface{}) *AuditEntry {
	e := &AuditEntry{
		Event:    getString(m, "event"),
		Severity: getString(m, "severity"),
		Outcome:  getString(m, "outcome"),
		Metadata: getMap(m, "metadata"),
	}
	if e.Severity == "" {
		e.Severity = "info"
	}
	if ms, ok := m["duration_ms"].(int); ok {
		e.DurationMs = &ms
	}
	if ec, ok := m["error_code"].(string); ok {
		e.ErrorCode = &ec
	}
	if actor, ok := m["actor"].(string); ok {
		e.Actor = &actor
	} else if caller, ok := e.Metadata["caller"].(string); ok {
		e.Actor = &caller
	}
	return e
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}
