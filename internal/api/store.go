package api

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) GetPrincipalByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	var p Principal
	var address string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, address, plan, status, created_at, updated_at
		FROM api.principals
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Role, &address, &p.Plan, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("principal %s has malformed address %q", id, address)
	}
	p.Address = common.HexToAddress(address)
	return &p, nil
}

func (s *PostgresStore) GetActiveAPIKey(ctx context.Context, principalID uuid.UUID) (*APIKey, error) {
	var k APIKey
	err := s.db.QueryRowContext(ctx, `
		SELECT id, principal_id, public_key, label, created_at, revoked, revoked_at
		FROM api.api_keys
		WHERE principal_id = $1 AND revoked = false
		ORDER BY created_at DESC
		LIMIT 1
	`, principalID).Scan(&k.ID, &k.PrincipalID, &k.PublicKey, &k.Label, &k.CreatedAt, &k.Revoked, &k.RevokedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) CheckRequestID(ctx context.Context, requestID uuid.UUID, principalID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM api.request_ids WHERE request_id = $1 AND principal_id = $2)
	`, requestID, principalID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) StoreRequestID(ctx context.Context, requestID uuid.UUID, principalID uuid.UUID, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api.request_ids (request_id, principal_id, seen_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, requestID, principalID, s.now(), expiresAt)
	return err
}
