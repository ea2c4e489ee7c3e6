package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"

	"sketchsync/pkg/logger"
)

// PostgresStore keeps drawing state in the drawings table, base64-encoded in
// a text column. Rows are created by the drawings API; the sync core only
// ever updates them, so saving an id with no row affects zero rows and the
// state stays in memory until the room is recreated through the API.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Load(ctx context.Context, id string) ([]byte, error) {
	var encoded string
	err := s.DB.QueryRowContext(ctx, "SELECT state FROM drawings WHERE id = $1", id).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load drawing %s: %w", id, err)
	}
	if encoded == "" {
		return nil, ErrNotFound
	}

	state, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode drawing %s: %w", id, err)
	}
	return state, nil
}

func (s *PostgresStore) Save(ctx context.Context, id string, state []byte) error {
	encoded := base64.StdEncoding.EncodeToString(state)
	res, err := s.DB.ExecContext(ctx,
		`UPDATE drawings SET state = $1, updated_at = NOW() WHERE id = $2`, encoded, id)
	if err != nil {
		return fmt.Errorf("save drawing %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		logger.Sugar.Debugf("No drawing row for %s, state not persisted", id)
	}
	return nil
}
