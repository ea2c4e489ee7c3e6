// Package store persists encoded drawing state by logical id. The sync core
// is written against the Store interface only; backend choice (Postgres or
// local files) is a deployment-time decision.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no state has been stored for the id.
var ErrNotFound = errors.New("store: not found")

type Store interface {
	// Load returns the latest stored state for the id, or ErrNotFound.
	Load(ctx context.Context, id string) ([]byte, error)

	// Save replaces the stored state for the id.
	Save(ctx context.Context, id string, state []byte) error
}
