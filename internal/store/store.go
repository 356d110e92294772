// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/worldlog/internal/domain"
)

// ErrNotFound is returned when an archived session does not exist.
var ErrNotFound = errors.New("archived session not found")

// Archive keeps the history logs of sessions that have ended.
type Archive interface {
	// SaveSession stores a session together with its entries.
	SaveSession(ctx context.Context, session *domain.ArchivedSession) error

	// ListSessions returns up to limit sessions, newest first, without entries.
	ListSessions(ctx context.Context, limit int) ([]*domain.ArchivedSession, error)

	// GetSession returns one session with its entries in append order.
	GetSession(ctx context.Context, id string) (*domain.ArchivedSession, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
