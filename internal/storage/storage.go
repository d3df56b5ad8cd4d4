package storage

import (
	"context"
	"errors"

	"github.com/renshs/auth/internal/domain/models"
	"github.com/google/uuid"
)

const EventTypeUserRegistered = "user_registered"

var (
	ErrUserExists        = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrAuthStateNotFound = errors.New("auth state not found")
	// ErrStaleState is returned by CompareAndSwapAuthState when the row no
	// longer matches the observed state; the caller re-reads and retries.
	ErrStaleState = errors.New("auth state changed concurrently")
)

// Storage is the full persistence surface backing the service. Both the
// sqlite and postgres implementations satisfy it.
type Storage interface {
	SaveUser(ctx context.Context, username string, passHash []byte) (models.User, error)
	User(ctx context.Context, username string) (models.User, error)

	AttemptStore

	NewEvents(ctx context.Context, limit int) ([]models.Event, error)
	SetEventDone(ctx context.Context, eventID uuid.UUID) error

	Close()
}

// AttemptStore persists per-user AuthState rows. CompareAndSwapAuthState is
// the lost-update guard: the write applies only while the stored row still
// matches old, otherwise ErrStaleState.
type AttemptStore interface {
	EnsureAuthState(ctx context.Context, username string) error
	AuthState(ctx context.Context, username string) (models.AuthState, error)
	CompareAndSwapAuthState(ctx context.Context, username string, old, next models.AuthState) error
}
