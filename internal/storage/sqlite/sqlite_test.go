package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/renshs/auth/internal/domain/models"
	"github.com/renshs/auth/internal/storage"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func randomUsername() string {
	return fmt.Sprintf("user_%s", gofakeit.LetterN(10))
}

func TestSaveUser_UniqueUsername(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	username := randomUsername()

	user, err := s.SaveUser(ctx, username, []byte("hash-1"))
	require.NoError(t, err)
	assert.Equal(t, username, user.Username)

	_, err = s.SaveUser(ctx, username, []byte("hash-2"))
	require.ErrorIs(t, err, storage.ErrUserExists)

	// the original record must be untouched
	stored, err := s.User(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, []byte("hash-1"), stored.PassHash)
}

func TestSaveUser_CreatesDefaultAuthState(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	username := randomUsername()
	_, err := s.SaveUser(ctx, username, []byte("hash"))
	require.NoError(t, err)

	state, err := s.AuthState(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, 0, state.FailedAttempts)
	assert.Nil(t, state.LockedUntil)
}

func TestUser_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.User(context.Background(), randomUsername())
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestEnsureAuthState_Idempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	username := randomUsername()
	_, err := s.SaveUser(ctx, username, []byte("hash"))
	require.NoError(t, err)

	// advance the counter, then ensure again: the row must survive
	require.NoError(t, s.CompareAndSwapAuthState(ctx, username,
		models.AuthState{}, models.AuthState{FailedAttempts: 3}))
	require.NoError(t, s.EnsureAuthState(ctx, username))

	state, err := s.AuthState(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, 3, state.FailedAttempts)
}

func TestEnsureAuthState_CreatesMissingRow(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	username := randomUsername()

	_, err := s.AuthState(ctx, username)
	require.ErrorIs(t, err, storage.ErrAuthStateNotFound)

	require.NoError(t, s.EnsureAuthState(ctx, username))

	state, err := s.AuthState(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, 0, state.FailedAttempts)
}

func TestCompareAndSwapAuthState(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	username := randomUsername()
	_, err := s.SaveUser(ctx, username, []byte("hash"))
	require.NoError(t, err)

	lockedUntil := time.Now().Add(5 * time.Minute).UTC()
	next := models.AuthState{FailedAttempts: 5, LockedUntil: &lockedUntil}

	require.NoError(t, s.CompareAndSwapAuthState(ctx, username, models.AuthState{}, next))

	state, err := s.AuthState(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, 5, state.FailedAttempts)
	require.NotNil(t, state.LockedUntil)
	assert.WithinDuration(t, lockedUntil, *state.LockedUntil, time.Second)

	// a write keyed on a state that no longer matches must not apply
	err = s.CompareAndSwapAuthState(ctx, username, models.AuthState{FailedAttempts: 2}, models.AuthState{})
	require.ErrorIs(t, err, storage.ErrStaleState)

	err = s.CompareAndSwapAuthState(ctx, username, models.AuthState{FailedAttempts: 5}, models.AuthState{})
	require.ErrorIs(t, err, storage.ErrStaleState)

	// the matching observation wins
	require.NoError(t, s.CompareAndSwapAuthState(ctx, username, next, models.AuthState{}))

	state, err = s.AuthState(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, 0, state.FailedAttempts)
	assert.Nil(t, state.LockedUntil)
}

func TestEvents_OutboxFlow(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	username := randomUsername()
	user, err := s.SaveUser(ctx, username, []byte("hash"))
	require.NoError(t, err)

	events, err := s.NewEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, storage.EventTypeUserRegistered, events[0].Type)
	assert.Contains(t, events[0].Payload, username)
	assert.Contains(t, events[0].Payload, user.ID.String())

	require.NoError(t, s.SetEventDone(ctx, events[0].ID))

	events, err = s.NewEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
