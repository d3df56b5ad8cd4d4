package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/renshs/auth/internal/domain/converter"
	"github.com/renshs/auth/internal/domain/models"
	"github.com/renshs/auth/internal/storage"
	storageModel "github.com/renshs/auth/internal/storage/model"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	pass_hash  BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS auth_states (
	username        TEXT PRIMARY KEY,
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until    TIMESTAMP
);
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'NEW',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_loc=UTC", storagePath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) SaveUser(ctx context.Context, username string, passHash []byte) (models.User, error) {
	const op = "storage.sqlite.SaveUser"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	user := storageModel.User{}
	row := tx.QueryRowContext(ctx,
		"INSERT INTO users(id,username,pass_hash) VALUES(?,?,?) RETURNING id,username,pass_hash",
		uuid.New(), username, passHash,
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PassHash); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO auth_states(username,failed_attempts,locked_until) VALUES(?,0,NULL)",
		username,
	); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	payload, err := json.Marshal(converter.ToUserEventFromStorage(user))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO events(id,event_type,payload,status) VALUES(?,?,?,?)",
		uuid.New(), storage.EventTypeUserRegistered, string(payload), storageModel.EventStatusNew,
	); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToUserFromStorage(user), nil
}

func (s *Storage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.sqlite.User"

	row := s.db.QueryRowContext(ctx, "SELECT id,username,pass_hash FROM users WHERE username=?", username)

	var user storageModel.User
	if err := row.Scan(&user.ID, &user.Username, &user.PassHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToUserFromStorage(user), nil
}

func (s *Storage) EnsureAuthState(ctx context.Context, username string) error {
	const op = "storage.sqlite.EnsureAuthState"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_states(username,failed_attempts,locked_until) VALUES(?,0,NULL) ON CONFLICT(username) DO NOTHING",
		username,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) AuthState(ctx context.Context, username string) (models.AuthState, error) {
	const op = "storage.sqlite.AuthState"

	row := s.db.QueryRowContext(ctx,
		"SELECT username,failed_attempts,locked_until FROM auth_states WHERE username=?",
		username,
	)

	var state storageModel.AuthState
	if err := row.Scan(&state.Username, &state.FailedAttempts, &state.LockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AuthState{}, fmt.Errorf("%s: %w", op, storage.ErrAuthStateNotFound)
		}
		return models.AuthState{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToAuthStateFromStorage(state), nil
}

// CompareAndSwapAuthState applies next only while the stored row still matches
// old on (failed_attempts, lockedness). The lockout timestamp itself is not
// part of the predicate: two states with equal counters that are both locked
// are interchangeable for the decision logic, and keeping the timestamp out
// avoids round-trip formatting mismatches.
func (s *Storage) CompareAndSwapAuthState(ctx context.Context, username string, old, next models.AuthState) error {
	const op = "storage.sqlite.CompareAndSwapAuthState"

	res, err := s.db.ExecContext(ctx,
		`UPDATE auth_states SET failed_attempts=?, locked_until=?
		 WHERE username=? AND failed_attempts=? AND (locked_until IS NULL)=(? IS NULL)`,
		next.FailedAttempts, nullTime(next.LockedUntil),
		username, old.FailedAttempts, nullTime(old.LockedUntil),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
	}

	return nil
}

func (s *Storage) NewEvents(ctx context.Context, limit int) ([]models.Event, error) {
	const op = "storage.sqlite.NewEvents"

	rows, err := s.db.QueryContext(ctx,
		"SELECT id,event_type,payload,status,created_at FROM events WHERE status=? ORDER BY created_at LIMIT ?",
		storageModel.EventStatusNew, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var events []storageModel.Event
	for rows.Next() {
		var event storageModel.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Payload, &event.Status, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToEventsFromStorage(events), nil
}

func (s *Storage) SetEventDone(ctx context.Context, eventID uuid.UUID) error {
	const op = "storage.sqlite.SetEventDone"

	if _, err := s.db.ExecContext(ctx,
		"UPDATE events SET status=? WHERE id=?",
		storageModel.EventStatusDone, eventID,
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Close() {
	s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
