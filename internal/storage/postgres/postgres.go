package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/renshs/auth/internal/domain/converter"
	"github.com/renshs/auth/internal/domain/models"
	"github.com/renshs/auth/internal/storage"
	storageModel "github.com/renshs/auth/internal/storage/model"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Storage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, dbAddr string) (*Storage, error) {
	const op = "storage.postgres.New"

	dbpool, err := pgxpool.New(ctx, dbAddr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{dbpool: dbpool}, nil
}

func (s *Storage) SaveUser(ctx context.Context, username string, passHash []byte) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	query := "INSERT INTO users(id,username,pass_hash) VALUES(@userId,@userName,@userPassHash) RETURNING id,username,pass_hash"
	args := pgx.NamedArgs{
		"userId":       uuid.New(),
		"userName":     username,
		"userPassHash": passHash,
	}

	user := storageModel.User{}
	if err := tx.QueryRow(ctx, query, args).Scan(&user.ID, &user.Username, &user.PassHash); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO auth_states(username,failed_attempts,locked_until) VALUES($1,0,NULL)",
		username,
	); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	payload, err := json.Marshal(converter.ToUserEventFromStorage(user))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO events(id,event_type,payload,status) VALUES($1,$2,$3,$4)",
		uuid.New(), storage.EventTypeUserRegistered, string(payload), storageModel.EventStatusNew,
	); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToUserFromStorage(user), nil
}

func (s *Storage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.postgres.User"

	var user storageModel.User
	err := s.dbpool.QueryRow(ctx,
		"SELECT id,username,pass_hash FROM users WHERE username=$1", username,
	).Scan(&user.ID, &user.Username, &user.PassHash)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToUserFromStorage(user), nil
}

func (s *Storage) EnsureAuthState(ctx context.Context, username string) error {
	const op = "storage.postgres.EnsureAuthState"

	_, err := s.dbpool.Exec(ctx,
		"INSERT INTO auth_states(username,failed_attempts,locked_until) VALUES($1,0,NULL) ON CONFLICT (username) DO NOTHING",
		username,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) AuthState(ctx context.Context, username string) (models.AuthState, error) {
	const op = "storage.postgres.AuthState"

	var state storageModel.AuthState
	err := s.dbpool.QueryRow(ctx,
		"SELECT username,failed_attempts,locked_until FROM auth_states WHERE username=$1", username,
	).Scan(&state.Username, &state.FailedAttempts, &state.LockedUntil)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AuthState{}, fmt.Errorf("%s: %w", op, storage.ErrAuthStateNotFound)
		}
		return models.AuthState{}, fmt.Errorf("%s: %w", op, err)
	}

	return converter.ToAuthStateFromStorage(state), nil
}

// CompareAndSwapAuthState applies next only while the row still matches old on
// (failed_attempts, lockedness). See the sqlite implementation for why the
// lockout timestamp stays out of the predicate.
func (s *Storage) CompareAndSwapAuthState(ctx context.Context, username string, old, next models.AuthState) error {
	const op = "storage.postgres.CompareAndSwapAuthState"

	tag, err := s.dbpool.Exec(ctx,
		`UPDATE auth_states SET failed_attempts=$1, locked_until=$2
		 WHERE username=$3 AND failed_attempts=$4 AND (locked_until IS NULL)=($5::timestamptz IS NULL)`,
		next.FailedAttempts, next.LockedUntil,
		username, old.FailedAttempts, old.LockedUntil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
	}

	return nil
}

func (s *Storage) NewEvents(ctx context.Context, limit int) ([]models.Event, error) {
	const op = "storage.postgres.NewEvents"

	rows, err := s.dbpool.Query(ctx,
		"SELECT id,event_type,payload,status,created_at FROM events WHERE status=$1 ORDER BY created_at LIMIT $2",
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
	const op = "storage.postgres.SetEventDone"

	if _, err := s.dbpool.Exec(ctx,
		"UPDATE events SET status=$1 WHERE id=$2",
		storageModel.EventStatusDone, eventID,
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Close() {
	s.dbpool.Close()
}
