package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/renshs/auth/internal/domain/models"
	"github.com/renshs/auth/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Storage keeps AuthState records in redis, one JSON value per user. Writes
// go through WATCH/MULTI so a concurrent update aborts the transaction and
// surfaces as ErrStaleState, same contract as the SQL stores.
type Storage struct {
	client *redis.Client
}

type authStateRecord struct {
	FailedAttempts int     `json:"failed_attempts"`
	LockedUntil    *string `json:"locked_until"`
}

func New(addr string) *Storage {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	return &Storage{client: client}
}

func stateKey(username string) string {
	return fmt.Sprintf("authState:%s", username)
}

func encodeState(state models.AuthState) ([]byte, error) {
	record := authStateRecord{FailedAttempts: state.FailedAttempts}
	if state.LockedUntil != nil {
		lockedUntil := state.LockedUntil.UTC().Format(time.RFC3339Nano)
		record.LockedUntil = &lockedUntil
	}
	return json.Marshal(record)
}

func decodeState(data string) (models.AuthState, error) {
	var record authStateRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return models.AuthState{}, err
	}

	state := models.AuthState{FailedAttempts: record.FailedAttempts}
	if record.LockedUntil != nil {
		lockedUntil, err := time.Parse(time.RFC3339Nano, *record.LockedUntil)
		if err != nil {
			return models.AuthState{}, err
		}
		state.LockedUntil = &lockedUntil
	}

	return state, nil
}

func (s *Storage) EnsureAuthState(ctx context.Context, username string) error {
	const op = "storage.redis.EnsureAuthState"

	data, err := encodeState(models.AuthState{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// no TTL: the throttle record must outlive any lockout window
	if err := s.client.SetNX(ctx, stateKey(username), data, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) AuthState(ctx context.Context, username string) (models.AuthState, error) {
	const op = "storage.redis.AuthState"

	data, err := s.client.Get(ctx, stateKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.AuthState{}, fmt.Errorf("%s: %w", op, storage.ErrAuthStateNotFound)
		}
		return models.AuthState{}, fmt.Errorf("%s: %w", op, err)
	}

	state, err := decodeState(data)
	if err != nil {
		return models.AuthState{}, fmt.Errorf("%s: %w", op, err)
	}

	return state, nil
}

func (s *Storage) CompareAndSwapAuthState(ctx context.Context, username string, old, next models.AuthState) error {
	const op = "storage.redis.CompareAndSwapAuthState"

	key := stateKey(username)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return storage.ErrStaleState
			}
			return err
		}

		current, err := decodeState(data)
		if err != nil {
			return err
		}

		if current.FailedAttempts != old.FailedAttempts ||
			(current.LockedUntil == nil) != (old.LockedUntil == nil) {
			return storage.ErrStaleState
		}

		encoded, err := encodeState(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Stop() error {
	const op = "storage.redis.Stop"

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
