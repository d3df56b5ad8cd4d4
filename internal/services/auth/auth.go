package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/renshs/auth/internal/domain/models"
	"github.com/renshs/auth/internal/lib/logger/sl"
	"github.com/renshs/auth/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
)

const (
	// bcrypt work factor for stored password hashes
	passHashCost = bcrypt.DefaultCost

	casMaxRetries = 3
	casRetryDelay = 5 * time.Millisecond
)

type Auth struct {
	log          *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	attempts     storage.AttemptStore
	maxFailed    int
	lockDuration time.Duration
	validator    *validator.Validate

	failedLogins *prometheus.CounterVec
	lockouts     prometheus.Counter
}

type UserSaver interface {
	SaveUser(ctx context.Context, username string, passHash []byte) (user models.User, err error)
}

type UserProvider interface {
	User(ctx context.Context, username string) (models.User, error)
}

// New returns a new instance of the Auth service
func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	attempts storage.AttemptStore,
	maxFailed int,
	lockDuration time.Duration,
	failedLogins *prometheus.CounterVec,
	lockouts prometheus.Counter,
) *Auth {
	return &Auth{
		log:          log,
		userSaver:    userSaver,
		userProvider: userProvider,
		attempts:     attempts,
		maxFailed:    maxFailed,
		lockDuration: lockDuration,
		validator:    newValidator(),
		failedLogins: failedLogins,
		lockouts:     lockouts,
	}
}

func (a *Auth) RegisterNewUser(ctx context.Context, username string, password string) (uuid.UUID, error) {
	const op = "auth.RegisterNewUser"
	log := a.log.With(slog.String("op", op))
	log.Info("registering new user")

	username, err := a.validateCredentials(username, password)
	if err != nil {
		log.Warn("registration rejected", sl.Err(err))
		return uuid.Nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), passHashCost)
	if err != nil {
		log.Error("failed to generate passwordHash", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.userSaver.SaveUser(ctx, username, passwordHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user exists", sl.Err(err))
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("username", user.Username))

	return user.ID, nil
}

// Login runs one pass of the throttling state machine for the attempt and
// returns the decision. Allow, deny and locked are all decisions, not errors;
// an error means the attempt could not be processed and nothing was written.
func (a *Auth) Login(ctx context.Context, username string, password string) (models.LoginDecision, error) {
	const op = "auth.Login"

	username = strings.TrimSpace(username)
	log := a.log.With(slog.String("op", op), slog.String("username", username))
	log.Info("login attempt")

	user, err := a.userProvider.User(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.LoginDecision{Outcome: models.OutcomeUnknownUser}, nil
		}

		log.Error("failed to get user", sl.Err(err))
		return models.LoginDecision{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.attempts.EnsureAuthState(ctx, username); err != nil {
		log.Error("failed to ensure auth state", sl.Err(err))
		return models.LoginDecision{}, fmt.Errorf("%s: %w", op, err)
	}

	var decision models.LoginDecision
	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		d, err := a.attempt(ctx, user, password)
		if err != nil {
			if errors.Is(err, storage.ErrStaleState) {
				return retry.RetryableError(err)
			}
			return err
		}

		decision = d
		return nil
	})
	if err != nil {
		log.Error("failed to process login attempt", sl.Err(err))
		return models.LoginDecision{}, fmt.Errorf("%s: %w", op, err)
	}

	switch decision.Outcome {
	case models.OutcomeAllowed:
		log.Info("login allowed")
	case models.OutcomeWrongPassword:
		log.Warn("invalid credentials", slog.Int("attempts_remaining", decision.AttemptsRemaining))
	case models.OutcomeLocked:
		log.Warn("account locked", slog.Time("locked_until", decision.LockedUntil))
	}

	return decision, nil
}

// attempt is one read-decide-write pass. Every write is a compare-and-swap
// against the state read at the top of the pass; storage.ErrStaleState means
// a concurrent attempt won the write and the whole pass must be repeated.
func (a *Auth) attempt(ctx context.Context, user models.User, password string) (models.LoginDecision, error) {
	state, err := a.attempts.AuthState(ctx, user.Username)
	if err != nil {
		return models.LoginDecision{}, err
	}

	now := time.Now()

	if state.LockedUntil != nil {
		if state.Locked(now) {
			return models.LoginDecision{Outcome: models.OutcomeLocked, LockedUntil: *state.LockedUntil}, nil
		}

		// lockout expired: clear the record before re-processing
		cleared := models.AuthState{}
		if err := a.attempts.CompareAndSwapAuthState(ctx, user.Username, state, cleared); err != nil {
			return models.LoginDecision{}, err
		}
		state = cleared
	}

	if bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)) == nil {
		if err := a.attempts.CompareAndSwapAuthState(ctx, user.Username, state, models.AuthState{}); err != nil {
			return models.LoginDecision{}, err
		}
		return models.LoginDecision{Outcome: models.OutcomeAllowed}, nil
	}

	failed := state.FailedAttempts + 1

	if failed >= a.maxFailed {
		lockedUntil := now.Add(a.lockDuration)
		next := models.AuthState{FailedAttempts: failed, LockedUntil: &lockedUntil}
		if err := a.attempts.CompareAndSwapAuthState(ctx, user.Username, state, next); err != nil {
			return models.LoginDecision{}, err
		}

		a.failedLogins.WithLabelValues(user.Username).Inc()
		a.lockouts.Inc()
		return models.LoginDecision{Outcome: models.OutcomeLocked, LockedUntil: lockedUntil}, nil
	}

	next := models.AuthState{FailedAttempts: failed}
	if err := a.attempts.CompareAndSwapAuthState(ctx, user.Username, state, next); err != nil {
		return models.LoginDecision{}, err
	}

	a.failedLogins.WithLabelValues(user.Username).Inc()
	return models.LoginDecision{
		Outcome:           models.OutcomeWrongPassword,
		AttemptsRemaining: a.maxFailed - failed,
	}, nil
}
