package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/renshs/auth/internal/domain/models"
	authservice "github.com/renshs/auth/internal/services/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthService struct {
	registerErr error
	decision    models.LoginDecision
	loginErr    error
}

func (s *stubAuthService) RegisterNewUser(_ context.Context, _, _ string) (uuid.UUID, error) {
	if s.registerErr != nil {
		return uuid.Nil, s.registerErr
	}
	return uuid.New(), nil
}

func (s *stubAuthService) Login(_ context.Context, _, _ string) (models.LoginDecision, error) {
	return s.decision, s.loginErr
}

func newTestRouter(service AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	server := InitializeServerAPI(slog.New(slog.NewTextHandler(io.Discard, nil)), service)
	server.RegisterRoutes(engine)

	return engine
}

func doRequest(t *testing.T, router *gin.Engine, path string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return rec, resp
}

func TestRegister_Created(t *testing.T) {
	router := newTestRouter(&stubAuthService{})

	rec, resp := doRequest(t, router, "/register", gin.H{"username": "alice", "password": "secret1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.OK)
	assert.Equal(t, MsgUserCreated, resp.Message)
}

func TestRegister_MissingFields(t *testing.T) {
	router := newTestRouter(&stubAuthService{})

	tests := []struct {
		name    string
		body    gin.H
		wantMsg string
	}{
		{name: "missing username", body: gin.H{"password": "secret1"}, wantMsg: ErrUsernameRequired},
		{name: "missing password", body: gin.H{"username": "alice"}, wantMsg: ErrPasswordRequired},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec, resp := doRequest(t, router, "/register", test.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.OK)
			assert.Equal(t, test.wantMsg, resp.Message)
		})
	}
}

func TestRegister_MalformedBody(t *testing.T) {
	router := newTestRouter(&stubAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader([]byte("not-json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_ValidationError(t *testing.T) {
	router := newTestRouter(&stubAuthService{
		registerErr: &authservice.ValidationError{Reason: "username must be 3-32 characters"},
	})

	rec, resp := doRequest(t, router, "/register", gin.H{"username": "ab", "password": "secret1"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "username must be 3-32 characters", resp.Message)
}

func TestRegister_Duplicate(t *testing.T) {
	router := newTestRouter(&stubAuthService{registerErr: authservice.ErrUserExists})

	rec, resp := doRequest(t, router, "/register", gin.H{"username": "alice", "password": "secret1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrUserExists, resp.Message)
}

func TestRegister_InternalError(t *testing.T) {
	router := newTestRouter(&stubAuthService{registerErr: errors.New("db down")})

	rec, resp := doRequest(t, router, "/register", gin.H{"username": "alice", "password": "secret1"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrInternal, resp.Message)
}

func TestLogin_Allowed(t *testing.T) {
	router := newTestRouter(&stubAuthService{
		decision: models.LoginDecision{Outcome: models.OutcomeAllowed},
	})

	rec, resp := doRequest(t, router, "/login", gin.H{"username": "alice", "password": "secret1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.OK)
	assert.Equal(t, MsgAccessGranted, resp.Message)
}

func TestLogin_UnknownUser(t *testing.T) {
	router := newTestRouter(&stubAuthService{
		decision: models.LoginDecision{Outcome: models.OutcomeUnknownUser},
	})

	rec, resp := doRequest(t, router, "/login", gin.H{"username": "ghost", "password": "secret1"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrUserNotFound, resp.Message)
}

func TestLogin_WrongPassword(t *testing.T) {
	router := newTestRouter(&stubAuthService{
		decision: models.LoginDecision{Outcome: models.OutcomeWrongPassword, AttemptsRemaining: 3},
	})

	rec, resp := doRequest(t, router, "/login", gin.H{"username": "alice", "password": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials (3 attempts remaining)", resp.Message)
	assert.Nil(t, resp.LockedUntil)
}

func TestLogin_Locked(t *testing.T) {
	lockedUntil := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	router := newTestRouter(&stubAuthService{
		decision: models.LoginDecision{Outcome: models.OutcomeLocked, LockedUntil: lockedUntil},
	})

	rec, resp := doRequest(t, router, "/login", gin.H{"username": "alice", "password": "secret1"})

	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, ErrAccountTemporaryLocked, resp.Message)
	require.NotNil(t, resp.LockedUntil)
	assert.True(t, resp.LockedUntil.Equal(lockedUntil))
}

func TestLogin_InternalError(t *testing.T) {
	router := newTestRouter(&stubAuthService{loginErr: errors.New("storage unavailable")})

	rec, resp := doRequest(t, router, "/login", gin.H{"username": "alice", "password": "secret1"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrInternal, resp.Message)
}
