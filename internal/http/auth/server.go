package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/renshs/auth/internal/domain/models"
	"github.com/renshs/auth/internal/lib/logger/sl"
	authservice "github.com/renshs/auth/internal/services/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthService interface {
	RegisterNewUser(ctx context.Context, username string, password string) (userID uuid.UUID, err error)
	Login(ctx context.Context, username string, password string) (models.LoginDecision, error)
}

type ServerAPI struct {
	log         *slog.Logger
	authService AuthService
}

func InitializeServerAPI(log *slog.Logger, authService AuthService) *ServerAPI {
	return &ServerAPI{
		log:         log,
		authService: authService,
	}
}

func (s *ServerAPI) RegisterRoutes(r gin.IRouter) {
	r.POST("/register", s.Register)
	r.POST("/login", s.Login)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// response is the semantic payload of both endpoints. LockedUntil is RFC 3339
// on the wire and present only for lockout denials.
type response struct {
	OK          bool       `json:"ok"`
	Message     string     `json:"message"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

func deny(message string) response {
	return response{OK: false, Message: message}
}

func (s *ServerAPI) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, deny(ErrMalformedRequest))
		return
	}

	if msg := validateCredentialsReq(req); msg != "" {
		c.JSON(http.StatusBadRequest, deny(msg))
		return
	}

	_, err := s.authService.RegisterNewUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		var validationErr *authservice.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, deny(validationErr.Reason))
			return
		}

		if errors.Is(err, authservice.ErrUserExists) {
			c.JSON(http.StatusConflict, deny(ErrUserExists))
			return
		}

		s.log.Error("register failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, deny(ErrInternal))
		return
	}

	c.JSON(http.StatusCreated, response{OK: true, Message: MsgUserCreated})
}

func (s *ServerAPI) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, deny(ErrMalformedRequest))
		return
	}

	if msg := validateCredentialsReq(req); msg != "" {
		c.JSON(http.StatusBadRequest, deny(msg))
		return
	}

	decision, err := s.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.log.Error("login failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, deny(ErrInternal))
		return
	}

	switch decision.Outcome {
	case models.OutcomeAllowed:
		c.JSON(http.StatusOK, response{OK: true, Message: MsgAccessGranted})
	case models.OutcomeUnknownUser:
		c.JSON(http.StatusUnauthorized, deny(ErrUserNotFound))
	case models.OutcomeWrongPassword:
		c.JSON(http.StatusUnauthorized,
			deny(fmt.Sprintf(MsgInvalidCredentialsFmt, decision.AttemptsRemaining)))
	case models.OutcomeLocked:
		lockedUntil := decision.LockedUntil
		c.JSON(http.StatusLocked, response{
			OK:          false,
			Message:     ErrAccountTemporaryLocked,
			LockedUntil: &lockedUntil,
		})
	default:
		s.log.Error("unexpected login outcome", slog.Int("outcome", int(decision.Outcome)))
		c.JSON(http.StatusInternalServerError, deny(ErrInternal))
	}
}
