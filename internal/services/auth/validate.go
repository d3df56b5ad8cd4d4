package auth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 32
	passwordMinLen = 6
	passwordMaxLen = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func newValidator() *validator.Validate {
	v := validator.New()
	// never errors for a non-empty tag on a fresh instance
	_ = v.RegisterValidation("username_chars", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateCredentials checks the registration constraints and returns the
// trimmed username. The first violated constraint is reported.
func (a *Auth) validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)

	if username == "" {
		return "", &ValidationError{Reason: "username is required"}
	}
	if n := utf8.RuneCountInString(username); n < usernameMinLen || n > usernameMaxLen {
		return "", &ValidationError{
			Reason: fmt.Sprintf("username must be %d-%d characters", usernameMinLen, usernameMaxLen),
		}
	}
	if err := a.validator.Var(username, "username_chars"); err != nil {
		return "", &ValidationError{Reason: "username may only contain letters, digits, '.', '_' and '-'"}
	}
	if n := len(password); n < passwordMinLen || n > passwordMaxLen {
		return "", &ValidationError{
			Reason: fmt.Sprintf("password must be %d-%d characters", passwordMinLen, passwordMaxLen),
		}
	}

	return username, nil
}
