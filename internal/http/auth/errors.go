package auth

const (
	ErrMalformedRequest       = "malformed request body"
	ErrUsernameRequired       = "username is required"
	ErrPasswordRequired       = "password is required"
	ErrUserExists             = "user already exists"
	ErrUserNotFound           = "user not found"
	ErrAccountTemporaryLocked = "account is temporary locked"
	ErrInternal               = "internal error"

	MsgUserCreated           = "user created"
	MsgAccessGranted         = "access granted"
	MsgInvalidCredentialsFmt = "invalid credentials (%d attempts remaining)"
)
