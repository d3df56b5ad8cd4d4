package models

import "github.com/google/uuid"

type User struct {
	ID       uuid.UUID
	Username string
	PassHash []byte
}

type UserEvent struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}
