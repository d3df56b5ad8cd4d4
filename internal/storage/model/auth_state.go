package model

import "database/sql"

type AuthState struct {
	Username       string       `db:"username"`
	FailedAttempts int          `db:"failed_attempts"`
	LockedUntil    sql.NullTime `db:"locked_until"`
}
