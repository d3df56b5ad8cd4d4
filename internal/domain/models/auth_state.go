package models

import "time"

// AuthState is the per-user throttling record. A nil LockedUntil means the
// account is not locked; a LockedUntil in the past is treated as expired.
type AuthState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

func (s AuthState) Locked(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}
