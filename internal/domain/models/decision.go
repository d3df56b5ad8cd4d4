package models

import "time"

type LoginOutcome int

const (
	OutcomeAllowed LoginOutcome = iota
	OutcomeUnknownUser
	OutcomeWrongPassword
	OutcomeLocked
)

// LoginDecision is the result of a single login attempt. AttemptsRemaining is
// meaningful only for OutcomeWrongPassword, LockedUntil only for OutcomeLocked.
type LoginDecision struct {
	Outcome           LoginOutcome
	AttemptsRemaining int
	LockedUntil       time.Time
}
