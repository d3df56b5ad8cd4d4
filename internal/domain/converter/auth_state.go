package converter

import (
	"github.com/renshs/auth/internal/domain/models"
	storageModel "github.com/renshs/auth/internal/storage/model"
)

func ToAuthStateFromStorage(storageState storageModel.AuthState) models.AuthState {
	state := models.AuthState{FailedAttempts: storageState.FailedAttempts}
	if storageState.LockedUntil.Valid {
		lockedUntil := storageState.LockedUntil.Time
		state.LockedUntil = &lockedUntil
	}
	return state
}
