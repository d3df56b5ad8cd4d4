package converter

import (
	"github.com/renshs/auth/internal/domain/models"
	storageModel "github.com/renshs/auth/internal/storage/model"
)

func ToUserFromStorage(storageUser storageModel.User) models.User {
	return models.User{
		ID:       storageUser.ID,
		Username: storageUser.Username,
		PassHash: storageUser.PassHash,
	}
}

func ToUserEventFromStorage(storageUser storageModel.User) models.UserEvent {
	return models.UserEvent{
		ID:       storageUser.ID,
		Username: storageUser.Username,
	}
}
