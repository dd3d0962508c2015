package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/pkg/utils"
)

type KeysService interface {
	Create(ctx context.Context, userID int64) (string, error)
	List(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (int64, error)
	Remove(ctx context.Context, userID, keyID int64) error
}

type keysService struct {
	keys repository.ApiKeyRepository
}

func NewKeysService(keys repository.ApiKeyRepository) KeysService {
	return &keysService{keys: keys}
}

func (s *keysService) Create(ctx context.Context, userID int64) (string, error) {
	key, err := utils.GenerateRandomKey(32)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	apiKey := models.ApiKey{
		UserID: userID,
		ApiKey: key,
	}

	_, err = s.keys.Create(ctx, &apiKey)
	if err != nil {
		return "", fmt.Errorf("error creating api key")
	}

	return key, nil
}

func (s *keysService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	keys, err := s.keys.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing api keys")
	}
	return keys, nil
}

func (s *keysService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	userID, exists, err := s.keys.GetByKey(ctx, apiKey)
	if err != nil {
		return 0, err
	}
	if !exists || userID == nil {
		err = errors.New("api key is not valid")
		slog.Info(err.Error())
		return 0, err
	}
	return *userID, nil
}

func (s *keysService) Remove(ctx context.Context, userID, keyID int64) error {
	var err error

	if userID == 0 || keyID == 0 {
		err = errors.New("key id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.keys.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("api key doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err = s.keys.Remove(ctx, keyID); err != nil {
		return fmt.Errorf("error removing api key")
	}

	return nil
}
