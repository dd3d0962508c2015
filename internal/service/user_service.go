package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
)

type UserService interface {
	UserInfo(ctx context.Context, userID int64) (*models.User, error)
	RemoveUser(ctx context.Context, userID int64) error
}

type userService struct {
	ur repository.UserRepository
}

func NewUserService(ur repository.UserRepository) UserService {
	return &userService{ur: ur}
}

func (s *userService) UserInfo(ctx context.Context, userID int64) (*models.User, error) {
	user, exists, err := s.ur.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		err = errors.New("user doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	return user, nil
}

func (s *userService) RemoveUser(ctx context.Context, userID int64) error {
	err := s.ur.Remove(ctx, userID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
