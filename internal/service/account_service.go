package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/publisher"
	"github.com/maheshrc27/postpilot/internal/repository"
)

type AccountService interface {
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Health(ctx context.Context, userID, accountID int64) (string, error)
	Remove(ctx context.Context, userID, accountID int64) error
}

type accountService struct {
	ac     repository.SocialAccountRepository
	tokens *publisher.TokenManager
}

func NewAccountService(ac repository.SocialAccountRepository, tokens *publisher.TokenManager) AccountService {
	return &accountService{ac: ac, tokens: tokens}
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	accounts, err := s.ac.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing social accounts")
	}
	return accounts, nil
}

// Health reports the credential state for one account without calling the
// platform.
func (s *accountService) Health(ctx context.Context, userID, accountID int64) (string, error) {
	isValid, err := s.ac.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return "", err
	}
	if !isValid {
		err = errors.New("social account doesn't exist")
		slog.Info(err.Error())
		return "", err
	}

	return s.tokens.Health(ctx, accountID)
}

func (s *accountService) Remove(ctx context.Context, userID, accountID int64) error {
	var err error

	if userID == 0 || accountID == 0 {
		err = errors.New("account id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.ac.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("social account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err = s.ac.Remove(ctx, accountID); err != nil {
		return fmt.Errorf("error removing social account")
	}

	return nil
}
