package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/webhook"
	"github.com/maheshrc27/postpilot/pkg/utils"
)

type WebhookService interface {
	Create(ctx context.Context, userID int64, endpoint string, events []string) (*models.WebhookSubscription, error)
	List(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error)
	Remove(ctx context.Context, userID, subID int64) error
}

type webhookService struct {
	subs repository.WebhookSubscriptionRepository
}

func NewWebhookService(subs repository.WebhookSubscriptionRepository) WebhookService {
	return &webhookService{subs: subs}
}

// Create registers a subscription and generates its signing secret. The
// secret is returned exactly once, in the response to this call.
func (s *webhookService) Create(ctx context.Context, userID int64, endpoint string, events []string) (*models.WebhookSubscription, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		err = errors.New("webhook url is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if len(events) == 0 {
		err = errors.New("no events selected")
		slog.Info(err.Error())
		return nil, err
	}
	for _, event := range events {
		if !webhook.KnownEvent(event) {
			err = fmt.Errorf("unknown event %s", event)
			slog.Info(err.Error())
			return nil, err
		}
	}

	secret, err := utils.GenerateRandomKey(32)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	ws := models.WebhookSubscription{
		UserID:  userID,
		URL:     endpoint,
		Events:  strings.Join(events, ","),
		Secret:  secret,
		Enabled: true,
	}

	id, err := s.subs.Create(ctx, &ws)
	if err != nil {
		return nil, fmt.Errorf("error creating webhook subscription")
	}
	ws.ID = id

	return &ws, nil
}

func (s *webhookService) List(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error) {
	subs, err := s.subs.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing webhook subscriptions")
	}
	for _, ws := range subs {
		ws.Secret = ""
	}
	return subs, nil
}

func (s *webhookService) Remove(ctx context.Context, userID, subID int64) error {
	var err error

	if userID == 0 || subID == 0 {
		err = errors.New("webhook id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.subs.CheckByUserID(ctx, subID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("webhook subscription doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err = s.subs.Remove(ctx, subID); err != nil {
		return fmt.Errorf("error removing webhook subscription")
	}

	return nil
}
