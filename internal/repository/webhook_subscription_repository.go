package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
)

type WebhookSubscriptionRepository interface {
	Create(ctx context.Context, ws *models.WebhookSubscription) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.WebhookSubscription, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error)
	ListEnabledForEvent(ctx context.Context, event string) ([]*models.WebhookSubscription, error)
	RecordFailure(ctx context.Context, id int64, disableThreshold int) (bool, error)
	ResetFailures(ctx context.Context, id int64) error
	CheckByUserID(ctx context.Context, subID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type webhookSubscriptionRepository struct {
	db *sql.DB
}

func NewWebhookSubscriptionRepository(db *sql.DB) WebhookSubscriptionRepository {
	return &webhookSubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, url, events, secret, consecutive_failures, enabled, created_at, updated_at`

func (r *webhookSubscriptionRepository) Create(ctx context.Context, ws *models.WebhookSubscription) (int64, error) {
	query := `
		INSERT INTO webhook_subscriptions (user_id, url, events, secret, enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, ws.UserID, ws.URL, ws.Events, ws.Secret, ws.Enabled).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *webhookSubscriptionRepository) GetByID(ctx context.Context, id int64) (*models.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var ws models.WebhookSubscription
	err := row.Scan(&ws.ID, &ws.UserID, &ws.URL, &ws.Events, &ws.Secret, &ws.ConsecutiveFailures, &ws.Enabled, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &ws, nil
}

func (r *webhookSubscriptionRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *webhookSubscriptionRepository) ListEnabledForEvent(ctx context.Context, event string) ([]*models.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE enabled = TRUE AND $1 = ANY(string_to_array(events, ','))`
	rows, err := r.db.QueryContext(ctx, query, event)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// RecordFailure bumps the consecutive-failure counter and force-disables the
// subscription once the threshold is reached, in one statement so concurrent
// deliveries cannot lose an increment. Returns whether the subscription ended
// up disabled.
func (r *webhookSubscriptionRepository) RecordFailure(ctx context.Context, id int64, disableThreshold int) (bool, error) {
	query := `
		UPDATE webhook_subscriptions
		SET consecutive_failures = consecutive_failures + 1,
			enabled = (consecutive_failures + 1 < $2),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING enabled
	`
	var enabled bool
	err := r.db.QueryRowContext(ctx, query, id, disableThreshold).Scan(&enabled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return !enabled, nil
}

func (r *webhookSubscriptionRepository) ResetFailures(ctx context.Context, id int64) error {
	query := `UPDATE webhook_subscriptions SET consecutive_failures = 0, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookSubscriptionRepository) CheckByUserID(ctx context.Context, subID, userID int64) (bool, error) {
	query := "SELECT 1 FROM webhook_subscriptions WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, subID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *webhookSubscriptionRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM webhook_subscriptions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanSubscriptions(rows *sql.Rows) ([]*models.WebhookSubscription, error) {
	var subs []*models.WebhookSubscription
	for rows.Next() {
		var ws models.WebhookSubscription
		err := rows.Scan(&ws.ID, &ws.UserID, &ws.URL, &ws.Events, &ws.Secret, &ws.ConsecutiveFailures, &ws.Enabled, &ws.CreatedAt, &ws.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		subs = append(subs, &ws)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return subs, nil
}
