package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
)

type DeliveryAttemptRepository interface {
	Create(ctx context.Context, a *models.DeliveryAttempt) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.DeliveryAttempt, error)
	UpdateResult(ctx context.Context, a *models.DeliveryAttempt) error
	LatestPerTarget(ctx context.Context, postID int64) (map[int64]*models.DeliveryAttempt, error)
	HasPending(ctx context.Context, postID, accountID int64) (bool, error)
	CountForTarget(ctx context.Context, postID, accountID int64) (int, error)
}

type deliveryAttemptRepository struct {
	db *sql.DB
}

func NewDeliveryAttemptRepository(db *sql.DB) DeliveryAttemptRepository {
	return &deliveryAttemptRepository{db: db}
}

const attemptColumns = `id, post_id, account_id, attempt_number, status, error_kind, error_message, scheduled_retry_at, platform_post_id, created_at, updated_at`

func (r *deliveryAttemptRepository) Create(ctx context.Context, a *models.DeliveryAttempt) (int64, error) {
	query := `
		INSERT INTO delivery_attempts (post_id, account_id, attempt_number, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, a.PostID, a.AccountID, a.AttemptNumber, a.Status).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *deliveryAttemptRepository) GetByID(ctx context.Context, id int64) (*models.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	a, err := scanAttempt(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return a, nil
}

func (r *deliveryAttemptRepository) UpdateResult(ctx context.Context, a *models.DeliveryAttempt) error {
	query := `
		UPDATE delivery_attempts
		SET status = $2,
			error_kind = $3,
			error_message = $4,
			scheduled_retry_at = $5,
			platform_post_id = $6,
			updated_at = $7
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.Status, a.ErrorKind, a.ErrorMessage, a.ScheduledRetryAt, a.PlatformPostID, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// LatestPerTarget returns, per account, the attempt with the highest attempt
// number for the post. Post status is derived from exactly this view.
func (r *deliveryAttemptRepository) LatestPerTarget(ctx context.Context, postID int64) (map[int64]*models.DeliveryAttempt, error) {
	query := `
		SELECT DISTINCT ON (account_id) ` + attemptColumns + `
		FROM delivery_attempts
		WHERE post_id = $1
		ORDER BY account_id, attempt_number DESC
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	latest := make(map[int64]*models.DeliveryAttempt)
	for rows.Next() {
		var a models.DeliveryAttempt
		var errKind, errMsg, platformPostID sql.NullString
		var retryAt sql.NullTime
		err := rows.Scan(&a.ID, &a.PostID, &a.AccountID, &a.AttemptNumber, &a.Status, &errKind, &errMsg, &retryAt, &platformPostID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		a.ErrorKind = errKind.String
		a.ErrorMessage = errMsg.String
		a.PlatformPostID = platformPostID.String
		a.ScheduledRetryAt = retryAt.Time
		latest[a.AccountID] = &a
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return latest, nil
}

func (r *deliveryAttemptRepository) HasPending(ctx context.Context, postID, accountID int64) (bool, error) {
	query := `SELECT 1 FROM delivery_attempts WHERE post_id = $1 AND account_id = $2 AND status = $3`

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, accountID, models.AttemptPending).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *deliveryAttemptRepository) CountForTarget(ctx context.Context, postID, accountID int64) (int, error) {
	query := `SELECT COUNT(*) FROM delivery_attempts WHERE post_id = $1 AND account_id = $2`

	var count int
	err := r.db.QueryRowContext(ctx, query, postID, accountID).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return count, nil
}

func scanAttempt(row *sql.Row) (*models.DeliveryAttempt, error) {
	var a models.DeliveryAttempt
	var errKind, errMsg, platformPostID sql.NullString
	var retryAt sql.NullTime
	err := row.Scan(&a.ID, &a.PostID, &a.AccountID, &a.AttemptNumber, &a.Status, &errKind, &errMsg, &retryAt, &platformPostID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ErrorKind = errKind.String
	a.ErrorMessage = errMsg.String
	a.PlatformPostID = platformPostID.String
	a.ScheduledRetryAt = retryAt.Time
	return &a, nil
}
