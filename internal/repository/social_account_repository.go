package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
)

type SocialAccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

func (r *socialAccountRepository) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	var err error
	var id int64

	var insertQuery = `
			INSERT INTO social_accounts(
				user_id,
				platform,
				account_id,
				account_name,
				account_username,
				profile_picture_url,
				enabled
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`

	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery,
			sa.UserID,
			sa.Platform,
			sa.AccountID,
			sa.AccountName,
			sa.AccountUsername,
			sa.ProfilePicture,
			sa.Enabled,
		).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery,
			sa.UserID,
			sa.Platform,
			sa.AccountID,
			sa.AccountName,
			sa.AccountUsername,
			sa.ProfilePicture,
			sa.Enabled,
		).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT id, user_id, platform, account_id, account_name, account_username, profile_picture_url, enabled, created_at, updated_at FROM social_accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccountUsername, &sa.ProfilePicture, &sa.Enabled, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &sa, nil
}

func (r *socialAccountRepository) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	query := `SELECT id, account_name, profile_picture_url, platform, enabled FROM social_accounts WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var socialAccounts []*models.SocialAccount
	for rows.Next() {
		var sa models.SocialAccount
		err := rows.Scan(&sa.ID, &sa.AccountName, &sa.ProfilePicture, &sa.Platform, &sa.Enabled)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		socialAccounts = append(socialAccounts, &sa)
	}
	return socialAccounts, nil
}

func (r *socialAccountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM social_accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *socialAccountRepository) Remove(ctx context.Context, id int64) error {
	// credentials row goes with the account (ON DELETE CASCADE)
	query := `DELETE FROM social_accounts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
