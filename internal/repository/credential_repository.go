package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
)

type CredentialRepository interface {
	Create(ctx context.Context, tx *sql.Tx, c *models.Credential) (int64, error)
	GetByAccountID(ctx context.Context, accountID int64) (*models.Credential, error)
	SetToken(ctx context.Context, accountID int64, c *models.Credential) error
	MarkValidated(ctx context.Context, accountID int64, at time.Time) error
	ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.Credential, error)
	Remove(ctx context.Context, accountID int64) error
}

type credentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, account_id, access_token, refresh_token, expires_at, last_validated_at, created_at, updated_at`

func (r *credentialRepository) Create(ctx context.Context, tx *sql.Tx, c *models.Credential) (int64, error) {
	query := `
		INSERT INTO credentials (account_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, c.AccountID, c.AccessToken, c.RefreshToken, c.ExpiresAt).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, c.AccountID, c.AccessToken, c.RefreshToken, c.ExpiresAt).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *credentialRepository) GetByAccountID(ctx context.Context, accountID int64) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE account_id = $1`
	row := r.db.QueryRowContext(ctx, query, accountID)

	var c models.Credential
	err := row.Scan(&c.ID, &c.AccountID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.LastValidatedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &c, nil
}

// SetToken swaps in refreshed token material under a serializable transaction
// so two overlapping refreshes cannot interleave their writes.
func (r *credentialRepository) SetToken(ctx context.Context, accountID int64, c *models.Credential) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE credentials
		SET
			access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			expires_at = COALESCE($4, expires_at),
			last_validated_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE account_id = $1;
	`
	result, err := tx.ExecContext(ctx, updateQuery, accountID, c.AccessToken, c.RefreshToken, c.ExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; account_id may not exist")
		return errors.New("no rows affected; account_id may not exist")
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *credentialRepository) MarkValidated(ctx context.Context, accountID int64, at time.Time) error {
	query := `UPDATE credentials SET last_validated_at = $2, updated_at = $2 WHERE account_id = $1`
	_, err := r.db.ExecContext(ctx, query, accountID, at)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *credentialRepository) ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE expires_at IS NOT NULL AND expires_at <= $1`
	rows, err := r.db.QueryContext(ctx, query, t)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var c models.Credential
		err := rows.Scan(&c.ID, &c.AccountID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.LastValidatedAt, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		creds = append(creds, &c)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return creds, nil
}

func (r *credentialRepository) Remove(ctx context.Context, accountID int64) error {
	query := `DELETE FROM credentials WHERE account_id = $1`
	_, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
