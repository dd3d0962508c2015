package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
)

type SelectedAccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sa *models.SelectedAccount) error
	ListByPostID(ctx context.Context, postID int64) ([]*models.SelectedAccount, error)
}

type selectedAccountRepository struct {
	db *sql.DB
}

func NewSelectedAccountRepository(db *sql.DB) SelectedAccountRepository {
	return &selectedAccountRepository{db: db}
}

func (r *selectedAccountRepository) Create(ctx context.Context, tx *sql.Tx, sa *models.SelectedAccount) error {
	query := `INSERT INTO selected_accounts (post_id, account_id) VALUES ($1, $2)`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, sa.PostID, sa.AccountID)
	} else {
		_, err = r.db.ExecContext(ctx, query, sa.PostID, sa.AccountID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *selectedAccountRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.SelectedAccount, error) {
	query := `SELECT post_id, account_id, created_at, updated_at FROM selected_accounts WHERE post_id = $1`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SelectedAccount
	for rows.Next() {
		var sa models.SelectedAccount
		err := rows.Scan(&sa.PostID, &sa.AccountID, &sa.CreatedAt, &sa.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &sa)
	}
	return accounts, nil
}
