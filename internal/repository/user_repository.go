package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, bool, error)
	Create(ctx context.Context, user *models.User) (int64, error)
	Remove(ctx context.Context, id int64) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, bool, error) {
	query := `SELECT id, google_id, email, name, profile_picture, created_at, updated_at FROM users WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var user models.User
	err := row.Scan(&user.ID, &user.GoogleID, &user.Email, &user.Name, &user.ProfilePicture, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &user, true, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (int64, error) {
	query := `
		INSERT INTO users (google_id, email, name, profile_picture)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, user.GoogleID, user.Email, user.Name, user.ProfilePicture).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *userRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
