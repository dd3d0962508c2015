package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/models"
)

type PostMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error)
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	query := `INSERT INTO post_media (post_id, asset_id, display_order) VALUES ($1, $2, $3)`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, pm.PostID, pm.AssetID, pm.DisplayOrder)
	} else {
		_, err = r.db.ExecContext(ctx, query, pm.PostID, pm.AssetID, pm.DisplayOrder)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *postMediaRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	query := `SELECT post_id, asset_id, display_order, created_at FROM post_media WHERE post_id = $1 ORDER BY display_order`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var media []*models.PostMedia
	for rows.Next() {
		var pm models.PostMedia
		err := rows.Scan(&pm.PostID, &pm.AssetID, &pm.DisplayOrder, &pm.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		media = append(media, &pm)
	}
	return media, nil
}
