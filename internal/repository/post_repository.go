package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postpilot/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	UpdatePostStatus(ctx context.Context, status string, postID int64) error
	ListDueScheduled(ctx context.Context, before time.Time) ([]*models.Post, error)
	ListScheduledForAccounts(ctx context.Context, accountIDs []int64, from, to time.Time) ([]*models.Post, error)
	ListByStatusAndUser(ctx context.Context, status string, userID int64) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, post_type, caption, title, scheduled_time, status, created_at, updated_at`

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, post_type, caption, title, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.PostType, post.Caption, post.Title, post.ScheduledTime, post.Status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.PostType, post.Caption, post.Title, post.ScheduledTime, post.Status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.PostType, &post.Caption, &post.Title, &post.ScheduledTime, &post.Status, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

func (r *postRepository) ListDueScheduled(ctx context.Context, before time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_time <= $2`
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

func (r *postRepository) ListScheduledForAccounts(ctx context.Context, accountIDs []int64, from, to time.Time) ([]*models.Post, error) {
	query := `
		SELECT DISTINCT p.id, p.user_id, p.post_type, p.caption, p.title, p.scheduled_time, p.status, p.created_at, p.updated_at
		FROM posts p
		JOIN selected_accounts sa ON sa.post_id = p.id
		WHERE sa.account_id = ANY($1)
		AND p.status = $2
		AND p.scheduled_time > $3 AND p.scheduled_time < $4
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(accountIDs), models.PostStatusScheduled, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

func (r *postRepository) ListByStatusAndUser(ctx context.Context, status string, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND user_id = $2`
	rows, err := r.db.QueryContext(ctx, query, status, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) UpdatePostStatus(ctx context.Context, status string, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanPosts(rows *sql.Rows) ([]*models.Post, error) {
	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		err := rows.Scan(&post.ID, &post.UserID, &post.PostType, &post.Caption, &post.Title, &post.ScheduledTime, &post.Status, &post.CreatedAt, &post.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}
