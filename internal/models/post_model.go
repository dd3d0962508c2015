package models

import "time"

type Post struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	PostType      string    `db:"post_type" json:"post_type"`
	Caption       string    `db:"caption" json:"caption"`
	Title         string    `db:"title" json:"title"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"` // zero value means publish immediately
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

// Post.Status is always the value derived by publisher.DeriveStatus from the
// latest delivery attempt per target; it is never set independently.
const (
	PostStatusDraft           = "draft"
	PostStatusScheduled       = "scheduled"
	PostStatusPublishing      = "publishing"
	PostStatusPublished       = "published"
	PostStatusPartiallyFailed = "partially_failed"
	PostStatusFailed          = "failed"
	PostStatusCancelled       = "cancelled"
)

// IsTerminalPostStatus reports whether a post may no longer change state.
func IsTerminalPostStatus(status string) bool {
	switch status {
	case PostStatusPublished, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}
