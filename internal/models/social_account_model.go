package models

import (
	"time"
)

type SocialAccount struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	ProfilePicture  string    `db:"profile_picture_url" json:"profile_picture"`
	Enabled         bool      `db:"enabled" json:"enabled"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type SelectedAccount struct {
	PostID    int64     `db:"post_id" json:"post_id"`
	AccountID int64     `db:"account_id" json:"account_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
