package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/publisher"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	PostTypeSingle   = "single"
	PostTypeMultiple = "multiple"

	scheduledTimeLayout = "2006-01-02T15:04"
)

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, []*models.Post, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*transfer.PostStatusResponse, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db        *sql.DB
	pr        repository.PostRepository
	sa        repository.SelectedAccountRepository
	ac        repository.SocialAccountRepository
	ma        repository.MediaAssetRepository
	pm        repository.PostMediaRepository
	at        repository.DeliveryAttemptRepository
	conflicts *publisher.ConflictDetector
	r2        *R2Service
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	sa repository.SelectedAccountRepository,
	ma repository.MediaAssetRepository,
	ac repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	at repository.DeliveryAttemptRepository,
	conflicts *publisher.ConflictDetector,
	r2 *R2Service) PostService {
	return &postService{
		db:        db,
		pr:        pr,
		sa:        sa,
		ac:        ac,
		ma:        ma,
		pm:        pm,
		at:        at,
		conflicts: conflicts,
		r2:        r2,
	}
}

// CreatePost stores the post, its target accounts and media inside one
// transaction and returns any schedule conflicts as warnings. The caller
// decides whether to submit anyway, shift the time, or drop the post.
func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, []*models.Post, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, nil, err
	}
	if pc.Caption == "" {
		err := errors.New("caption cannot be empty")
		slog.Info(err.Error())
		return 0, nil, err
	}

	// Absent scheduled time means publish immediately.
	var scheduledTime time.Time
	if pc.ScheduledTime != "" {
		var err error
		scheduledTime, err = time.Parse(scheduledTimeLayout, pc.ScheduledTime)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Error(err.Error())
			return 0, nil, err
		}
	}

	var selectedAccounts []int64
	if err := json.Unmarshal([]byte(pc.SelectedAccounts), &selectedAccounts); err != nil {
		err = fmt.Errorf("invalid selected accounts format: %w", err)
		slog.Error(err.Error())
		return 0, nil, err
	}
	if len(selectedAccounts) == 0 {
		err := errors.New("no social accounts selected")
		slog.Error(err.Error())
		return 0, nil, err
	}

	postType := PostTypeSingle
	if len(files) > 1 {
		postType = PostTypeMultiple
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:        userID,
		PostType:      postType,
		Caption:       pc.Caption,
		Title:         pc.Title,
		ScheduledTime: scheduledTime,
		Status:        models.PostStatusDraft,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, nil, fmt.Errorf("error creating post: %w", err)
	}

	if err = s.saveSelectedAccounts(ctx, tx, userID, postID, selectedAccounts); err != nil {
		return 0, nil, fmt.Errorf("error processing selected accounts: %w", err)
	}

	if err = s.processFiles(ctx, tx, userID, postID, files); err != nil {
		return 0, nil, fmt.Errorf("error processing files: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	var conflicts []*models.Post
	if !scheduledTime.IsZero() {
		conflicts, err = s.conflicts.Check(ctx, selectedAccounts, scheduledTime, 0)
		if err != nil {
			slog.Info(err.Error())
			conflicts = nil
			err = nil
		}
	}

	return postID, conflicts, nil
}

func (s *postService) saveSelectedAccounts(ctx context.Context, tx *sql.Tx, userID, postID int64, accounts []int64) error {
	for _, accountID := range accounts {
		exists, err := s.ac.CheckByUserID(ctx, accountID, userID)
		if err != nil {
			return fmt.Errorf("error checking social account %d: %w", accountID, err)
		}
		if !exists {
			return fmt.Errorf("social account %d does not exist", accountID)
		}

		account := models.SelectedAccount{
			PostID:    postID,
			AccountID: accountID,
		}
		if err := s.sa.Create(ctx, tx, &account); err != nil {
			return fmt.Errorf("error saving selected account %d: %w", accountID, err)
		}
	}
	return nil
}

func (s *postService) processFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, files []*multipart.FileHeader) error {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
	}

	for i, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return fmt.Errorf("error opening file: %w", err)
		}
		defer fileContent.Close()

		fileBytes, err := io.ReadAll(fileContent)
		if err != nil {
			return fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return fmt.Errorf("unsupported file type: %w", err)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		assetID, err := s.saveFile(ctx, tx, userID, fileType.MIME.Value, fileBytes)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      assetID,
			DisplayOrder: i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return nil
}

func (s *postService) saveFile(ctx context.Context, tx *sql.Tx, userID int64, fileType string, file []byte) (int64, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	if err = s.r2.UploadToR2(ctx, id, file, fileType); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	ma := models.MediaAsset{
		UserID:   userID,
		FileName: id,
		FileType: fileType,
		FileSize: int64(len(file)),
		FileURL:  s.r2.PublicURL(id),
	}

	assetID, err := s.ma.Create(ctx, tx, &ma)
	if err != nil {
		return 0, err
	}

	return assetID, nil
}

// PostInfo returns the post status together with the latest delivery result
// per target, so the last error kind per account is always queryable.
func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*transfer.PostStatusResponse, error) {
	var err error

	if userID == 0 || postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	selected, err := s.sa.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	targets := make([]int64, 0, len(selected))
	for _, acc := range selected {
		targets = append(targets, acc.AccountID)
	}

	latest, err := s.at.LatestPerTarget(ctx, postID)
	if err != nil {
		return nil, err
	}

	return &transfer.PostStatusResponse{
		PostID:        post.ID,
		Status:        post.Status,
		ScheduledTime: post.ScheduledTime,
		Results:       publisher.TargetResults(targets, latest),
	}, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	var err error

	if userID == 0 || postID == 0 {
		err = errors.New("post_id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err = s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post")
	}

	return nil
}
