package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
)

// ConflictDetector flags temporal collisions between a proposed schedule time
// and already-scheduled posts touching the same accounts. Pure query; callers
// decide whether to block, warn or shift.
type ConflictDetector struct {
	posts  repository.PostRepository
	window time.Duration
	now    func() time.Time
}

func NewConflictDetector(posts repository.PostRepository, window time.Duration) *ConflictDetector {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &ConflictDetector{
		posts:  posts,
		window: window,
		now:    time.Now,
	}
}

// Check returns already-scheduled posts that share at least one account with
// the given set and sit strictly within the conflict window of the proposed
// time. Exactly one window apart does not conflict, on either side.
func (d *ConflictDetector) Check(ctx context.Context, accountIDs []int64, proposed time.Time, window time.Duration) ([]*models.Post, error) {
	if window <= 0 {
		window = d.window
	}
	return d.posts.ListScheduledForAccounts(ctx, accountIDs, proposed.Add(-window), proposed.Add(window))
}

// SuggestTime scans forward from the proposed time for the nearest slot that
// clears the window past every conflict. It never suggests a past time.
func (d *ConflictDetector) SuggestTime(ctx context.Context, accountIDs []int64, proposed time.Time, window time.Duration) (time.Time, error) {
	if window <= 0 {
		window = d.window
	}

	candidate := proposed
	if now := d.now(); candidate.Before(now) {
		candidate = now
	}

	for i := 0; i < 100; i++ {
		conflicts, err := d.Check(ctx, accountIDs, candidate, window)
		if err != nil {
			return time.Time{}, err
		}
		if len(conflicts) == 0 {
			return candidate, nil
		}

		nearest := conflicts[0].ScheduledTime
		for _, p := range conflicts[1:] {
			if p.ScheduledTime.After(nearest) {
				nearest = p.ScheduledTime
			}
		}
		// The window is open at both edges, so exactly one window past the
		// nearest conflict clears it.
		candidate = nearest.Add(window)
	}

	return time.Time{}, errors.New("no conflict-free slot found")
}
