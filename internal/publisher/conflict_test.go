package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
)

func scheduleConflictPost(posts *fakePostRepo, selected *fakeSelectedRepo, accountID int64, at time.Time) int64 {
	postID := posts.add(&models.Post{
		UserID:        1,
		Status:        models.PostStatusScheduled,
		ScheduledTime: at,
	})
	selected.Create(context.Background(), nil, &models.SelectedAccount{PostID: postID, AccountID: accountID})
	return postID
}

func TestConflictCheck(t *testing.T) {
	selected := newFakeSelectedRepo()
	posts := newFakePostRepo(selected)
	d := NewConflictDetector(posts, 60*time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduleConflictPost(posts, selected, 7, base)

	// 10 seconds apart on the same account, inside the 60s window.
	conflicts, err := d.Check(context.Background(), []int64{7}, base.Add(10*time.Second), 0)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}

	// Same instant, different account: no conflict.
	conflicts, err = d.Check(context.Background(), []int64{8}, base.Add(10*time.Second), 0)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("got %d conflicts for unrelated account, want 0", len(conflicts))
	}

	// Outside the window.
	conflicts, err = d.Check(context.Background(), []int64{7}, base.Add(2*time.Minute), 0)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("got %d conflicts outside window, want 0", len(conflicts))
	}
}

func TestConflictWindowEdgesAreOpenOnBothSides(t *testing.T) {
	selected := newFakeSelectedRepo()
	posts := newFakePostRepo(selected)
	d := NewConflictDetector(posts, 60*time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduleConflictPost(posts, selected, 7, base)

	// Exactly one window apart clears on either side of the existing post.
	for _, proposed := range []time.Time{base.Add(-60 * time.Second), base.Add(60 * time.Second)} {
		conflicts, err := d.Check(context.Background(), []int64{7}, proposed, 0)
		if err != nil {
			t.Fatalf("Check(%v) error = %v", proposed, err)
		}
		if len(conflicts) != 0 {
			t.Errorf("got %d conflicts exactly one window away at %v, want 0", len(conflicts), proposed)
		}
	}

	// One second inside the edge still conflicts, on either side.
	for _, proposed := range []time.Time{base.Add(-59 * time.Second), base.Add(59 * time.Second)} {
		conflicts, err := d.Check(context.Background(), []int64{7}, proposed, 0)
		if err != nil {
			t.Fatalf("Check(%v) error = %v", proposed, err)
		}
		if len(conflicts) != 1 {
			t.Errorf("got %d conflicts just inside the window at %v, want 1", len(conflicts), proposed)
		}
	}
}

func TestSuggestTimeSkipsPastConflicts(t *testing.T) {
	selected := newFakeSelectedRepo()
	posts := newFakePostRepo(selected)
	d := NewConflictDetector(posts, 60*time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base.Add(-time.Hour) }

	scheduleConflictPost(posts, selected, 7, base)
	scheduleConflictPost(posts, selected, 7, base.Add(45*time.Second))

	suggested, err := d.SuggestTime(context.Background(), []int64{7}, base.Add(10*time.Second), 0)
	if err != nil {
		t.Fatalf("SuggestTime() error = %v", err)
	}

	// Must clear the window past the later of the two conflicts.
	want := base.Add(45 * time.Second).Add(60 * time.Second)
	if !suggested.Equal(want) {
		t.Fatalf("suggested %v, want %v", suggested, want)
	}

	conflicts, err := d.Check(context.Background(), []int64{7}, suggested, 0)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("suggested slot still conflicts with %d posts", len(conflicts))
	}
}

func TestSuggestTimeNeverInThePast(t *testing.T) {
	selected := newFakeSelectedRepo()
	posts := newFakePostRepo(selected)
	d := NewConflictDetector(posts, 60*time.Second)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	suggested, err := d.SuggestTime(context.Background(), []int64{7}, now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("SuggestTime() error = %v", err)
	}
	if suggested.Before(now) {
		t.Fatalf("suggested %v is in the past (now %v)", suggested, now)
	}
}
