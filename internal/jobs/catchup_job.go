package job

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postpilot/internal/publisher"
)

// CatchupJob backs up the per-post queue timers: any scheduled post whose due
// time has elapsed without firing is dispatched on the next tick.
type CatchupJob struct {
	scheduler *publisher.Scheduler
}

func NewCatchupJob(scheduler *publisher.Scheduler) *CatchupJob {
	return &CatchupJob{scheduler: scheduler}
}

func (j *CatchupJob) FireDuePosts() {
	if err := j.scheduler.Tick(context.Background()); err != nil {
		slog.Info(err.Error())
	}
}
