package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/instapress/internal/service"
)

// DispatchJob sweeps scheduled posts whose time has passed but whose asynq
// task never fired (process restarts, lost tasks), and keeps the access
// token fresh.
type DispatchJob struct {
	ss service.ScheduleService
	as service.AuthService
}

func NewDispatchJob(ss service.ScheduleService, as service.AuthService) *DispatchJob {
	return &DispatchJob{ss: ss, as: as}
}

func (j *DispatchJob) DispatchDue() {
	ctx := context.Background()

	dispatched, err := j.ss.DispatchDue(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if dispatched > 0 {
		slog.Info("dispatched overdue scheduled posts", "count", dispatched)
	}
}

func (j *DispatchJob) RefreshToken() {
	ctx := context.Background()

	if err := j.as.RefreshIfNeeded(ctx); err != nil {
		slog.Info("unable to refresh Instagram token", "error", err.Error())
	}
}
