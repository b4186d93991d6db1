package service

import (
	"context"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/instapress/internal/apperr"
	"github.com/maheshrc27/instapress/internal/models"
	"github.com/maheshrc27/instapress/internal/repository"
	"github.com/maheshrc27/instapress/internal/transfer"
)

// ImageResolver turns a stored image id plus optional crop data into a
// publicly fetchable URL.
type ImageResolver interface {
	ResolvePublicURL(ctx context.Context, imageID int64, crop *models.CropData) (string, error)
}

type ScheduleService interface {
	Schedule(ctx context.Context, sc *transfer.ScheduleCreation) (*models.ScheduledPost, time.Duration, error)
	List(ctx context.Context, postID int64) ([]*models.ScheduledPost, error)
	Cancel(ctx context.Context, id string) error
	Dispatch(ctx context.Context, id string) error
	DispatchDue(ctx context.Context, now time.Time) (int, error)
}

type scheduleService struct {
	sp       repository.ScheduledPostRepository
	resolver ImageResolver
	ps       PublishService
}

func NewScheduleService(sp repository.ScheduledPostRepository, resolver ImageResolver, ps PublishService) ScheduleService {
	return &scheduleService{sp: sp, resolver: resolver, ps: ps}
}

func (s *scheduleService) Schedule(ctx context.Context, sc *transfer.ScheduleCreation) (*models.ScheduledPost, time.Duration, error) {
	if sc == nil || len(sc.ImageIDs) == 0 {
		return nil, 0, apperr.Validation("at least one image id is required")
	}
	if len(sc.ImageIDs) > maxImages {
		return nil, 0, apperr.Validation("at most %d images per post, got %d", maxImages, len(sc.ImageIDs))
	}
	if len(sc.CropData) != 0 && len(sc.CropData) != len(sc.ImageIDs) {
		return nil, 0, apperr.Validation("crop_data and image_ids must have the same length")
	}
	if len(sc.Caption) > maxCaptionLen {
		return nil, 0, apperr.Validation("caption exceeds %d characters", maxCaptionLen)
	}

	scheduleTime, err := time.Parse(time.RFC3339, sc.ScheduleTime)
	if err != nil {
		return nil, 0, apperr.Validation("invalid schedule_time: %s", sc.ScheduleTime)
	}
	if !scheduleTime.After(time.Now()) {
		return nil, 0, apperr.Validation("schedule_time must be in the future")
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}

	sp := &models.ScheduledPost{
		ID:           id,
		PostID:       sc.PostID,
		ImageIDs:     sc.ImageIDs,
		CropData:     sc.CropData,
		Caption:      sc.Caption,
		ScheduleTime: scheduleTime,
		Status:       models.ScheduleStatusPending,
	}

	if err := s.sp.Create(ctx, nil, sp); err != nil {
		return nil, 0, err
	}

	return sp, time.Until(scheduleTime), nil
}

func (s *scheduleService) List(ctx context.Context, postID int64) ([]*models.ScheduledPost, error) {
	if postID != 0 {
		return s.sp.ListByPostID(ctx, postID)
	}
	return s.sp.List(ctx)
}

func (s *scheduleService) Cancel(ctx context.Context, id string) error {
	sp, err := s.sp.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sp == nil {
		return &apperr.NotFoundError{Resource: "scheduled post"}
	}
	if sp.Status != models.ScheduleStatusPending {
		return apperr.Validation("scheduled post %s already %s", id, sp.Status)
	}
	return s.sp.Remove(ctx, id)
}

// Dispatch hands a due scheduled post to the orchestrator. The record is
// marked dispatched before the attempt runs and never reverts; failures are
// recorded on the publish attempt, not retried here.
func (s *scheduleService) Dispatch(ctx context.Context, id string) error {
	sp, err := s.sp.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sp == nil || sp.Status != models.ScheduleStatusPending {
		return nil
	}

	imageURLs := make([]string, 0, len(sp.ImageIDs))
	for i, imageID := range sp.ImageIDs {
		var crop *models.CropData
		if i < len(sp.CropData) {
			crop = &sp.CropData[i]
		}
		publicURL, err := s.resolver.ResolvePublicURL(ctx, imageID, crop)
		if err != nil {
			slog.Error("resolve image for scheduled post failed", "scheduled_id", id, "image_id", imageID, "error", err.Error())
			return s.sp.UpdateStatus(ctx, models.ScheduleStatusFailed, id)
		}
		imageURLs = append(imageURLs, publicURL)
	}

	if err := s.sp.UpdateStatus(ctx, models.ScheduleStatusDispatched, id); err != nil {
		return err
	}

	st, err := s.ps.StartPublish(ctx, &models.PublishRequest{
		PostID:    sp.PostID,
		ImageURLs: imageURLs,
		ImageIDs:  sp.ImageIDs,
		Caption:   sp.Caption,
		CropData:  sp.CropData,
	})
	if err != nil {
		slog.Error("dispatch publish failed", "scheduled_id", id, "error", err.Error())
		return nil
	}

	slog.Info("scheduled post dispatched", "scheduled_id", id, "status", st.Status, "processing_key", st.ProcessingKey)
	return nil
}

// DispatchDue sweeps pending records whose schedule time has passed. The
// asynq task is the primary trigger; this catches tasks lost while the
// process was down.
func (s *scheduleService) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.sp.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, sp := range due {
		if err := s.Dispatch(ctx, sp.ID); err != nil {
			slog.Info(err.Error())
			continue
		}
		dispatched++
	}
	return dispatched, nil
}
