package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/instapress/configs"
	"github.com/maheshrc27/instapress/internal/apperr"
	"github.com/maheshrc27/instapress/internal/models"
	"github.com/maheshrc27/instapress/internal/progress"
	"github.com/maheshrc27/instapress/internal/transfer"
)

const (
	maxImages     = 10
	maxCaptionLen = 2200

	// publishLockTTL bounds how long a crashed publisher can hold the claim.
	publishLockTTL = 30 * time.Second

	statusCheckConcurrency = 5
)

// MediaClient is the remote container API consumed by the orchestrator.
type MediaClient interface {
	CreateItemContainer(ctx context.Context, imageURL string, carouselItem bool, caption string) (string, error)
	CreateCarouselContainer(ctx context.Context, children []string, caption string) (string, error)
	ContainerStatus(ctx context.Context, containerID string) (string, error)
	Publish(ctx context.Context, containerID string) (mediaID, permalink string, err error)
}

type PublishService interface {
	StartPublish(ctx context.Context, req *models.PublishRequest) (*transfer.PublishStatus, error)
	QueryStatus(ctx context.Context, processingKey string) (*transfer.PublishStatus, error)
}

// publishService drives a publish attempt through
// creating -> polling -> publishing -> done/failed. Progress advances only
// when a caller invokes StartPublish or QueryStatus; between invocations the
// attempt lives in the progress store.
type publishService struct {
	cfg   config.Config
	ig    MediaClient
	store progress.Store
}

func NewPublishService(cfg config.Config, ig MediaClient, store progress.Store) PublishService {
	return &publishService{cfg: cfg, ig: ig, store: store}
}

func (s *publishService) StartPublish(ctx context.Context, req *models.PublishRequest) (*transfer.PublishStatus, error) {
	if err := validatePublishRequest(req); err != nil {
		return nil, err
	}

	key, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	now := time.Now()
	attempt := &models.PublishAttempt{
		ProcessingKey: key,
		Request:       *req,
		Status:        models.AttemptStatusCreating,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.ProgressTTL),
	}

	// One container per image. Partially created containers on failure are
	// abandoned; the provider expires them.
	single := len(req.ImageURLs) == 1
	for _, imageURL := range req.ImageURLs {
		caption := ""
		if single {
			caption = req.Caption
		}
		containerID, err := s.ig.CreateItemContainer(ctx, imageURL, !single, caption)
		if err != nil {
			if len(attempt.Containers) == 0 && apperr.IsAuth(err) {
				// No container work has begun; surface synchronously.
				return nil, err
			}
			return s.failAttempt(ctx, attempt, err)
		}
		attempt.Containers = append(attempt.Containers, models.ContainerRecord{
			ContainerID: containerID,
			ImageURL:    imageURL,
			State:       models.ContainerStateCreated,
		})
	}

	// Single fast images are often ready immediately; check once before
	// suspending so those publish within this call.
	s.checkContainers(ctx, attempt)
	return s.advance(ctx, attempt)
}

func (s *publishService) QueryStatus(ctx context.Context, processingKey string) (*transfer.PublishStatus, error) {
	attempt, err := s.store.Get(ctx, processingKey)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return &transfer.PublishStatus{
			Status:  transfer.StatusNotFound,
			Message: "processing key not found (expired or invalid)",
		}, nil
	}

	// Terminal states replay the stored result without remote calls.
	if attempt.Status == models.AttemptStatusDone || attempt.Status == models.AttemptStatusFailed {
		return statusOf(attempt), nil
	}

	s.checkContainers(ctx, attempt)
	return s.advance(ctx, attempt)
}

// checkContainers re-checks every non-terminal container. Checks run
// concurrently; each goroutine owns exactly one record. Transient failures
// leave the record untouched for the next poll.
func (s *publishService) checkContainers(ctx context.Context, attempt *models.PublishAttempt) {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, statusCheckConcurrency)

	for i := range attempt.Containers {
		record := &attempt.Containers[i]
		if record.State == models.ContainerStateReady || record.State == models.ContainerStateError {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(record *models.ContainerRecord) {
			defer wg.Done()
			defer func() { <-semaphore }()

			state, err := s.ig.ContainerStatus(ctx, record.ContainerID)
			record.Attempts++
			record.LastCheckedAt = time.Now()
			if err != nil {
				if apperr.IsTransient(err) {
					slog.Info("container status check failed, will retry on next poll",
						"container_id", record.ContainerID, "error", err.Error())
					return
				}
				record.State = models.ContainerStateError
				return
			}
			record.State = state
		}(record)
	}
	wg.Wait()
}

// advance persists the attempt in its post-check state and moves it to
// publishing when every container is ready.
func (s *publishService) advance(ctx context.Context, attempt *models.PublishAttempt) (*transfer.PublishStatus, error) {
	for _, record := range attempt.Containers {
		if record.State == models.ContainerStateError {
			err := fmt.Errorf("container %s failed remote processing", record.ContainerID)
			return s.failAttempt(ctx, attempt, err)
		}
	}

	if attempt.AllReady() {
		return s.tryPublish(ctx, attempt)
	}

	attempt.Status = models.AttemptStatusPolling
	if err := s.put(ctx, attempt); err != nil {
		return nil, err
	}
	return statusOf(attempt), nil
}

// tryPublish is the attempt's critical section. The store's conditional
// claim guarantees at most one caller issues the publish call; everyone else
// observes and reports.
func (s *publishService) tryPublish(ctx context.Context, attempt *models.PublishAttempt) (*transfer.PublishStatus, error) {
	if attempt.Published {
		return statusOf(attempt), nil
	}

	claimed, err := s.store.ClaimPublishing(ctx, attempt.ProcessingKey, publishLockTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		st := statusOf(attempt)
		st.Status = transfer.StatusPublishing
		st.Publishing = true
		st.Message = "Publish in progress"
		return st, nil
	}
	defer s.store.ReleasePublishing(ctx, attempt.ProcessingKey)

	// Re-read under the claim: another poller may have finished between our
	// read and the claim.
	current, err := s.store.Get(ctx, attempt.ProcessingKey)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if current.Status == models.AttemptStatusDone || current.Status == models.AttemptStatusFailed {
			return statusOf(current), nil
		}
		attempt = current
	}

	attempt.Publishing = true
	attempt.Status = models.AttemptStatusPublishing
	if err := s.put(ctx, attempt); err != nil {
		return nil, err
	}

	target, suspended, err := s.ensureTarget(ctx, attempt)
	if err != nil || suspended != nil {
		return suspended, err
	}

	mediaID, permalink, err := s.ig.Publish(ctx, target)
	if err != nil {
		slog.Error("publish failed", "processing_key", attempt.ProcessingKey, "error", err.Error())
		attempt.Publishing = false
		attempt.Error = attemptError(err)
		if s.cfg.RetryPublish {
			attempt.Status = models.AttemptStatusPolling
		} else {
			attempt.Status = models.AttemptStatusFailed
		}
		if perr := s.put(ctx, attempt); perr != nil {
			return nil, perr
		}
		return statusOf(attempt), nil
	}

	attempt.Publishing = false
	attempt.Published = true
	attempt.Status = models.AttemptStatusDone
	attempt.Result = &models.PublishResult{MediaID: mediaID, Permalink: permalink}
	if err := s.put(ctx, attempt); err != nil {
		return nil, err
	}
	return statusOf(attempt), nil
}

// ensureTarget returns the container id to publish. For carousels the parent
// is created once all items are ready, and must itself finish processing; if
// it is still pending the attempt suspends back to polling with a non-nil
// status.
func (s *publishService) ensureTarget(ctx context.Context, attempt *models.PublishAttempt) (string, *transfer.PublishStatus, error) {
	if len(attempt.Containers) == 1 {
		return attempt.Containers[0].ContainerID, nil, nil
	}

	if attempt.CarouselID == "" {
		children := make([]string, 0, len(attempt.Containers))
		for _, record := range attempt.Containers {
			children = append(children, record.ContainerID)
		}

		carouselID, err := s.ig.CreateCarouselContainer(ctx, children, attempt.Request.Caption)
		if err != nil {
			st, ferr := s.failAttempt(ctx, attempt, err)
			return "", st, ferr
		}
		attempt.CarouselID = carouselID
		attempt.CarouselState = models.ContainerStateCreated
		if err := s.put(ctx, attempt); err != nil {
			return "", nil, err
		}
	}

	if attempt.CarouselState != models.ContainerStateReady {
		state, err := s.ig.ContainerStatus(ctx, attempt.CarouselID)
		if err != nil {
			if apperr.IsTransient(err) {
				st, serr := s.suspendPolling(ctx, attempt)
				return "", st, serr
			}
			st, ferr := s.failAttempt(ctx, attempt, err)
			return "", st, ferr
		}

		attempt.CarouselState = state
		switch state {
		case models.ContainerStateError:
			st, ferr := s.failAttempt(ctx, attempt, fmt.Errorf("carousel container %s failed remote processing", attempt.CarouselID))
			return "", st, ferr
		case models.ContainerStatePending:
			st, serr := s.suspendPolling(ctx, attempt)
			return "", st, serr
		}
	}

	return attempt.CarouselID, nil, nil
}

func (s *publishService) suspendPolling(ctx context.Context, attempt *models.PublishAttempt) (*transfer.PublishStatus, error) {
	attempt.Publishing = false
	attempt.Status = models.AttemptStatusPolling
	if err := s.put(ctx, attempt); err != nil {
		return nil, err
	}
	return statusOf(attempt), nil
}

func (s *publishService) failAttempt(ctx context.Context, attempt *models.PublishAttempt, cause error) (*transfer.PublishStatus, error) {
	slog.Error("publish attempt failed", "processing_key", attempt.ProcessingKey, "error", cause.Error())
	attempt.Publishing = false
	attempt.Status = models.AttemptStatusFailed
	attempt.Error = attemptError(cause)
	if err := s.put(ctx, attempt); err != nil {
		return nil, err
	}
	return statusOf(attempt), nil
}

func (s *publishService) put(ctx context.Context, attempt *models.PublishAttempt) error {
	ttl := time.Until(attempt.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.store.Put(ctx, attempt, ttl)
}

func validatePublishRequest(req *models.PublishRequest) error {
	if req == nil || len(req.ImageURLs) == 0 {
		return apperr.Validation("at least one image url is required")
	}
	if len(req.ImageURLs) > maxImages {
		return apperr.Validation("at most %d images per post, got %d", maxImages, len(req.ImageURLs))
	}
	if len(req.ImageIDs) != len(req.ImageURLs) {
		return apperr.Validation("image_ids and image_urls must have the same length")
	}
	if len(req.Caption) > maxCaptionLen {
		return apperr.Validation("caption exceeds %d characters", maxCaptionLen)
	}
	for _, raw := range req.ImageURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperr.Validation("invalid image url: %s", raw)
		}
	}
	return nil
}

func statusOf(attempt *models.PublishAttempt) *transfer.PublishStatus {
	total, ready, pending := attempt.Counts()
	st := &transfer.PublishStatus{
		ProcessingKey: attempt.ProcessingKey,
		Total:         total,
		Ready:         ready,
		Pending:       pending,
	}

	switch attempt.Status {
	case models.AttemptStatusDone:
		st.Status = transfer.StatusCompleted
		st.Message = "Posted to Instagram successfully"
		if attempt.Result != nil {
			st.MediaID = attempt.Result.MediaID
			st.Permalink = attempt.Result.Permalink
		}
	case models.AttemptStatusFailed:
		st.Status = transfer.StatusError
		st.Message = "Failed to post to Instagram"
		if attempt.Error != nil {
			st.Error = attempt.Error.Message
		}
	case models.AttemptStatusPublishing:
		st.Status = transfer.StatusPublishing
		st.Publishing = true
		st.Message = "Publish in progress"
	default:
		st.Status = transfer.StatusProcessing
		st.Message = "Processing containers..."
	}
	return st
}

func attemptError(err error) *models.AttemptError {
	code := "internal_error"
	switch {
	case apperr.IsTransient(err):
		code = "transient_network_error"
	case apperr.IsAuth(err):
		code = "auth_error"
	case apperr.IsValidation(err):
		code = "validation_error"
	default:
		var re *apperr.RemoteAPIError
		if errors.As(err, &re) {
			code = "remote_api_error"
		}
	}
	return &models.AttemptError{Code: code, Message: err.Error()}
}
