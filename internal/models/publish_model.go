package models

import "time"

// Container states reported by the Graph API, mapped into our vocabulary.
const (
	ContainerStateCreated = "created"
	ContainerStatePending = "pending"
	ContainerStateReady   = "ready"
	ContainerStateError   = "error"
)

// PublishAttempt statuses.
const (
	AttemptStatusCreating   = "creating"
	AttemptStatusPolling    = "polling"
	AttemptStatusPublishing = "publishing"
	AttemptStatusDone       = "done"
	AttemptStatusFailed     = "failed"
)

type PublishRequest struct {
	PostID    int64      `json:"post_id"`
	ImageURLs []string   `json:"image_urls"`
	ImageIDs  []int64    `json:"image_ids"`
	Caption   string     `json:"caption"`
	CropData  []CropData `json:"crop_data,omitempty"`
}

// ContainerRecord tracks one remote media container. One record per image;
// the carousel parent is tracked separately on the attempt.
type ContainerRecord struct {
	ContainerID   string    `json:"container_id"`
	ImageURL      string    `json:"image_url"`
	State         string    `json:"state"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Attempts      int       `json:"attempts"`
}

type PublishResult struct {
	MediaID   string `json:"media_id"`
	Permalink string `json:"permalink"`
}

type AttemptError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PublishAttempt is the unit of work for one processing key. It is the only
// state shared between independent StartPublish/QueryStatus invocations and
// lives in the progress store until its TTL expires.
type PublishAttempt struct {
	ProcessingKey string            `json:"processing_key"`
	Request       PublishRequest    `json:"request"`
	Containers    []ContainerRecord `json:"containers"`
	CarouselID    string            `json:"carousel_id,omitempty"`
	CarouselState string            `json:"carousel_state,omitempty"`
	Status        string            `json:"status"`
	Publishing    bool              `json:"publishing"`
	Published     bool              `json:"published"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Result        *PublishResult    `json:"result,omitempty"`
	Error         *AttemptError     `json:"error,omitempty"`
}

// Counts returns item container totals. The carousel parent does not count
// toward total; readiness gates on the items.
func (a *PublishAttempt) Counts() (total, ready, pending int) {
	total = len(a.Containers)
	for _, c := range a.Containers {
		switch c.State {
		case ContainerStateReady:
			ready++
		default:
			pending++
		}
	}
	return total, ready, pending
}

func (a *PublishAttempt) AllReady() bool {
	for _, c := range a.Containers {
		if c.State != ContainerStateReady {
			return false
		}
	}
	return len(a.Containers) > 0
}
