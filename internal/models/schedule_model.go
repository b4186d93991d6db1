package models

import "time"

// CropData is a per-image crop rectangle captured when the post was composed.
// A zero rectangle means center-crop to the default aspect ratio at resolve time.
type CropData struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type ScheduledPost struct {
	ID           string     `db:"id" json:"id"`
	PostID       int64      `db:"post_id" json:"post_id"`
	ImageIDs     []int64    `db:"image_ids" json:"image_ids"`
	CropData     []CropData `db:"crop_data" json:"crop_data"`
	Caption      string     `db:"caption" json:"caption"`
	ScheduleTime time.Time  `db:"schedule_time" json:"schedule_time"`
	Status       string     `db:"status" json:"status"` // pending, dispatched, failed
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	ScheduleStatusPending    = "pending"
	ScheduleStatusDispatched = "dispatched"
	ScheduleStatusFailed     = "failed"
)
