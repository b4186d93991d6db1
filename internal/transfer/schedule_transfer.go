package transfer

import "github.com/maheshrc27/instapress/internal/models"

type ScheduleCreation struct {
	PostID       int64             `json:"post_id"`
	ImageIDs     []int64           `json:"image_ids"`
	CropData     []models.CropData `json:"crop_data"`
	Caption      string            `json:"caption"`
	ScheduleTime string            `json:"schedule_time"` // RFC 3339
}

type MediaPublishCreation struct {
	AttachmentIDs []int64 `json:"attachment_ids"`
	Caption       string  `json:"caption"`
	AspectRatio   string  `json:"aspect_ratio"`
	PostID        int64   `json:"post_id"`
}
