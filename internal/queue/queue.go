package queue

import (
	"github.com/maheshrc27/instapress/internal/service"
)

type Queue struct {
	ss service.ScheduleService
}

func NewQueue(ss service.ScheduleService) *Queue {
	return &Queue{ss: ss}
}

const TaskTypeDispatchPost = "schedule:dispatch"

type DispatchPostPayload struct {
	ScheduledID string `json:"scheduled_id"`
}
