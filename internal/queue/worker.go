package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandleDispatchPostTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return q.ss.Dispatch(ctx, payload.ScheduledID)
}
