package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/instapress/internal/queue"
	"github.com/maheshrc27/instapress/internal/service"
	"github.com/maheshrc27/instapress/internal/transfer"
)

type ScheduleHandler struct {
	s           service.ScheduleService
	AsynqClient *asynq.Client
}

func NewScheduleHandler(s service.ScheduleService, asynqClient *asynq.Client) *ScheduleHandler {
	return &ScheduleHandler{s: s, AsynqClient: asynqClient}
}

func (h *ScheduleHandler) Schedule(c *fiber.Ctx) error {
	var sc transfer.ScheduleCreation
	if err := c.BodyParser(&sc); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	sp, delay, err := h.s.Schedule(c.Context(), &sc)
	if err != nil {
		return errorResponse(c, err)
	}

	err = queue.EnqueueDispatch(h.AsynqClient, queue.DispatchPostPayload{ScheduledID: sp.ID}, delay)
	if err != nil {
		// The cron sweep will still dispatch the record once due.
		slog.Error("failed to enqueue dispatch task", "scheduled_id", sp.ID, "error", err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":        "Post scheduled successfully",
		"scheduled_post": sp,
	})
}

func (h *ScheduleHandler) ListScheduled(c *fiber.Ctx) error {
	postID := c.QueryInt("post_id", 0)

	posts, err := h.s.List(c.Context(), int64(postID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list scheduled posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *ScheduleHandler) Cancel(c *fiber.Ctx) error {
	id := c.Query("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Scheduled post id is required",
		})
	}

	if err := h.s.Cancel(c.Context(), id); err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
