package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/instapress/internal/models"
	"github.com/maheshrc27/instapress/internal/service"
	"github.com/maheshrc27/instapress/internal/transfer"
)

type PublishHandler struct {
	s service.PublishService
}

func NewPublishHandler(s service.PublishService) *PublishHandler {
	return &PublishHandler{s: s}
}

func (h *PublishHandler) StartPublish(c *fiber.Ctx) error {
	var pc transfer.PublishCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	st, err := h.s.StartPublish(c.Context(), &models.PublishRequest{
		PostID:    pc.PostID,
		ImageURLs: pc.ImageURLs,
		ImageIDs:  pc.ImageIDs,
		Caption:   pc.Caption,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(st)
}

func (h *PublishHandler) QueryStatus(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Processing key is required",
		})
	}

	st, err := h.s.QueryStatus(c.Context(), key)
	if err != nil {
		return errorResponse(c, err)
	}

	if st.Status == transfer.StatusNotFound {
		return c.Status(fiber.StatusNotFound).JSON(st)
	}
	return c.Status(fiber.StatusOK).JSON(st)
}
