package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/instapress/internal/models"
	"github.com/maheshrc27/instapress/internal/service"
	"github.com/maheshrc27/instapress/internal/transfer"
)

type MediaHandler struct {
	ms service.MediaService
	ps service.PublishService
}

func NewMediaHandler(ms service.MediaService, ps service.PublishService) *MediaHandler {
	return &MediaHandler{ms: ms, ps: ps}
}

func (h *MediaHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	search := c.Query("search")

	assets, err := h.ms.List(c.Context(), limit, search)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list media",
		})
	}

	return c.Status(fiber.StatusOK).JSON(assets)
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse multipart form",
		})
	}

	files := form.File["files"]
	assets, err := h.ms.Upload(c.Context(), files)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(assets)
}

// PublishFromMedia starts a publish attempt from stored media assets,
// center-cropping each one to the requested aspect ratio.
func (h *MediaHandler) PublishFromMedia(c *fiber.Ctx) error {
	var mc transfer.MediaPublishCreation
	if err := c.BodyParser(&mc); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	urls, err := h.ms.ResolveForAspect(c.Context(), mc.AttachmentIDs, mc.AspectRatio)
	if err != nil {
		return errorResponse(c, err)
	}

	status, err := h.ps.StartPublish(c.Context(), &models.PublishRequest{
		PostID:    mc.PostID,
		ImageURLs: urls,
		ImageIDs:  mc.AttachmentIDs,
		Caption:   mc.Caption,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
