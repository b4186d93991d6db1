package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/instapress/internal/apperr"
)

// errorResponse maps domain errors onto HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case apperr.IsValidation(err):
		status = fiber.StatusBadRequest
	case apperr.IsAuth(err):
		status = fiber.StatusUnauthorized
	case apperr.IsNotFound(err):
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
