package handlers

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/instapress/configs"
	"github.com/maheshrc27/instapress/internal/service"
	"github.com/maheshrc27/instapress/pkg/utils"
)

const sessionDuration = 24 * time.Hour

type AuthHandler struct {
	cfg config.Config
	s   service.AuthService
}

func NewAuthHandler(cfg config.Config, s service.AuthService) *AuthHandler {
	return &AuthHandler{cfg: cfg, s: s}
}

// Login exchanges the API key for a session cookie so browser clients do not
// have to carry the key on every request.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := c.BodyParser(&body); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if h.cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(body.APIKey), []byte(h.cfg.APIKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid API key",
		})
	}

	token, err := utils.GenerateToken(h.cfg.SecretKey, "operator", sessionDuration)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to create session",
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionDuration.Seconds()),
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logged in",
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:   h.cfg.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.SendStatus(fiber.StatusOK)
}

func (h *AuthHandler) Status(c *fiber.Ctx) error {
	st, err := h.s.Status(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(st)
}

func (h *AuthHandler) SaveCredentials(c *fiber.Ctx) error {
	var body struct {
		AppID     string `json:"app_id"`
		AppSecret string `json:"app_secret"`
	}
	if err := c.BodyParser(&body); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.SaveCredentials(c.Context(), body.AppID, body.AppSecret); err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Credentials saved",
	})
}

func (h *AuthHandler) Disconnect(c *fiber.Ctx) error {
	if err := h.s.Disconnect(c.Context()); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// Callback handles the Instagram OAuth redirect.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	if err := h.s.Callback(c.Context(), code); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Instagram account connected",
	})
}
