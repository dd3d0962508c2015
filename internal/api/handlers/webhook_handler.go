package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postpilot/internal/service"
)

type WebhookHandler struct {
	s service.WebhookService
}

func NewWebhookHandler(service service.WebhookService) *WebhookHandler {
	return &WebhookHandler{s: service}
}

// CreateWebhook registers a subscription. The signing secret is only ever
// returned in this response.
func (h *WebhookHandler) CreateWebhook(c *fiber.Ctx) error {
	userID := GetUserID(c)

	endpoint := c.FormValue("url")
	events := strings.Split(c.FormValue("events"), ",")

	ws, err := h.s.Create(c.Context(), userID, endpoint, events)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":     ws.ID,
		"url":    ws.URL,
		"events": ws.Events,
		"secret": ws.Secret,
	})
}

func (h *WebhookHandler) ListWebhooks(c *fiber.Ctx) error {
	userID := GetUserID(c)

	subs, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list webhook subscriptions",
		})
	}

	return c.Status(fiber.StatusOK).JSON(subs)
}

func (h *WebhookHandler) RemoveWebhook(c *fiber.Ctx) error {
	userID := GetUserID(c)
	subId := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(subId))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to remove webhook subscription",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
