package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postpilot/internal/service"
)

type UserHandler struct {
	s service.UserService
}

func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{s: service}
}

func (h *UserHandler) GetUserInfo(c *fiber.Ctx) error {
	userId := GetUserID(c)

	user, err := h.s.UserInfo(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to get user info",
		})
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

func (h *UserHandler) RemoveUser(c *fiber.Ctx) error {
	userId := GetUserID(c)

	err := h.s.RemoveUser(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to remove user",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
