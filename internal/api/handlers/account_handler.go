package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postpilot/internal/service"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accounts, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) AccountHealth(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	health, err := h.s.Health(c.Context(), userID, int64(accountId))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to check account health",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id": accountId,
		"health":     health,
	})
}

func (h *AccountHandler) RemoveAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(accountId))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to remove social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
