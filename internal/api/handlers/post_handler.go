package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postpilot/internal/publisher"
	"github.com/maheshrc27/postpilot/internal/service"
	"github.com/maheshrc27/postpilot/internal/transfer"
)

type PostHandler struct {
	s         service.PostService
	scheduler *publisher.Scheduler
}

func NewPostHandler(service service.PostService, scheduler *publisher.Scheduler) *PostHandler {
	return &PostHandler{s: service, scheduler: scheduler}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	caption := c.FormValue("caption")
	title := c.FormValue("title")
	scheduledTime := c.FormValue("scheduling_time")
	selectedAccountsStr := c.FormValue("selected_accounts")

	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files selected",
		})
	}

	postID, conflicts, err := h.s.CreatePost(c.Context(), userID, &transfer.PostCreation{
		Caption:          caption,
		Title:            title,
		ScheduledTime:    scheduledTime,
		SelectedAccounts: selectedAccountsStr},
		files)

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	err = h.scheduler.Submit(c.Context(), postID)
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"error": "Error scheduling post",
		})
	}

	warnings := make([]fiber.Map, 0, len(conflicts))
	for _, other := range conflicts {
		warnings = append(warnings, fiber.Map{
			"post_id":        other.ID,
			"scheduled_time": other.ScheduledTime,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":   "Post scheduled successfully",
		"post_id":   postID,
		"conflicts": warnings,
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId := c.QueryInt("id", 0)

	if postId != 0 {
		post, err := h.s.PostInfo(c.Context(), int64(postId), userId)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to list posts",
			})
		}

		return c.Status(fiber.StatusOK).JSON(post)

	}

	posts, err := h.s.List(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	post, err := h.s.PostInfo(c.Context(), int64(postId), userID)
	if err != nil || post == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Post doesn't exist",
		})
	}

	err = h.scheduler.Cancel(c.Context(), int64(postId))
	if err != nil {
		if errors.Is(err, publisher.ErrNotCancellable) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to cancel post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) RetryFailed(c *fiber.Ctx) error {
	userID := GetUserID(c)

	retried, err := h.scheduler.RetryFailed(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to retry failed posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"retried": retried,
	})
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(postId))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
