package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const UserIDKey = "user_id"

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDKey).(string)
	return userID
}

// errorResponse maps service errors onto HTTP statuses. Unknown errors are
// logged and reported as 500 without their details.
func errorResponse(c *fiber.Ctx, err error) error {
	var vErr *transfer.ValidationError

	status := fiber.StatusInternalServerError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, service.ErrInvalidPost),
		errors.Is(err, service.ErrUnsupportedFile):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = fiber.StatusUnauthorized
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrPromptNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateUser):
		status = fiber.StatusConflict
	}

	if status == fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "err", err)
		return c.Status(status).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}
