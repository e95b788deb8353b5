package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/middleware"
	"github.com/sourpie/gitknow/internal/port"
)

// currentUser returns the authenticated user, or nil when the request is anonymous.
func currentUser(c fiber.Ctx) *domain.User {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return nil
	}
	return uc.User()
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}

// statusFor maps a service error to an HTTP status and the message shown to the user.
// Causes of internal failures are never exposed.
func statusFor(err error) (int, string) {
	var ue *port.UserError
	if errors.As(err, &ue) {
		if ue.Kind == port.KindBadInput {
			return fiber.StatusBadRequest, ue.Message
		}
		return fiber.StatusInternalServerError, ue.Message
	}

	switch {
	case errors.Is(err, port.ErrInvalidInput),
		errors.Is(err, port.ErrInvalidRepoURL),
		errors.Is(err, port.ErrMissingRepoURL):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, port.ErrProjectNotFound):
		return fiber.StatusNotFound, "project not found"
	case errors.Is(err, port.ErrForbidden):
		return fiber.StatusForbidden, "you are not a member of this project"
	case errors.Is(err, port.ErrProjectArchived):
		return fiber.StatusGone, "project has been archived"
	case errors.Is(err, port.ErrAlreadyIndexed):
		return fiber.StatusConflict, "project is already indexed; reindex with clear set to true"
	case errors.Is(err, port.ErrFetchFailed), errors.Is(err, port.ErrEmptyRepository):
		return fiber.StatusBadGateway, "could not read the repository"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

// respondError writes err as {"error": msg} and logs server-side failures.
func respondError(c fiber.Ctx, err error) error {
	status, msg := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
