package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CareMarketBack/internal/services"
	"github.com/saeid-a/CareMarketBack/internal/store"
)

// mapError renders a service error using the shared error taxonomy.
func mapError(c *fiber.Ctx, err error) error {
	var collision *store.CollisionError
	switch {
	case errors.As(err, &collision):
		body := fiber.Map{
			"code":      services.CodeCollision,
			"error":     collision.Error(),
			"retryable": true,
		}
		if !collision.ConflictStart.IsZero() {
			body["conflict"] = fiber.Map{
				"start": collision.ConflictStart,
				"end":   collision.ConflictEnd,
			}
		}
		return c.Status(fiber.StatusConflict).JSON(body)
	case errors.Is(err, services.ErrCollision):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"code":      services.CodeCollision,
			"error":     "Time slot is no longer available; pick another time",
			"retryable": true,
		})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"code": services.CodeNotFound, "error": "Not found"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"code": services.CodeForbidden, "error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": services.CodeInvalidInput, "error": "Invalid status"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": services.CodeInvalidInput, "error": "Invalid request"})
	case errors.Is(err, services.ErrInvalidStateTransition), errors.Is(err, store.ErrStaleStatus):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code":  services.CodeInvalidTransition,
			"error": "Invalid state transition",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":  services.CodeUnknown,
			"error": "Internal server error",
		})
	}
}

func parseUserID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || strings.TrimSpace(userID) == "" {
		return "", strconv.ErrSyntax
	}
	return userID, nil
}

func parseRole(c *fiber.Ctx) string {
	role, _ := c.Locals("role").(string)
	return role
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
}
