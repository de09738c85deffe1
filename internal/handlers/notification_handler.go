package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/services"
)

type notificationApplicationService interface {
	List(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	Get(ctx context.Context, notificationID string) (*models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, notificationID string) (bool, error)
}

type NotificationHandler struct {
	service notificationApplicationService
}

func NewNotificationHandler(service notificationApplicationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	limit := parsePositiveInt(c.Query("limit"), 0)
	notifications, err := h.service.List(c.Context(), userID, limit)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"notifications": notifications})
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	count, err := h.service.UnreadCount(c.Context(), userID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"unread_count": count})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	notificationID := c.Params("id")
	if err := h.requireOwner(c.Context(), userID, notificationID); err != nil {
		return mapError(c, err)
	}

	updated, err := h.service.MarkRead(c.Context(), notificationID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"updated": updated})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	updated, err := h.service.MarkAllRead(c.Context(), userID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"updated": updated})
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	notificationID := c.Params("id")
	if err := h.requireOwner(c.Context(), userID, notificationID); err != nil {
		return mapError(c, err)
	}

	deleted, err := h.service.Delete(c.Context(), notificationID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}

func (h *NotificationHandler) requireOwner(ctx context.Context, userID string, notificationID string) error {
	notification, err := h.service.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if notification.UserID != userID {
		return services.ErrForbidden
	}
	return nil
}
