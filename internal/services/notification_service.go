package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100
)

// Notifier is what the messaging and appointment services need from the
// notification service.
type Notifier interface {
	Notify(ctx context.Context, input CreateNotificationInput)
}

type CreateNotificationInput struct {
	UserID  string
	Type    models.NotificationType
	Title   string
	Message string
	Link    *string
}

type NotificationService struct {
	store        store.NotificationStore
	deps         Deps
	defaultLimit int
}

func NewNotificationService(st store.NotificationStore, deps Deps) *NotificationService {
	return &NotificationService{
		store:        st,
		deps:         deps.withDefaults("notifications"),
		defaultLimit: DefaultNotificationLimit,
	}
}

// SetDefaultLimit changes the page size used when List is called without one.
func (s *NotificationService) SetDefaultLimit(limit int) {
	if limit > 0 && limit <= MaxNotificationLimit {
		s.defaultLimit = limit
	}
}

func (s *NotificationService) Create(
	ctx context.Context,
	input CreateNotificationInput,
) (*models.Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	title := strings.TrimSpace(input.Title)
	if userID == "" || title == "" || !input.Type.Valid() {
		return nil, ErrInvalidInput
	}

	notification := &models.Notification{
		ID:        s.deps.IDs.NewID(),
		UserID:    userID,
		Type:      input.Type,
		Title:     title,
		Message:   strings.TrimSpace(input.Message),
		Link:      input.Link,
		IsRead:    false,
		CreatedAt: s.deps.clock(),
	}
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.deps.publish(ctx, events.TopicNotifications, events.NotificationEvent{
		Action:       events.ActionCreated,
		UserID:       notification.UserID,
		Notification: notification,
	})
	return notification, nil
}

// Notify creates a notification as a side effect of another action. Errors
// are logged and swallowed so the primary action never fails because of it.
func (s *NotificationService) Notify(ctx context.Context, input CreateNotificationInput) {
	if _, err := s.Create(ctx, input); err != nil {
		s.deps.Logger.Warn("notification dropped",
			zap.String("user_id", input.UserID),
			zap.String("type", string(input.Type)),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	return s.store.ListNotifications(ctx, userID, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

func (s *NotificationService) Get(ctx context.Context, notificationID string) (*models.Notification, error) {
	return s.store.GetNotification(ctx, notificationID)
}

// MarkRead reports whether the notification flipped from unread. An event
// is published only when it did.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	notification, changed, err := s.store.MarkNotificationRead(ctx, notificationID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	if changed {
		s.deps.publish(ctx, events.TopicNotifications, events.NotificationEvent{
			Action:       events.ActionUpdated,
			UserID:       notification.UserID,
			Notification: notification,
		})
	}
	return changed, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	if count > 0 {
		s.deps.publish(ctx, events.TopicNotifications, events.NotificationEvent{
			Action: events.ActionMarkAllRead,
			UserID: userID,
			Count:  count,
		})
	}
	return count, nil
}

// Delete reports whether a record was removed; an unknown id is not an error.
func (s *NotificationService) Delete(ctx context.Context, notificationID string) (bool, error) {
	notification, err := s.store.DeleteNotification(ctx, notificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete notification: %w", err)
	}
	s.deps.publish(ctx, events.TopicNotifications, events.NotificationEvent{
		Action:       events.ActionDeleted,
		UserID:       notification.UserID,
		Notification: notification,
	})
	return true, nil
}
