// Package store defines the Persistence Port every service depends on and
// the local snapshot-backed implementation. The Postgres implementation
// lives in internal/repository; both must satisfy storetest.Run.
package store

import (
	"context"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/models"
)

type ConversationStore interface {
	// CreateOrGetConversation returns the existing conversation for the
	// unordered pair in conv, or stores conv when none exists.
	CreateOrGetConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListConversationsForParticipant(ctx context.Context, participantID string) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

type MessageStore interface {
	// AppendMessage stores msg and advances the conversation's
	// LastMessageAt in one write. msg.CreatedAt is raised to the
	// conversation's LastMessageAt when it is earlier, and the stored value
	// is written back to msg.
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID string, readerID string) (int, error)
	CountUnreadMessages(ctx context.Context, receiverID string) (int, error)
	DeleteMessage(ctx context.Context, messageID string) (*models.Message, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, notification *models.Notification) error
	GetNotification(ctx context.Context, notificationID string) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	// MarkNotificationRead reports whether the record flipped from unread.
	MarkNotificationRead(ctx context.Context, notificationID string) (*models.Notification, bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, notificationID string) (*models.Notification, error)
}

type AppointmentStore interface {
	// CreateAppointment inserts appt unless an active appointment of the
	// same provider overlaps it. The overlap scan and the insert are one
	// atomic step; a conflict yields a *CollisionError.
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	FindConflict(ctx context.Context, providerID string, start, end time.Time) (*models.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error)
	ListAppointmentsForProviders(ctx context.Context, providerIDs []string) ([]models.Appointment, error)
	ListAppointmentsForClient(ctx context.Context, clientID string) ([]models.Appointment, error)
	ListAllAppointments(ctx context.Context) ([]models.Appointment, error)
	// UpdateAppointmentStatusIfCurrent applies next only while the stored
	// status still equals current, else ErrStaleStatus.
	UpdateAppointmentStatusIfCurrent(
		ctx context.Context,
		appointmentID string,
		current models.AppointmentStatus,
		next models.AppointmentStatus,
		updatedAt time.Time,
	) (*models.Appointment, error)
}

type DirectoryStore interface {
	ListProviderIDsForUser(ctx context.Context, userID string) ([]string, error)
	GetProviderProfile(ctx context.Context, providerID string) (*models.ProviderProfile, error)
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type Store interface {
	ConversationStore
	MessageStore
	NotificationStore
	AppointmentStore
	DirectoryStore

	Init(ctx context.Context) error
	Close() error
}
