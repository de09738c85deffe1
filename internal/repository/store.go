package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
	"go.uber.org/zap"
)

// Store is the Postgres implementation of store.Store. Every method that
// touches more than one row runs in its own transaction.
type Store struct {
	pool          *pgxpool.Pool
	logger        *zap.Logger
	conversations *ConversationRepository
	messages      *MessageRepository
	notifications *NotificationRepository
	appointments  *AppointmentRepository
	directory     *DirectoryRepository
}

var _ store.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:          pool,
		logger:        logger.Named("store.postgres"),
		conversations: NewConversationRepository(pool),
		messages:      NewMessageRepository(pool),
		notifications: NewNotificationRepository(pool),
		appointments:  NewAppointmentRepository(pool),
		directory:     NewDirectoryRepository(pool),
	}
}

func (s *Store) Init(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Seed upserts directory records. Existing rows are overwritten.
func (s *Store) Seed(ctx context.Context, seed store.Seed) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		directory := NewDirectoryRepository(tx)
		for _, provider := range seed.Providers {
			if err := directory.UpsertProviderProfile(ctx, provider); err != nil {
				return fmt.Errorf("seed provider %s: %w", provider.ID, err)
			}
		}
		for _, user := range seed.Users {
			if err := directory.UpsertUserProfile(ctx, user); err != nil {
				return fmt.Errorf("seed user %s: %w", user.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateOrGetConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	return s.conversations.CreateOrGet(ctx, conv)
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return s.conversations.GetByID(ctx, conversationID)
}

func (s *Store) ListConversationsForParticipant(ctx context.Context, participantID string) ([]models.ConversationSummary, error) {
	return s.conversations.ListForParticipant(ctx, participantID)
}

// DeleteConversation relies on ON DELETE CASCADE to drop the thread.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	deleted, err := s.conversations.Delete(ctx, conversationID)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		createdAt, err := NewConversationRepository(tx).Touch(ctx, msg.ConversationID, msg.CreatedAt)
		if err != nil {
			return err
		}
		stored := *msg
		stored.CreatedAt = createdAt
		if err := NewMessageRepository(tx).Create(ctx, &stored); err != nil {
			return err
		}
		msg.CreatedAt = createdAt
		return nil
	})
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	return s.messages.GetByID(ctx, messageID)
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID)
}

func (s *Store) MarkConversationRead(ctx context.Context, conversationID string, readerID string) (int, error) {
	return s.messages.MarkConversationRead(ctx, conversationID, readerID)
}

func (s *Store) CountUnreadMessages(ctx context.Context, receiverID string) (int, error) {
	return s.messages.CountUnread(ctx, receiverID)
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) (*models.Message, error) {
	return s.messages.Delete(ctx, messageID)
}

func (s *Store) InsertNotification(ctx context.Context, notification *models.Notification) error {
	return s.notifications.Create(ctx, notification)
}

func (s *Store) GetNotification(ctx context.Context, notificationID string) (*models.Notification, error) {
	return s.notifications.GetByID(ctx, notificationID)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return s.notifications.ListByUser(ctx, userID, limit)
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

func (s *Store) MarkNotificationRead(ctx context.Context, notificationID string) (*models.Notification, bool, error) {
	return s.notifications.MarkRead(ctx, notificationID)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *Store) DeleteNotification(ctx context.Context, notificationID string) (*models.Notification, error) {
	return s.notifications.Delete(ctx, notificationID)
}

// CreateAppointment serializes bookings per provider with a transaction
// scoped advisory lock, then checks for overlap before inserting. The
// appointments_no_overlap exclusion constraint backs this up for writers
// that bypass the lock.
func (s *Store) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", appt.ProviderID); err != nil {
			return err
		}

		repo := NewAppointmentRepository(tx)
		conflict, err := repo.FindConflict(ctx, appt.ProviderID, appt.DateTime, appt.End())
		if err != nil {
			return err
		}
		if conflict != nil {
			return &store.CollisionError{
				ProviderID:     appt.ProviderID,
				RequestedStart: appt.DateTime,
				RequestedEnd:   appt.End(),
				ConflictingID:  conflict.ID,
				ConflictStart:  conflict.DateTime,
				ConflictEnd:    conflict.End(),
			}
		}

		if err := repo.Create(ctx, appt); err != nil {
			if pgErrorCode(err) == pgExclusionViolation {
				s.logger.Warn("exclusion constraint caught overlapping booking",
					zap.String("provider_id", appt.ProviderID),
					zap.Time("start", appt.DateTime),
				)
				return &store.CollisionError{
					ProviderID:     appt.ProviderID,
					RequestedStart: appt.DateTime,
					RequestedEnd:   appt.End(),
				}
			}
			if pgErrorCode(err) == pgUniqueViolation {
				return fmt.Errorf("appointment %s already exists: %w", appt.ID, err)
			}
			return err
		}
		return nil
	})
}

func (s *Store) FindConflict(ctx context.Context, providerID string, start, end time.Time) (*models.Appointment, error) {
	return s.appointments.FindConflict(ctx, providerID, start, end)
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	return s.appointments.GetByID(ctx, appointmentID)
}

func (s *Store) ListAppointmentsForProviders(ctx context.Context, providerIDs []string) ([]models.Appointment, error) {
	return s.appointments.ListForProviders(ctx, providerIDs)
}

func (s *Store) ListAppointmentsForClient(ctx context.Context, clientID string) ([]models.Appointment, error) {
	return s.appointments.ListForClient(ctx, clientID)
}

func (s *Store) ListAllAppointments(ctx context.Context) ([]models.Appointment, error) {
	return s.appointments.ListAll(ctx)
}

func (s *Store) UpdateAppointmentStatusIfCurrent(
	ctx context.Context,
	appointmentID string,
	current models.AppointmentStatus,
	next models.AppointmentStatus,
	updatedAt time.Time,
) (*models.Appointment, error) {
	return s.appointments.UpdateStatusIfCurrent(ctx, appointmentID, current, next, updatedAt)
}

func (s *Store) ListProviderIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return s.directory.ListProviderIDsForUser(ctx, userID)
}

func (s *Store) GetProviderProfile(ctx context.Context, providerID string) (*models.ProviderProfile, error) {
	return s.directory.GetProviderProfile(ctx, providerID)
}

func (s *Store) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.directory.GetUserProfile(ctx, userID)
}
