package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CareMarketBack/internal/models"
)

type NotificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, type, title, message, link, is_read, created_at`

func scanNotification(row interface{ Scan(dest ...any) error }) (*models.Notification, error) {
	var notification models.Notification
	var notificationType string
	var link sql.NullString
	if err := row.Scan(
		&notification.ID,
		&notification.UserID,
		&notificationType,
		&notification.Title,
		&notification.Message,
		&link,
		&notification.IsRead,
		&notification.CreatedAt,
	); err != nil {
		return nil, err
	}
	notification.Type = models.NotificationType(notificationType)
	if link.Valid {
		notification.Link = &link.String
	}
	return &notification, nil
}

func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		notification.ID,
		notification.UserID,
		string(notification.Type),
		notification.Title,
		notification.Message,
		notification.Link,
		notification.IsRead,
		notification.CreatedAt,
	)
	return err
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *notification)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1
		  AND is_read = FALSE
	`, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, notificationID string) (*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1
	`
	notification, err := scanNotification(r.db.QueryRow(ctx, query, notificationID))
	if err != nil {
		return nil, notFound(err)
	}
	return notification, nil
}

// MarkRead flips is_read only when it was unset; the boolean reports whether
// this call changed anything.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string) (*models.Notification, bool, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1
		  AND is_read = FALSE
		RETURNING ` + notificationColumns

	notification, err := scanNotification(r.db.QueryRow(ctx, query, notificationID))
	if err == nil {
		return notification, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	notification, err = r.GetByID(ctx, notificationID)
	if err != nil {
		return nil, false, err
	}
	return notification, false, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE user_id = $1
		  AND is_read = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, notificationID string) (*models.Notification, error) {
	query := `
		DELETE FROM notifications
		WHERE id = $1
		RETURNING ` + notificationColumns

	notification, err := scanNotification(r.db.QueryRow(ctx, query, notificationID))
	if err != nil {
		return nil, notFound(err)
	}
	return notification, nil
}
