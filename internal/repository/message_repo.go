package repository

import (
	"context"

	"github.com/saeid-a/CareMarketBack/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, is_read, created_at`

func scanMessage(row interface{ Scan(dest ...any) error }) (*models.Message, error) {
	var message models.Message
	if err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.IsRead,
		&message.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		message.ID,
		message.ConversationID,
		message.SenderID,
		message.ReceiverID,
		message.Content,
		message.IsRead,
		message.CreatedAt,
	)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`
	message, err := scanMessage(r.db.QueryRow(ctx, query, messageID))
	if err != nil {
		return nil, notFound(err)
	}
	return message, nil
}

// ListByConversation returns the whole thread oldest first. seq breaks ties
// between messages stamped with the same instant.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *MessageRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int, error) {
	query := `
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1
		  AND receiver_id = $2
		  AND is_read = FALSE
	`
	tag, err := r.db.Exec(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, receiverID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE receiver_id = $1
		  AND is_read = FALSE
	`
	var count int
	if err := r.db.QueryRow(ctx, query, receiverID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MessageRepository) Delete(ctx context.Context, messageID string) (*models.Message, error) {
	query := `
		DELETE FROM messages
		WHERE id = $1
		RETURNING ` + messageColumns

	message, err := scanMessage(r.db.QueryRow(ctx, query, messageID))
	if err != nil {
		return nil, notFound(err)
	}
	return message, nil
}
