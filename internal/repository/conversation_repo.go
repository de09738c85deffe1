package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, participant_low, participant_high, created_at, last_message_at`

func scanConversation(row interface{ Scan(dest ...any) error }) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := row.Scan(
		&conversation.ID,
		&conversation.ParticipantA,
		&conversation.ParticipantB,
		&conversation.CreatedAt,
		&conversation.LastMessageAt,
	); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// CreateOrGet relies on the (participant_low, participant_high) unique key,
// so concurrent callers for the same pair converge on one row.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	conversation *models.Conversation,
) (*models.Conversation, error) {
	low, high := models.ParticipantKey(conversation.ParticipantA, conversation.ParticipantB)
	lastMessageAt := conversation.LastMessageAt
	if lastMessageAt.IsZero() {
		lastMessageAt = conversation.CreatedAt
	}

	query := `
		INSERT INTO conversations (id, participant_low, participant_high, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participant_low, participant_high)
		DO UPDATE SET last_message_at = conversations.last_message_at
		RETURNING ` + conversationColumns

	return scanConversation(r.db.QueryRow(
		ctx,
		query,
		conversation.ID,
		low,
		high,
		conversation.CreatedAt,
		lastMessageAt,
	))
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1
	`
	conversation, err := scanConversation(r.db.QueryRow(ctx, query, conversationID))
	if err != nil {
		return nil, notFound(err)
	}
	return conversation, nil
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			c.participant_low,
			c.participant_high,
			c.created_at,
			c.last_message_at,
			lm.id,
			lm.conversation_id,
			lm.sender_id,
			lm.receiver_id,
			lm.content,
			lm.is_read,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT id, conversation_id, sender_id, receiver_id, content, is_read, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, seq DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND receiver_id = $1
			  AND is_read = FALSE
		) uc ON TRUE
		WHERE c.participant_low = $1 OR c.participant_high = $1
		ORDER BY COALESCE(lm.created_at, c.last_message_at) DESC, c.id COLLATE "C" DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var messageID sql.NullString
		var messageConversationID sql.NullString
		var messageSenderID sql.NullString
		var messageReceiverID sql.NullString
		var messageContent sql.NullString
		var messageIsRead sql.NullBool
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.ParticipantA,
			&summary.ParticipantB,
			&summary.CreatedAt,
			&summary.LastMessageAt,
			&messageID,
			&messageConversationID,
			&messageSenderID,
			&messageReceiverID,
			&messageContent,
			&messageIsRead,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			summary.LastMessage = &models.Message{
				ID:             messageID.String,
				ConversationID: messageConversationID.String,
				SenderID:       messageSenderID.String,
				ReceiverID:     messageReceiverID.String,
				Content:        messageContent.String,
				IsRead:         messageIsRead.Bool,
				CreatedAt:      messageCreatedAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// Touch advances last_message_at, never moving it backwards, and returns the
// resulting value. The row lock it takes serializes appends to one
// conversation until the surrounding transaction ends.
func (r *ConversationRepository) Touch(ctx context.Context, conversationID string, at time.Time) (time.Time, error) {
	var lastMessageAt time.Time
	err := r.db.QueryRow(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(last_message_at, $2)
		WHERE id = $1
		RETURNING last_message_at
	`, conversationID, at).Scan(&lastMessageAt)
	if err != nil {
		return time.Time{}, notFound(err)
	}
	return lastMessageAt.UTC(), nil
}

func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
