package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
)

const messagePreviewRunes = 80

type ChatStore interface {
	store.ConversationStore
	store.MessageStore
}

type ChatService struct {
	store    ChatStore
	notifier Notifier
	deps     Deps
}

type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.Message
	RecipientID  string
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Text           string
}

func NewChatService(st ChatStore, notifier Notifier, deps Deps) *ChatService {
	return &ChatService{
		store:    st,
		notifier: notifier,
		deps:     deps.withDefaults("chat"),
	}
}

// GetOrCreateConversation returns the single conversation for the unordered
// pair, creating it on first use.
func (s *ChatService) GetOrCreateConversation(
	ctx context.Context,
	userA string,
	userB string,
) (*models.Conversation, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" || userA == userB {
		return nil, ErrInvalidInput
	}

	now := s.deps.clock()
	conversation, err := s.store.CreateOrGetConversation(ctx, &models.Conversation{
		ID:            s.deps.IDs.NewID(),
		ParticipantA:  userA,
		ParticipantB:  userB,
		CreatedAt:     now,
		LastMessageAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return conversation, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListConversationsForParticipant(ctx, userID)
}

// GetConversationForParticipant hides conversations the caller is not part of.
func (s *ChatService) GetConversationForParticipant(
	ctx context.Context,
	conversationID string,
	userID string,
) (*models.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return conversation, nil
}

func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*ChatDelivery, error) {
	trimmed := strings.TrimSpace(input.Text)
	if trimmed == "" || input.ConversationID == "" || input.SenderID == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.store.GetConversation(ctx, input.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if !conversation.HasParticipant(input.SenderID) {
		return nil, ErrForbidden
	}
	recipientID := conversation.OtherParticipant(input.SenderID)

	message := &models.Message{
		ID:             s.deps.IDs.NewID(),
		ConversationID: conversation.ID,
		SenderID:       input.SenderID,
		ReceiverID:     recipientID,
		Content:        trimmed,
		IsRead:         false,
		CreatedAt:      s.deps.clock(),
	}
	// The store raises CreatedAt to the conversation's last message when
	// the clock is behind it.
	if err := s.store.AppendMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	conversation.LastMessageAt = message.CreatedAt

	s.deps.publish(ctx, events.TopicMessages, events.MessageEvent{
		Action:         events.ActionCreated,
		ConversationID: conversation.ID,
		Message:        message,
		Participants:   []string{input.SenderID, recipientID},
	})

	if s.notifier != nil {
		link := "/messages/" + conversation.ID
		s.notifier.Notify(ctx, CreateNotificationInput{
			UserID:  recipientID,
			Type:    models.NotificationMessage,
			Title:   "New message",
			Message: preview(trimmed),
			Link:    &link,
		})
	}

	return &ChatDelivery{
		Conversation: conversation,
		Message:      message,
		RecipientID:  recipientID,
	}, nil
}

// MarkAsRead flips every unread message addressed to userID and returns how
// many changed.
func (s *ChatService) MarkAsRead(ctx context.Context, conversationID string, userID string) (int, error) {
	conversation, err := s.GetConversationForParticipant(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark as read: %w", err)
	}

	count, err := s.store.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark as read: %w", err)
	}
	if count > 0 {
		s.deps.publish(ctx, events.TopicMessages, events.MessageEvent{
			Action:         events.ActionMarkRead,
			ConversationID: conversationID,
			ReaderID:       userID,
			Count:          count,
			Participants:   []string{conversation.ParticipantA, conversation.ParticipantB},
		})
	}
	return count, nil
}

func (s *ChatService) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

func (s *ChatService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnreadMessages(ctx, userID)
}

// DeleteMessage lets the sender retract one of their messages.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID string, messageID string) error {
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if message.SenderID != actorID {
		return ErrForbidden
	}

	deleted, err := s.store.DeleteMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.deps.publish(ctx, events.TopicMessages, events.MessageEvent{
		Action:         events.ActionDeleted,
		ConversationID: deleted.ConversationID,
		Message:        deleted,
		Participants:   []string{deleted.SenderID, deleted.ReceiverID},
	})
	return nil
}

// DeleteConversation removes the conversation and its whole thread for both
// participants.
func (s *ChatService) DeleteConversation(ctx context.Context, actorID string, conversationID string) error {
	conversation, err := s.GetConversationForParticipant(ctx, conversationID, actorID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	s.deps.publish(ctx, events.TopicMessages, events.MessageEvent{
		Action:         events.ActionDeleted,
		ConversationID: conversationID,
		Participants:   []string{conversation.ParticipantA, conversation.ParticipantB},
	})
	return nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= messagePreviewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:messagePreviewRunes]) + "..."
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
