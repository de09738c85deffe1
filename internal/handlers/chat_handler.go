package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CareMarketBack/internal/middleware"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/services"
	chatws "github.com/saeid-a/CareMarketBack/internal/websocket"
	"github.com/saeid-a/CareMarketBack/pkg/utils"
)

type chatApplicationService interface {
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	GetOrCreateConversation(ctx context.Context, userA string, userB string) (*models.Conversation, error)
	GetConversationForParticipant(ctx context.Context, conversationID string, userID string) (*models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, input services.SendMessageInput) (*services.ChatDelivery, error)
	MarkAsRead(ctx context.Context, conversationID string, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	DeleteMessage(ctx context.Context, actorID string, messageID string) error
	DeleteConversation(ctx context.Context, actorID string, conversationID string) error
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *chatws.Hub
	jwtSecret string
}

type createConversationRequest struct {
	ParticipantID string `json:"participant_id"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func NewChatHandler(service chatApplicationService, hub *chatws.Hub, jwtSecret string) *ChatHandler {
	return &ChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	conversations, err := h.service.ListConversations(c.Context(), userID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "participant_id is required"})
	}

	conversation, err := h.service.GetOrCreateConversation(c.Context(), userID, req.ParticipantID)
	if err != nil {
		return mapError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	conversationID := c.Params("id")
	if _, err := h.service.GetConversationForParticipant(c.Context(), conversationID, userID); err != nil {
		return mapError(c, err)
	}

	messages, err := h.service.GetMessages(c.Context(), conversationID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text must not be empty"})
	}

	delivery, err := h.service.SendMessage(c.Context(), services.SendMessageInput{
		ConversationID: c.Params("id"),
		SenderID:       userID,
		Text:           req.Text,
	})
	if err != nil {
		return mapError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func (h *ChatHandler) MarkAsRead(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	updated, err := h.service.MarkAsRead(c.Context(), c.Params("id"), userID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"updated": updated})
}

func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
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

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	if err := h.service.DeleteMessage(c.Context(), userID, c.Params("id")); err != nil {
		return mapError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) DeleteConversation(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	if err := h.service.DeleteConversation(c.Context(), userID, c.Params("id")); err != nil {
		return mapError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := chatws.NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		tokenString, _ = middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
