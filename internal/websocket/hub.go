package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/services"
	"go.uber.org/zap"
)

const clientBuffer = 32

var ErrHubStopped = errors.New("websocket hub stopped")

// Hub fans event envelopes out to every open connection of the users an
// envelope is addressed to. It satisfies events.Broadcaster.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	logger     *zap.Logger
}

// Client is one websocket connection. send is closed exactly once, under mu,
// so producers on other goroutines never write to a closed channel.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

type sender interface {
	SendMessage(ctx context.Context, input services.SendMessageInput) (*services.ChatDelivery, error)
}

type outbound struct {
	recipients []string
	payload    []byte
}

// Frame is what clients send, and what the server answers with on failure.
type Frame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Code           string `json:"code,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

var _ events.Broadcaster = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Named("ws"),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return newClient(hub, conn, userID, clientBuffer)
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, buffer int) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, buffer),
	}
}

// trySend queues payload without blocking. It reports false when the
// buffer is full or the client has been closed.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.close()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		case <-h.stop:
			for userID, set := range h.clients {
				for client := range set {
					client.close()
				}
				delete(h.clients, userID)
			}
			return
		}
	}
}

// Stop ends Run and closes every client's send channel. It blocks until Run
// has returned and is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues evt for its addressed users. Envelopes whose payload
// names no recipients are dropped.
func (h *Hub) Broadcast(ctx context.Context, evt events.Event) error {
	recipients := events.Recipients(evt)
	if len(recipients) == 0 {
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- &outbound{recipients: recipients, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) deliver(message *outbound) {
	seen := make(map[string]struct{}, len(message.recipients))
	for _, userID := range message.recipients {
		if _, dup := seen[userID]; dup || userID == "" {
			continue
		}
		seen[userID] = struct{}{}
		h.sendToUser(userID, message.payload)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		if client.trySend(payload) {
			continue
		}
		h.logger.Warn("dropping slow websocket client", zap.String("user_id", userID))
		delete(set, client)
		client.close()
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// ReadPump turns inbound message frames into SendMessage calls. Delivery
// back to both participants happens through the event hub.
func (c *Client) ReadPump(service sender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming Frame
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeError(c, "invalid message payload", services.CodeInvalidInput)
			continue
		}
		if incoming.Type != "message" {
			writeError(c, "unsupported message type", services.CodeInvalidInput)
			continue
		}

		_, err = service.SendMessage(context.Background(), services.SendMessageInput{
			ConversationID: incoming.ConversationID,
			SenderID:       c.userID,
			Text:           incoming.Content,
		})
		if err != nil {
			code := services.ErrorCode(err)
			if code == services.CodeUnknown {
				c.hub.logger.Error("websocket send failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			writeError(c, "failed to send message", code)
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeError(client *Client, message string, code string) {
	payload, err := json.Marshal(Frame{
		Type:      "error",
		Content:   message,
		Code:      code,
		Timestamp: services.FormatChatTimestamp(time.Now().UTC()),
	})
	if err != nil {
		return
	}
	if !client.trySend(payload) {
		client.hub.Unregister(client)
	}
}
