package events

import (
	"time"

	"github.com/saeid-a/CareMarketBack/internal/models"
)

const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionDeleted       = "deleted"
	ActionMarkRead      = "mark-read"
	ActionMarkAllRead   = "mark-all-read"
	ActionStatusChanged = "status-changed"
)

type MessageEvent struct {
	Action         string          `json:"action"`
	ConversationID string          `json:"conversation_id"`
	Message        *models.Message `json:"message,omitempty"`
	ReaderID       string          `json:"reader_id,omitempty"`
	Count          int             `json:"count,omitempty"`
	Participants   []string        `json:"-"`
}

func (e MessageEvent) Recipients() []string {
	return e.Participants
}

type NotificationEvent struct {
	Action       string               `json:"action"`
	UserID       string               `json:"user_id"`
	Notification *models.Notification `json:"notification,omitempty"`
	Count        int                  `json:"count,omitempty"`
}

func (e NotificationEvent) Recipients() []string {
	return []string{e.UserID}
}

type AppointmentEvent struct {
	Action        string                   `json:"action"`
	AppointmentID string                   `json:"appointment_id"`
	Status        models.AppointmentStatus `json:"status"`
	ProviderID    string                   `json:"provider_id"`
	ClientID      string                   `json:"client_id"`
	DateTime      time.Time                `json:"date_time"`
	// ProviderUserID is the account behind ProviderID, used for routing only.
	ProviderUserID string `json:"-"`
}

func (e AppointmentEvent) Recipients() []string {
	recipients := []string{e.ClientID}
	if e.ProviderUserID != "" {
		recipients = append(recipients, e.ProviderUserID)
	} else {
		recipients = append(recipients, e.ProviderID)
	}
	return recipients
}
