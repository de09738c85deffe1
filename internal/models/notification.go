package models

import "time"

type NotificationType string

const (
	NotificationMessage     NotificationType = "message"
	NotificationAppointment NotificationType = "appointment"
	NotificationPayment     NotificationType = "payment"
	NotificationSystem      NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationAppointment, NotificationPayment, NotificationSystem:
		return true
	default:
		return false
	}
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      *string          `json:"link,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
