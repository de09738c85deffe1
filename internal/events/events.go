// Package events is the in-process publish/subscribe bus. Handlers run
// synchronously on the publisher's goroutine; envelopes are then handed to
// an optional Broadcaster that fans them out to the user's other open
// connections. Delivery is best-effort and nothing is retained.
package events

import (
	"context"
	"errors"
	"time"
)

type Topic string

const (
	TopicMessages      Topic = "messages"
	TopicNotifications Topic = "notifications"
	TopicAppointments  Topic = "appointments"
)

var ErrUnknownTopic = errors.New("unknown topic")

func (t Topic) Valid() bool {
	switch t {
	case TopicMessages, TopicNotifications, TopicAppointments:
		return true
	default:
		return false
	}
}

type Event struct {
	ID        string    `json:"id"`
	Topic     Topic     `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type Handler func(ctx context.Context, evt Event) error

// Broadcaster forwards a published envelope to other execution contexts.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt Event) error
}

// Addressed payloads name the users an envelope concerns.
type Addressed interface {
	Recipients() []string
}

// Recipients returns the audience of evt, or nil when the payload is not
// addressed to anyone in particular.
func Recipients(evt Event) []string {
	if addressed, ok := evt.Payload.(Addressed); ok {
		return addressed.Recipients()
	}
	return nil
}
