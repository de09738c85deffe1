package services

import (
	"context"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/idgen"
	"go.uber.org/zap"
)

// Publisher is the slice of the event hub the services publish through.
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, payload any) (events.Event, error)
}

// Deps carries the collaborators every service shares. Zero fields fall
// back to a no-op publisher, uuid ids, the wall clock and a no-op logger.
type Deps struct {
	Publisher Publisher
	IDs       idgen.Generator
	Now       func() time.Time
	Logger    *zap.Logger
}

func (d Deps) withDefaults(name string) Deps {
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	if d.IDs == nil {
		d.IDs = idgen.UUID{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.Named(name)
	return d
}

// publish forwards to the hub. Broadcasting is a side effect, so failures
// are logged and never returned.
func (d Deps) publish(ctx context.Context, topic events.Topic, payload any) {
	if _, err := d.Publisher.Publish(ctx, topic, payload); err != nil {
		d.Logger.Warn("publish event failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}

func (d Deps) clock() time.Time {
	return d.Now().UTC()
}

type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, topic events.Topic, payload any) (events.Event, error) {
	return events.Event{Topic: topic, Payload: payload}, nil
}
