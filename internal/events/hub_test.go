package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/idgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingBroadcaster struct {
	events []Event
	err    error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, evt Event) error {
	b.events = append(b.events, evt)
	return b.err
}

func newTestHub(opts ...Option) *Hub {
	fixed := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	base := []Option{
		WithIDGenerator(idgen.NewSequence("evt")),
		WithClock(func() time.Time { return fixed }),
	}
	return NewHub(zap.NewNop(), append(base, opts...)...)
}

func TestPublishWithoutSubscribersDoesNotFail(t *testing.T) {
	hub := newTestHub()

	evt, err := hub.Publish(context.Background(), TopicMessages, map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", evt.ID)
	assert.Equal(t, TopicMessages, evt.Topic)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), evt.Timestamp)
}

func TestPublishRejectsUnknownTopic(t *testing.T) {
	hub := newTestHub()

	_, err := hub.Publish(context.Background(), Topic("payments"), nil)
	require.ErrorIs(t, err, ErrUnknownTopic)

	_, err = hub.Subscribe(Topic("payments"), func(context.Context, Event) error { return nil })
	require.ErrorIs(t, err, ErrUnknownTopic)
}

func TestHandlersRunInSubscriptionOrderPerTopic(t *testing.T) {
	hub := newTestHub()
	var calls []string

	for _, name := range []string{"first", "second", "third"} {
		name := name
		_, err := hub.Subscribe(TopicNotifications, func(_ context.Context, evt Event) error {
			calls = append(calls, name+":"+evt.Payload.(string))
			return nil
		})
		require.NoError(t, err)
	}
	_, err := hub.Subscribe(TopicAppointments, func(context.Context, Event) error {
		calls = append(calls, "other-topic")
		return nil
	})
	require.NoError(t, err)

	_, err = hub.Publish(context.Background(), TopicNotifications, "a")
	require.NoError(t, err)
	_, err = hub.Publish(context.Background(), TopicNotifications, "b")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first:a", "second:a", "third:a",
		"first:b", "second:b", "third:b",
	}, calls)
}

func TestUnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	hub := newTestHub()
	var removedCalls, keptCalls int

	handler := func(context.Context, Event) error {
		removedCalls++
		return nil
	}
	unsubscribe, err := hub.Subscribe(TopicMessages, handler)
	require.NoError(t, err)
	_, err = hub.Subscribe(TopicMessages, handler)
	require.NoError(t, err)
	_, err = hub.Subscribe(TopicMessages, func(context.Context, Event) error {
		keptCalls++
		return nil
	})
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()

	_, err = hub.Publish(context.Background(), TopicMessages, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, removedCalls, "the second registration of the same func stays subscribed")
	assert.Equal(t, 1, keptCalls)
	assert.Equal(t, 2, hub.SubscriberCount(TopicMessages))
}

func TestFailingHandlersDoNotBlockSiblings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	hub := NewHub(zap.New(core), WithIDGenerator(idgen.NewSequence("evt")))
	delivered := 0

	_, err := hub.Subscribe(TopicAppointments, func(context.Context, Event) error {
		return errors.New("handler exploded")
	})
	require.NoError(t, err)
	_, err = hub.Subscribe(TopicAppointments, func(context.Context, Event) error {
		panic("worse")
	})
	require.NoError(t, err)
	_, err = hub.Subscribe(TopicAppointments, func(context.Context, Event) error {
		delivered++
		return nil
	})
	require.NoError(t, err)

	_, err = hub.Publish(context.Background(), TopicAppointments, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, logs.FilterMessage("event handler failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("event handler panicked").Len())
}

func TestLateSubscriberDoesNotReceivePastEvents(t *testing.T) {
	hub := newTestHub()
	_, err := hub.Publish(context.Background(), TopicMessages, "early")
	require.NoError(t, err)

	var seen []any
	_, err = hub.Subscribe(TopicMessages, func(_ context.Context, evt Event) error {
		seen = append(seen, evt.Payload)
		return nil
	})
	require.NoError(t, err)

	_, err = hub.Publish(context.Background(), TopicMessages, "late")
	require.NoError(t, err)
	assert.Equal(t, []any{"late"}, seen)
}

func TestHandlerMayUnsubscribeItselfDuringDispatch(t *testing.T) {
	hub := newTestHub()
	calls := 0
	var unsubscribe func()
	unsubscribe, err := hub.Subscribe(TopicMessages, func(context.Context, Event) error {
		calls++
		unsubscribe()
		return nil
	})
	require.NoError(t, err)

	_, err = hub.Publish(context.Background(), TopicMessages, nil)
	require.NoError(t, err)
	_, err = hub.Publish(context.Background(), TopicMessages, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBroadcasterReceivesEnvelopeAndErrorsAreSwallowed(t *testing.T) {
	broadcaster := &recordingBroadcaster{err: errors.New("channel closed")}
	hub := newTestHub(WithBroadcaster(broadcaster))

	evt, err := hub.Publish(context.Background(), TopicNotifications, NotificationEvent{
		Action: ActionCreated,
		UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, broadcaster.events, 1)
	assert.Equal(t, evt.ID, broadcaster.events[0].ID)
	assert.Equal(t, []string{"u1"}, Recipients(broadcaster.events[0]))

	hub.SetBroadcaster(nil)
	_, err = hub.Publish(context.Background(), TopicNotifications, nil)
	require.NoError(t, err)
	assert.Len(t, broadcaster.events, 1)
}

func TestAppointmentEventRoutesToProviderAccount(t *testing.T) {
	evt := Event{Payload: AppointmentEvent{ProviderID: "p1", ClientID: "c1", ProviderUserID: "u-p1"}}
	assert.Equal(t, []string{"c1", "u-p1"}, Recipients(evt))

	evt = Event{Payload: AppointmentEvent{ProviderID: "p1", ClientID: "c1"}}
	assert.Equal(t, []string{"c1", "p1"}, Recipients(evt))

	assert.Nil(t, Recipients(Event{Payload: "plain"}))
}
