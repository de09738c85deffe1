package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/idgen"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) handle(_ context.Context, evt events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *collector) topic(topic events.Topic) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, 0)
	for _, evt := range c.events {
		if evt.Topic == topic {
			out = append(out, evt)
		}
	}
	return out
}

type harness struct {
	store         *store.LocalStore
	clock         *fakeClock
	events        *collector
	logs          *observer.ObservedLogs
	notifications *NotificationService
	chat          *ChatService
	appointments  *AppointmentService
}

func testSeed() store.Seed {
	title := "Therapist"
	return store.Seed{
		Providers: []models.ProviderProfile{
			{ID: "p1", UserID: "dr-user", FullName: "Dr. One", Title: &title},
			{ID: "p2", UserID: "dr-user", FullName: "Dr. One (clinic)"},
			{ID: "p3", UserID: "other-user", FullName: "Dr. Three"},
		},
		Users: []models.UserProfile{
			{ID: "c1", FullName: "Client One"},
			{ID: "dr-user", FullName: "Dr. One"},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st := store.NewLocalStore("", store.WithSeed(testSeed()))
	require.NoError(t, st.Init(context.Background()))

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	clock := &fakeClock{now: testNow}
	ids := idgen.NewSequence("id")

	hub := events.NewHub(logger, events.WithIDGenerator(idgen.NewSequence("evt")), events.WithClock(clock.Now))
	collected := &collector{}
	for _, topic := range []events.Topic{events.TopicMessages, events.TopicNotifications, events.TopicAppointments} {
		_, err := hub.Subscribe(topic, collected.handle)
		require.NoError(t, err)
	}

	deps := Deps{Publisher: hub, IDs: ids, Now: clock.Now, Logger: logger}
	notifications := NewNotificationService(st, deps)
	return &harness{
		store:         st,
		clock:         clock,
		events:        collected,
		logs:          logs,
		notifications: notifications,
		chat:          NewChatService(st, notifications, deps),
		appointments:  NewAppointmentService(st, notifications, deps),
	}
}
