// Package storetest holds the behavioral contract every store.Store
// implementation must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an initialized store whose directory holds seed.
type Factory func(t *testing.T, seed store.Seed) store.Store

var runCounter atomic.Uint64

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  store.Store
	prefix string
	next   atomic.Uint64
}

func (f *fixture) id(kind string) string {
	return fmt.Sprintf("%s-%s-%d", f.prefix, kind, f.next.Add(1))
}

func (f *fixture) name(role string) string {
	return fmt.Sprintf("%s-%s", f.prefix, role)
}

func newFixture(t *testing.T, factory Factory) *fixture {
	t.Helper()
	prefix := fmt.Sprintf("ct%d-%d", time.Now().UnixNano(), runCounter.Add(1))
	f := &fixture{t: t, ctx: context.Background(), prefix: prefix}
	title := "Therapist"
	f.store = factory(t, store.Seed{
		Providers: []models.ProviderProfile{
			{ID: f.name("p1"), UserID: f.name("dr-user"), FullName: "Dr. One", Title: &title},
			{ID: f.name("p2"), UserID: f.name("dr-user"), FullName: "Dr. One (clinic)"},
			{ID: f.name("p3"), UserID: f.name("other-user"), FullName: "Dr. Three"},
		},
		Users: []models.UserProfile{
			{ID: f.name("c1"), FullName: "Client One"},
			{ID: f.name("dr-user"), FullName: "Dr. One"},
		},
	})
	return f
}

var base = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

// Run executes the full contract against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("ConversationUniqueness", func(t *testing.T) { testConversationUniqueness(t, newFixture(t, factory)) })
	t.Run("MessageOrdering", func(t *testing.T) { testMessageOrdering(t, newFixture(t, factory)) })
	t.Run("MessageTimestampClamp", func(t *testing.T) { testMessageTimestampClamp(t, newFixture(t, factory)) })
	t.Run("MessageConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newFixture(t, factory)) })
	t.Run("MessageUnknownConversation", func(t *testing.T) { testMessageUnknownConversation(t, newFixture(t, factory)) })
	t.Run("MessageReadState", func(t *testing.T) { testMessageReadState(t, newFixture(t, factory)) })
	t.Run("ConversationDeletion", func(t *testing.T) { testConversationDeletion(t, newFixture(t, factory)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newFixture(t, factory)) })
	t.Run("AppointmentCollision", func(t *testing.T) { testAppointmentCollision(t, newFixture(t, factory)) })
	t.Run("AppointmentConcurrentBooking", func(t *testing.T) { testConcurrentBooking(t, newFixture(t, factory)) })
	t.Run("AppointmentStatus", func(t *testing.T) { testAppointmentStatus(t, newFixture(t, factory)) })
	t.Run("AppointmentListing", func(t *testing.T) { testAppointmentListing(t, newFixture(t, factory)) })
	t.Run("Directory", func(t *testing.T) { testDirectory(t, newFixture(t, factory)) })
}

func (f *fixture) conversation(a, b string) *models.Conversation {
	f.t.Helper()
	conv, err := f.store.CreateOrGetConversation(f.ctx, &models.Conversation{
		ID:            f.id("conv"),
		ParticipantA:  a,
		ParticipantB:  b,
		CreatedAt:     base,
		LastMessageAt: base,
	})
	require.NoError(f.t, err)
	return conv
}

func (f *fixture) message(conv *models.Conversation, sender string, content string, at time.Time) models.Message {
	f.t.Helper()
	msg := models.Message{
		ID:             f.id("msg"),
		ConversationID: conv.ID,
		SenderID:       sender,
		ReceiverID:     conv.OtherParticipant(sender),
		Content:        content,
		CreatedAt:      at,
	}
	require.NoError(f.t, f.store.AppendMessage(f.ctx, &msg))
	return msg
}

func (f *fixture) appointment(provider string, start time.Time, minutes int) (*models.Appointment, error) {
	appt := &models.Appointment{
		ID:              f.id("appt"),
		ProviderID:      provider,
		ClientID:        f.name("c1"),
		DateTime:        start,
		DurationMinutes: minutes,
		Status:          models.StatusPending,
		Type:            "video",
		PaymentStatus:   models.PaymentExempted,
		CreatedAt:       base,
		UpdatedAt:       base,
	}
	return appt, f.store.CreateAppointment(f.ctx, appt)
}

func testConversationUniqueness(t *testing.T, f *fixture) {
	alice, bob := f.name("alice"), f.name("bob")

	first := f.conversation(alice, bob)
	again := f.conversation(alice, bob)
	reversed := f.conversation(bob, alice)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ID, reversed.ID)
	assert.True(t, first.HasParticipant(alice))
	assert.True(t, first.HasParticipant(bob))

	other := f.conversation(alice, f.name("carol"))
	assert.NotEqual(t, first.ID, other.ID)

	loaded, err := f.store.GetConversation(f.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, loaded.ID)

	_, err = f.store.GetConversation(f.ctx, f.id("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testMessageOrdering(t *testing.T, f *fixture) {
	alice, bob := f.name("alice"), f.name("bob")
	conv := f.conversation(alice, bob)

	m1 := f.message(conv, alice, "one", base.Add(time.Minute))
	m2 := f.message(conv, bob, "two", base.Add(2*time.Minute))
	m3 := f.message(conv, alice, "three", base.Add(2*time.Minute))
	m4 := f.message(conv, bob, "four", base.Add(3*time.Minute))

	messages, err := f.store.ListMessages(f.ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, []string{m1.ID, m2.ID, m3.ID, m4.ID}, []string{
		messages[0].ID, messages[1].ID, messages[2].ID, messages[3].ID,
	})
	assert.Equal(t, bob, messages[0].ReceiverID)
	assert.False(t, messages[0].IsRead)

	loaded, err := f.store.GetConversation(f.ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, loaded.LastMessageAt.Equal(base.Add(3*time.Minute)), "got %s", loaded.LastMessageAt)
}

func testMessageTimestampClamp(t *testing.T, f *fixture) {
	alice, bob := f.name("alice"), f.name("bob")
	conv := f.conversation(alice, bob)

	latest := f.message(conv, alice, "later", base.Add(5*time.Minute))
	late := f.message(conv, bob, "behind", base.Add(time.Minute))
	assert.True(t, late.CreatedAt.Equal(latest.CreatedAt), "append raises CreatedAt, got %s", late.CreatedAt)

	messages, err := f.store.ListMessages(f.ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, latest.ID, messages[0].ID)
	assert.Equal(t, late.ID, messages[1].ID)
	assert.True(t, messages[1].CreatedAt.Equal(base.Add(5*time.Minute)))

	loaded, err := f.store.GetConversation(f.ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, loaded.LastMessageAt.Equal(base.Add(5*time.Minute)), "got %s", loaded.LastMessageAt)
}

func testConcurrentAppend(t *testing.T, f *fixture) {
	alice, bob := f.name("alice"), f.name("bob")
	conv := f.conversation(alice, bob)

	const senders = 12
	sent := make([]models.Message, senders)
	var g errgroup.Group
	for i := 0; i < senders; i++ {
		i := i
		g.Go(func() error {
			msg := models.Message{
				ID:             f.id("msg"),
				ConversationID: conv.ID,
				SenderID:       alice,
				ReceiverID:     bob,
				Content:        fmt.Sprintf("m%d", i),
				CreatedAt:      base.Add(time.Duration(senders-i) * time.Minute),
			}
			if err := f.store.AppendMessage(f.ctx, &msg); err != nil {
				return err
			}
			sent[i] = msg
			return nil
		})
	}
	require.NoError(t, g.Wait())

	messages, err := f.store.ListMessages(f.ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, senders)

	stored := make(map[string]time.Time, senders)
	for i, msg := range messages {
		stored[msg.ID] = msg.CreatedAt
		if i > 0 {
			assert.False(t, msg.CreatedAt.Before(messages[i-1].CreatedAt), "messages out of order at %d", i)
		}
	}
	for _, msg := range sent {
		assert.True(t, stored[msg.ID].Equal(msg.CreatedAt), "written-back CreatedAt matches stored row for %s", msg.ID)
	}

	loaded, err := f.store.GetConversation(f.ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, loaded.LastMessageAt.Equal(messages[senders-1].CreatedAt))
}

func testMessageUnknownConversation(t *testing.T, f *fixture) {
	missing := f.id("missing-conv")
	err := f.store.AppendMessage(f.ctx, &models.Message{
		ID:             f.id("msg"),
		ConversationID: missing,
		SenderID:       f.name("alice"),
		ReceiverID:     f.name("bob"),
		Content:        "hello?",
		CreatedAt:      base,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	messages, err := f.store.ListMessages(f.ctx, missing)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func testMessageReadState(t *testing.T, f *fixture) {
	alice, bob, carol := f.name("alice"), f.name("bob"), f.name("carol")
	withBob := f.conversation(alice, bob)
	withCarol := f.conversation(carol, alice)

	f.message(withBob, bob, "hi alice", base.Add(time.Minute))
	f.message(withBob, bob, "are you there", base.Add(2*time.Minute))
	f.message(withBob, alice, "yes", base.Add(3*time.Minute))
	f.message(withCarol, carol, "hey", base.Add(4*time.Minute))

	unread, err := f.store.CountUnreadMessages(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	summaries, err := f.store.ListConversationsForParticipant(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, withCarol.ID, summaries[0].ID, "most recent activity first")
	assert.Equal(t, 1, summaries[0].UnreadCount)
	assert.Equal(t, 2, summaries[1].UnreadCount)
	require.NotNil(t, summaries[1].LastMessage)
	assert.Equal(t, "yes", summaries[1].LastMessage.Content)

	changed, err := f.store.MarkConversationRead(f.ctx, withBob.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = f.store.MarkConversationRead(f.ctx, withBob.ID, alice)
	require.NoError(t, err)
	assert.Zero(t, changed)

	unread, err = f.store.CountUnreadMessages(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	unread, err = f.store.CountUnreadMessages(f.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func testConversationDeletion(t *testing.T, f *fixture) {
	alice, bob := f.name("alice"), f.name("bob")
	conv := f.conversation(alice, bob)
	keep := f.message(conv, alice, "keep", base.Add(time.Minute))
	drop := f.message(conv, alice, "drop", base.Add(2*time.Minute))

	loaded, err := f.store.GetMessage(f.ctx, drop.ID)
	require.NoError(t, err)
	assert.Equal(t, "drop", loaded.Content)

	deleted, err := f.store.DeleteMessage(f.ctx, drop.ID)
	require.NoError(t, err)
	assert.Equal(t, drop.ID, deleted.ID)

	_, err = f.store.GetMessage(f.ctx, drop.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.store.DeleteMessage(f.ctx, drop.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	messages, err := f.store.ListMessages(f.ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, keep.ID, messages[0].ID)

	require.NoError(t, f.store.DeleteConversation(f.ctx, conv.ID))
	_, err = f.store.GetConversation(f.ctx, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.store.DeleteConversation(f.ctx, conv.ID), store.ErrNotFound)

	messages, err = f.store.ListMessages(f.ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	fresh := f.conversation(bob, alice)
	assert.NotEqual(t, conv.ID, fresh.ID, "pair can be re-created after deletion")
}

func testNotifications(t *testing.T, f *fixture) {
	owner, other := f.name("owner"), f.name("other")
	link := "/appointments"
	insert := func(userID string, title string, at time.Time) models.Notification {
		n := models.Notification{
			ID:        f.id("notif"),
			UserID:    userID,
			Type:      models.NotificationSystem,
			Title:     title,
			Message:   title + " body",
			Link:      &link,
			CreatedAt: at,
		}
		require.NoError(t, f.store.InsertNotification(f.ctx, &n))
		return n
	}

	oldest := insert(owner, "oldest", base)
	middle := insert(owner, "middle", base.Add(time.Minute))
	newest := insert(owner, "newest", base.Add(2*time.Minute))
	insert(other, "not yours", base.Add(3*time.Minute))

	listed, err := f.store.ListNotifications(f.ctx, owner, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, newest.ID, listed[0].ID)
	assert.Equal(t, middle.ID, listed[1].ID)
	require.NotNil(t, listed[0].Link)
	assert.Equal(t, link, *listed[0].Link)

	loaded, err := f.store.GetNotification(f.ctx, middle.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, loaded.UserID)
	assert.Equal(t, models.NotificationSystem, loaded.Type)
	_, err = f.store.GetNotification(f.ctx, f.id("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	count, err := f.store.CountUnreadNotifications(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	updated, changed, err := f.store.MarkNotificationRead(f.ctx, oldest.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, updated.IsRead)

	_, changed, err = f.store.MarkNotificationRead(f.ctx, oldest.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = f.store.MarkNotificationRead(f.ctx, f.id("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	count, err = f.store.CountUnreadNotifications(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	flipped, err := f.store.MarkAllNotificationsRead(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, flipped)

	flipped, err = f.store.MarkAllNotificationsRead(f.ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, flipped)

	count, err = f.store.CountUnreadNotifications(f.ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = f.store.CountUnreadNotifications(f.ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err := f.store.DeleteNotification(f.ctx, middle.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, deleted.UserID)
	_, err = f.store.DeleteNotification(f.ctx, middle.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAppointmentCollision(t *testing.T, f *fixture) {
	p1 := f.name("p1")

	first, err := f.appointment(p1, base, 60)
	require.NoError(t, err)

	_, err = f.appointment(p1, base.Add(30*time.Minute), 30)
	require.ErrorIs(t, err, store.ErrCollision)
	var collision *store.CollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, p1, collision.ProviderID)
	if !collision.ConflictStart.IsZero() {
		assert.Equal(t, first.ID, collision.ConflictingID)
		assert.True(t, collision.ConflictStart.Equal(base))
		assert.True(t, collision.ConflictEnd.Equal(base.Add(time.Hour)))
	}

	_, err = f.appointment(p1, base.Add(-30*time.Minute), 120)
	assert.ErrorIs(t, err, store.ErrCollision, "enclosing interval collides")

	_, err = f.appointment(p1, base.Add(time.Hour), 60)
	require.NoError(t, err, "back-to-back booking after")
	_, err = f.appointment(p1, base.Add(-time.Hour), 60)
	require.NoError(t, err, "back-to-back booking before")

	_, err = f.appointment(f.name("p3"), base, 60)
	require.NoError(t, err, "other providers are independent")

	all, err := f.store.ListAppointmentsForProviders(f.ctx, []string{p1})
	require.NoError(t, err)
	assert.Len(t, all, 3, "rejected attempts leave state unchanged")

	conflict, err := f.store.FindConflict(f.ctx, p1, base.Add(10*time.Minute), base.Add(20*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, first.ID, conflict.ID)

	conflict, err = f.store.FindConflict(f.ctx, p1, base.Add(2*time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, conflict)

	_, err = f.store.UpdateAppointmentStatusIfCurrent(f.ctx, first.ID, models.StatusPending, models.StatusCancelled, base)
	require.NoError(t, err)
	_, err = f.appointment(p1, base.Add(15*time.Minute), 30)
	require.NoError(t, err, "cancelled appointments free their slot")
}

func testConcurrentBooking(t *testing.T, f *fixture) {
	p1 := f.name("p1")
	const attempts = 8

	var succeeded, collided atomic.Int32
	var group errgroup.Group
	for i := 0; i < attempts; i++ {
		offset := time.Duration(i) * 5 * time.Minute
		group.Go(func() error {
			_, err := f.appointment(p1, base.Add(offset), 60)
			switch {
			case err == nil:
				succeeded.Add(1)
				return nil
			case errors.Is(err, store.ErrCollision):
				collided.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, group.Wait())

	assert.EqualValues(t, 1, succeeded.Load(), "every attempt overlaps every other")
	assert.EqualValues(t, attempts-1, collided.Load())

	booked, err := f.store.ListAppointmentsForProviders(f.ctx, []string{p1})
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func testAppointmentStatus(t *testing.T, f *fixture) {
	appt, err := f.appointment(f.name("p1"), base, 45)
	require.NoError(t, err)

	later := base.Add(time.Hour)
	confirmed, err := f.store.UpdateAppointmentStatusIfCurrent(
		f.ctx, appt.ID, models.StatusPending, models.StatusConfirmed, later,
	)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.UpdatedAt.Equal(later))

	_, err = f.store.UpdateAppointmentStatusIfCurrent(
		f.ctx, appt.ID, models.StatusPending, models.StatusRejected, later,
	)
	assert.ErrorIs(t, err, store.ErrStaleStatus)

	_, err = f.store.UpdateAppointmentStatusIfCurrent(
		f.ctx, f.id("missing"), models.StatusPending, models.StatusConfirmed, later,
	)
	assert.ErrorIs(t, err, store.ErrNotFound)

	loaded, err := f.store.GetAppointment(f.ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, loaded.Status)
	assert.Equal(t, 45, loaded.DurationMinutes)

	_, err = f.store.GetAppointment(f.ctx, f.id("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAppointmentListing(t *testing.T, f *fixture) {
	p1, p2, p3 := f.name("p1"), f.name("p2"), f.name("p3")
	early, err := f.appointment(p1, base, 30)
	require.NoError(t, err)
	late, err := f.appointment(p2, base.Add(24*time.Hour), 30)
	require.NoError(t, err)
	other, err := f.appointment(p3, base.Add(48*time.Hour), 30)
	require.NoError(t, err)

	mine, err := f.store.ListAppointmentsForProviders(f.ctx, []string{p1, p2})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, late.ID, mine[0].ID)
	assert.Equal(t, early.ID, mine[1].ID)

	none, err := f.store.ListAppointmentsForProviders(f.ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	client, err := f.store.ListAppointmentsForClient(f.ctx, f.name("c1"))
	require.NoError(t, err)
	require.Len(t, client, 3)
	assert.Equal(t, other.ID, client[0].ID)

	all, err := f.store.ListAllAppointments(f.ctx)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, appt := range all {
		seen[appt.ID] = true
	}
	assert.True(t, seen[early.ID] && seen[late.ID] && seen[other.ID])
}

func testDirectory(t *testing.T, f *fixture) {
	ids, err := f.store.ListProviderIDsForUser(f.ctx, f.name("dr-user"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.name("p1"), f.name("p2")}, ids)

	ids, err = f.store.ListProviderIDsForUser(f.ctx, f.name("nobody"))
	require.NoError(t, err)
	assert.Empty(t, ids)

	provider, err := f.store.GetProviderProfile(f.ctx, f.name("p1"))
	require.NoError(t, err)
	assert.Equal(t, "Dr. One", provider.FullName)
	require.NotNil(t, provider.Title)
	assert.Equal(t, "Therapist", *provider.Title)

	user, err := f.store.GetUserProfile(f.ctx, f.name("c1"))
	require.NoError(t, err)
	assert.Equal(t, "Client One", user.FullName)

	_, err = f.store.GetProviderProfile(f.ctx, f.name("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetUserProfile(f.ctx, f.name("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
