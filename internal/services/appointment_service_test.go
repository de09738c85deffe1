package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestCreateAppointmentCollisionScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID:      "p1",
		ClientID:        "c1",
		DateTime:        mustTime(t, "2024-03-15T09:00:00Z"),
		DurationMinutes: 60,
		Type:            "video",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, models.PaymentExempted, first.PaymentStatus)

	_, err = h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID:      "p1",
		ClientID:        "c2",
		DateTime:        mustTime(t, "2024-03-15T09:30:00Z"),
		DurationMinutes: 30,
		Type:            "video",
	})
	require.Error(t, err)
	assert.Equal(t, CodeCollision, ErrorCode(err))
	var collision *store.CollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, first.ID, collision.ConflictingID)
	assert.Contains(t, err.Error(), "pick another time")
	assert.Equal(t, 1, h.logs.FilterMessage("appointment collision").Len())

	third, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID:      "p1",
		ClientID:        "c2",
		DateTime:        mustTime(t, "2024-03-15T10:00:00Z"),
		DurationMinutes: 30,
		Type:            "video",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, third.Status)

	all, err := h.appointments.GetAllAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, third.ID, all[0].ID)
}

func TestCreateAppointmentNotifiesAndPublishes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	amount := int64(5000)

	appt, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID:      "p1",
		ClientID:        "c1",
		DateTime:        mustTime(t, "2024-03-15T09:00:00Z"),
		DurationMinutes: 45,
		Type:            "In-Person",
		AmountCents:     &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, appt.PaymentStatus)
	assert.Equal(t, "in_person", appt.Type)

	providerInbox, err := h.notifications.List(ctx, "dr-user", 0)
	require.NoError(t, err)
	require.Len(t, providerInbox, 1)
	assert.Equal(t, "New appointment request", providerInbox[0].Title)

	clientInbox, err := h.notifications.List(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, clientInbox, 1)
	assert.Equal(t, "Appointment request submitted", clientInbox[0].Title)

	published := h.events.topic(events.TopicAppointments)
	require.Len(t, published, 1)
	payload := published[0].Payload.(events.AppointmentEvent)
	assert.Equal(t, events.ActionCreated, payload.Action)
	assert.Equal(t, appt.ID, payload.AppointmentID)
	assert.Equal(t, models.StatusPending, payload.Status)
	assert.Equal(t, []string{"c1", "dr-user"}, events.Recipients(published[0]))
}

func TestCreateAppointmentValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T09:00:00Z")

	cases := []CreateAppointmentInput{
		{ProviderID: "", ClientID: "c1", DateTime: start, DurationMinutes: 30},
		{ProviderID: "p1", ClientID: "", DateTime: start, DurationMinutes: 30},
		{ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 0},
		{ProviderID: "p1", ClientID: "c1", DurationMinutes: 30},
		{ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 30, Type: "carrier pigeon"},
		{ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: MaxAppointmentMinutes + 1},
		{ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 1 << 30},
	}
	for i, input := range cases {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			_, err := h.appointments.CreateAppointment(ctx, input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	appt, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultAppointmentType, appt.Type)

	all, err := h.appointments.GetAllAppointments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "rejected inputs store nothing")
}

func TestAppointmentDurationIsBoundedToOneDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T00:00:00Z")

	day, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: MaxAppointmentMinutes,
	})
	require.NoError(t, err)
	assert.True(t, day.End().After(day.DateTime))

	// An overflowing duration must not slip past the overlap check.
	_, err = h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p1", ClientID: "c1", DateTime: start.Add(time.Hour), DurationMinutes: 1 << 30,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.appointments.CheckAvailability(ctx, "p1", start, MaxAppointmentMinutes+1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBookAppointmentParsesFreeText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	appt, err := h.appointments.BookAppointment(ctx, "p1", "c1", "Mar 15, 2024 at 2:30 PM")
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-03-15T14:30:00Z"), appt.DateTime)
	assert.Equal(t, DefaultAppointmentMinutes, appt.DurationMinutes)
	assert.Equal(t, "video", appt.Type)

	fallback, err := h.appointments.BookAppointment(ctx, "p2", "c1", "whenever suits")
	require.NoError(t, err)
	assert.Equal(t, testNow, fallback.DateTime)
}

func TestConcurrentBookingsAdmitExactlyOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T09:00:00Z")

	var booked, collided atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			_, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
				ProviderID:      "p1",
				ClientID:        fmt.Sprintf("client-%d", i),
				DateTime:        start.Add(time.Duration(i) * time.Minute),
				DurationMinutes: 60,
			})
			switch {
			case err == nil:
				booked.Add(1)
			case errors.Is(err, ErrCollision):
				collided.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), booked.Load())
	assert.Equal(t, int32(15), collided.Load())
}

func TestCheckAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T09:00:00Z")

	_, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 60,
	})
	require.NoError(t, err)

	free, err := h.appointments.CheckAvailability(ctx, "p1", start.Add(30*time.Minute), 30)
	require.NoError(t, err)
	assert.False(t, free)

	free, err = h.appointments.CheckAvailability(ctx, "p1", start.Add(time.Hour), 30)
	require.NoError(t, err)
	assert.True(t, free)

	free, err = h.appointments.CheckAvailability(ctx, "p2", start, 60)
	require.NoError(t, err)
	assert.True(t, free)

	_, err = h.appointments.CheckAvailability(ctx, "p1", start, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetAppointmentsForUserEnrichesCounterparty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T09:00:00Z")

	early, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 30,
	})
	require.NoError(t, err)
	late, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p2", ClientID: "c2", DateTime: start.Add(24 * time.Hour), DurationMinutes: 30,
	})
	require.NoError(t, err)
	_, err = h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p3", ClientID: "c1", DateTime: start.Add(48 * time.Hour), DurationMinutes: 30,
	})
	require.NoError(t, err)

	asProvider, err := h.appointments.GetAppointmentsForUser(ctx, "dr-user", RoleProvider)
	require.NoError(t, err)
	require.Len(t, asProvider, 2)
	assert.Equal(t, late.ID, asProvider[0].ID)
	assert.Nil(t, asProvider[0].Counterparty, "c2 has no directory record")
	assert.Equal(t, early.ID, asProvider[1].ID)
	require.NotNil(t, asProvider[1].Counterparty)
	assert.Equal(t, "Client One", asProvider[1].Counterparty.DisplayName)

	asClient, err := h.appointments.GetAppointmentsForUser(ctx, "c1", RoleClient)
	require.NoError(t, err)
	require.Len(t, asClient, 2)
	assert.Equal(t, "p3", asClient[0].ProviderID)
	require.NotNil(t, asClient[1].Counterparty)
	assert.Equal(t, "Dr. One", asClient[1].Counterparty.DisplayName)
	require.NotNil(t, asClient[1].Counterparty.Title)
	assert.Equal(t, "Therapist", *asClient[1].Counterparty.Title)

	nobody, err := h.appointments.GetAppointmentsForUser(ctx, "nobody", RoleProvider)
	require.NoError(t, err)
	assert.Empty(t, nobody)
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T09:00:00Z")

	appt, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 60,
	})
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	confirmed, err := h.appointments.UpdateStatus(ctx, appt.ID, "confirm")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, testNow.Add(time.Hour), confirmed.UpdatedAt)

	_, err = h.appointments.UpdateStatus(ctx, appt.ID, "rejected")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	completed, err := h.appointments.UpdateStatus(ctx, appt.ID, "COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	_, err = h.appointments.UpdateStatus(ctx, appt.ID, "cancel")
	assert.Equal(t, CodeInvalidTransition, ErrorCode(err))
	_, err = h.appointments.UpdateStatus(ctx, appt.ID, "teleport")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = h.appointments.UpdateStatus(ctx, "missing", "confirm")
	assert.Equal(t, CodeNotFound, ErrorCode(err))

	var actions []string
	for _, evt := range h.events.topic(events.TopicAppointments) {
		actions = append(actions, evt.Payload.(events.AppointmentEvent).Action)
	}
	assert.Equal(t, []string{events.ActionCreated, events.ActionStatusChanged, events.ActionStatusChanged}, actions)
}

func TestCancelledAppointmentFreesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T09:00:00Z")
	input := CreateAppointmentInput{ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 60}

	appt, err := h.appointments.CreateAppointment(ctx, input)
	require.NoError(t, err)
	_, err = h.appointments.UpdateStatus(ctx, appt.ID, "cancelled")
	require.NoError(t, err)

	_, err = h.appointments.CreateAppointment(ctx, input)
	require.NoError(t, err)
}

func TestUpdateStatusAsChecksStanding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := mustTime(t, "2024-03-15T09:00:00Z")

	appt, err := h.appointments.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID: "p1", ClientID: "c1", DateTime: start, DurationMinutes: 60,
	})
	require.NoError(t, err)

	_, err = h.appointments.UpdateStatusAs(ctx, "c1", RoleClient, appt.ID, "confirm")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.appointments.UpdateStatusAs(ctx, "c2", RoleClient, appt.ID, "cancel")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.appointments.UpdateStatusAs(ctx, "other-user", RoleProvider, appt.ID, "confirm")
	assert.ErrorIs(t, err, ErrForbidden)

	confirmed, err := h.appointments.UpdateStatusAs(ctx, "dr-user", RoleProvider, appt.ID, "confirm")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)

	cancelled, err := h.appointments.UpdateStatusAs(ctx, "c1", RoleClient, appt.ID, "cancel")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = h.appointments.UpdateStatusAs(ctx, "admin-1", RoleAdmin, appt.ID, "complete")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}
