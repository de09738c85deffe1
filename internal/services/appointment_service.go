package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAppointmentMinutes = 60
	DefaultAppointmentType    = "video"
	MaxAppointmentMinutes     = 24 * 60

	RoleClient   = "client"
	RoleProvider = "provider"
	RoleAdmin    = "admin"

	enrichmentConcurrency = 4
)

var appointmentTypes = map[string]bool{
	"video":     true,
	"phone":     true,
	"in_person": true,
	"chat":      true,
}

type AppointmentStore interface {
	store.AppointmentStore
	store.DirectoryStore
}

type AppointmentService struct {
	store    AppointmentStore
	notifier Notifier
	deps     Deps
}

type CreateAppointmentInput struct {
	ProviderID      string
	ClientID        string
	DateTime        time.Time
	DurationMinutes int
	Type            string
	Notes           *string
	AmountCents     *int64
}

func NewAppointmentService(st AppointmentStore, notifier Notifier, deps Deps) *AppointmentService {
	return &AppointmentService{
		store:    st,
		notifier: notifier,
		deps:     deps.withDefaults("appointments"),
	}
}

func (s *AppointmentService) CreateAppointment(
	ctx context.Context,
	input CreateAppointmentInput,
) (*models.Appointment, error) {
	providerID := strings.TrimSpace(input.ProviderID)
	clientID := strings.TrimSpace(input.ClientID)
	if providerID == "" || clientID == "" || input.DateTime.IsZero() || !validDuration(input.DurationMinutes) {
		return nil, ErrInvalidInput
	}
	appointmentType, err := normalizeAppointmentType(input.Type)
	if err != nil {
		return nil, err
	}

	paymentStatus := models.PaymentExempted
	if input.AmountCents != nil && *input.AmountCents > 0 {
		paymentStatus = models.PaymentPending
	}

	now := s.deps.clock()
	appointment := &models.Appointment{
		ID:              s.deps.IDs.NewID(),
		ProviderID:      providerID,
		ClientID:        clientID,
		DateTime:        input.DateTime.UTC(),
		DurationMinutes: input.DurationMinutes,
		Status:          models.StatusPending,
		Type:            appointmentType,
		PaymentStatus:   paymentStatus,
		AmountCents:     input.AmountCents,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateAppointment(ctx, appointment); err != nil {
		if errors.Is(err, store.ErrCollision) {
			s.deps.Logger.Warn("appointment collision",
				zap.String("provider_id", providerID),
				zap.Time("start", appointment.DateTime),
				zap.Int("duration_minutes", appointment.DurationMinutes),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	providerUserID := s.providerUserID(ctx, providerID)
	when := appointment.DateTime.Format("Jan 2, 2006 at 3:04 PM MST")
	link := "/appointments/" + appointment.ID
	if s.notifier != nil {
		s.notifier.Notify(ctx, CreateNotificationInput{
			UserID:  providerUserID,
			Type:    models.NotificationAppointment,
			Title:   "New appointment request",
			Message: fmt.Sprintf("A client requested a %s appointment on %s.", appointment.Type, when),
			Link:    &link,
		})
		s.notifier.Notify(ctx, CreateNotificationInput{
			UserID:  clientID,
			Type:    models.NotificationAppointment,
			Title:   "Appointment request submitted",
			Message: fmt.Sprintf("Your %s appointment request for %s is awaiting confirmation.", appointment.Type, when),
			Link:    &link,
		})
	}

	s.deps.publish(ctx, events.TopicAppointments, appointmentEvent(events.ActionCreated, appointment, providerUserID))
	return appointment, nil
}

// BookAppointment is the free-text entry point: timeText is parsed on a
// best-effort basis and falls back to now.
func (s *AppointmentService) BookAppointment(
	ctx context.Context,
	providerID string,
	clientID string,
	timeText string,
) (*models.Appointment, error) {
	ref := s.deps.clock()
	return s.CreateAppointment(ctx, CreateAppointmentInput{
		ProviderID:      providerID,
		ClientID:        clientID,
		DateTime:        ParseAppointmentTime(timeText, ref),
		DurationMinutes: DefaultAppointmentMinutes,
		Type:            DefaultAppointmentType,
	})
}

func (s *AppointmentService) CheckAvailability(
	ctx context.Context,
	providerID string,
	start time.Time,
	durationMinutes int,
) (bool, error) {
	if strings.TrimSpace(providerID) == "" || !validDuration(durationMinutes) {
		return false, ErrInvalidInput
	}
	start = start.UTC()
	conflict, err := s.store.FindConflict(ctx, providerID, start, start.Add(time.Duration(durationMinutes)*time.Minute))
	if err != nil {
		return false, err
	}
	return conflict == nil, nil
}

// GetAppointmentsForUser lists the caller's appointments newest first. With
// role provider it covers every provider identity the user owns.
func (s *AppointmentService) GetAppointmentsForUser(
	ctx context.Context,
	userID string,
	role string,
) ([]models.AppointmentDetail, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}

	var appointments []models.Appointment
	var err error
	asProvider := role == RoleProvider
	if asProvider {
		providerIDs, lookupErr := s.store.ListProviderIDsForUser(ctx, userID)
		if lookupErr != nil {
			return nil, fmt.Errorf("list provider identities: %w", lookupErr)
		}
		appointments, err = s.store.ListAppointmentsForProviders(ctx, providerIDs)
	} else {
		appointments, err = s.store.ListAppointmentsForClient(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	store.SortAppointmentsNewestFirst(appointments)

	counterparties, err := s.counterparties(ctx, appointments, asProvider)
	if err != nil {
		return nil, err
	}

	details := make([]models.AppointmentDetail, 0, len(appointments))
	for _, appointment := range appointments {
		detail := models.AppointmentDetail{Appointment: appointment}
		if asProvider {
			detail.Counterparty = counterparties[appointment.ClientID]
		} else {
			detail.Counterparty = counterparties[appointment.ProviderID]
		}
		details = append(details, detail)
	}
	return details, nil
}

func (s *AppointmentService) GetAllAppointments(ctx context.Context) ([]models.Appointment, error) {
	appointments, err := s.store.ListAllAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all appointments: %w", err)
	}
	store.SortAppointmentsNewestFirst(appointments)
	return appointments, nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	return s.store.GetAppointment(ctx, appointmentID)
}

// UpdateStatus moves an appointment along the state machine. A concurrent
// change to the same appointment makes the loser fail with
// ErrInvalidStateTransition.
func (s *AppointmentService) UpdateStatus(
	ctx context.Context,
	appointmentID string,
	requestedStatus string,
) (*models.Appointment, error) {
	next, err := normalizeRequestedStatus(requestedStatus)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	if !canTransition(current.Status, next) {
		return nil, ErrInvalidStateTransition
	}

	updated, err := s.store.UpdateAppointmentStatusIfCurrent(ctx, appointmentID, current.Status, next, s.deps.clock())
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidStateTransition, appointmentID)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	providerUserID := s.providerUserID(ctx, updated.ProviderID)
	if s.notifier != nil {
		link := "/appointments/" + updated.ID
		message := fmt.Sprintf("Appointment on %s is now %s.",
			updated.DateTime.Format("Jan 2, 2006 at 3:04 PM MST"),
			strings.ToLower(string(updated.Status)),
		)
		for _, recipient := range []string{updated.ClientID, providerUserID} {
			s.notifier.Notify(ctx, CreateNotificationInput{
				UserID:  recipient,
				Type:    models.NotificationAppointment,
				Title:   "Appointment " + strings.ToLower(string(updated.Status)),
				Message: message,
				Link:    &link,
			})
		}
	}

	s.deps.publish(ctx, events.TopicAppointments, appointmentEvent(events.ActionStatusChanged, updated, providerUserID))
	return updated, nil
}

// UpdateStatusAs applies the caller's standing before UpdateStatus: admins
// may make any legal move, providers act on their own identities, and
// clients may only cancel their own appointments.
func (s *AppointmentService) UpdateStatusAs(
	ctx context.Context,
	actorID string,
	role string,
	appointmentID string,
	requestedStatus string,
) (*models.Appointment, error) {
	next, err := normalizeRequestedStatus(requestedStatus)
	if err != nil {
		return nil, err
	}
	appointment, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	switch role {
	case RoleAdmin:
	case RoleProvider:
		owned, err := s.ownsProvider(ctx, actorID, appointment.ProviderID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, ErrForbidden
		}
	default:
		if appointment.ClientID != actorID || next != models.StatusCancelled {
			return nil, ErrForbidden
		}
	}

	return s.UpdateStatus(ctx, appointmentID, string(next))
}

func (s *AppointmentService) ownsProvider(ctx context.Context, userID string, providerID string) (bool, error) {
	providerIDs, err := s.store.ListProviderIDsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range providerIDs {
		if id == providerID {
			return true, nil
		}
	}
	return false, nil
}

// providerUserID resolves the account behind a provider identity, falling
// back to the provider id when the directory has no record.
func (s *AppointmentService) providerUserID(ctx context.Context, providerID string) string {
	profile, err := s.store.GetProviderProfile(ctx, providerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.deps.Logger.Warn("provider lookup failed", zap.String("provider_id", providerID), zap.Error(err))
		}
		return providerID
	}
	if profile.UserID == "" {
		return providerID
	}
	return profile.UserID
}

// counterparties looks up each distinct counterparty once. Missing
// directory records leave the entry nil.
func (s *AppointmentService) counterparties(
	ctx context.Context,
	appointments []models.Appointment,
	asProvider bool,
) (map[string]*models.Counterparty, error) {
	ids := make(map[string]struct{})
	for _, appointment := range appointments {
		if asProvider {
			ids[appointment.ClientID] = struct{}{}
		} else {
			ids[appointment.ProviderID] = struct{}{}
		}
	}

	var mu sync.Mutex
	result := make(map[string]*models.Counterparty, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichmentConcurrency)
	for id := range ids {
		id := id
		g.Go(func() error {
			counterparty, err := s.lookupCounterparty(gctx, id, asProvider)
			if err != nil {
				return err
			}
			mu.Lock()
			result[id] = counterparty
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrich appointments: %w", err)
	}
	return result, nil
}

func (s *AppointmentService) lookupCounterparty(
	ctx context.Context,
	id string,
	clientSide bool,
) (*models.Counterparty, error) {
	if clientSide {
		profile, err := s.store.GetUserProfile(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &models.Counterparty{
			ID:          profile.ID,
			DisplayName: profile.FullName,
			ImageURL:    profile.AvatarURL,
		}, nil
	}

	profile, err := s.store.GetProviderProfile(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &models.Counterparty{
		ID:          profile.ID,
		DisplayName: profile.FullName,
		Title:       profile.Title,
		ImageURL:    profile.ImageURL,
	}, nil
}

func appointmentEvent(action string, appointment *models.Appointment, providerUserID string) events.AppointmentEvent {
	return events.AppointmentEvent{
		Action:         action,
		AppointmentID:  appointment.ID,
		Status:         appointment.Status,
		ProviderID:     appointment.ProviderID,
		ClientID:       appointment.ClientID,
		DateTime:       appointment.DateTime,
		ProviderUserID: providerUserID,
	}
}

// validDuration bounds a booking to one day, which also keeps the interval
// end from overflowing time.Duration.
func validDuration(minutes int) bool {
	return minutes > 0 && minutes <= MaxAppointmentMinutes
}

func normalizeAppointmentType(value string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" {
		return DefaultAppointmentType, nil
	}
	if !appointmentTypes[normalized] {
		return "", ErrInvalidInput
	}
	return normalized, nil
}

func normalizeRequestedStatus(status string) (models.AppointmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "confirm", "confirmed":
		return models.StatusConfirmed, nil
	case "complete", "completed":
		return models.StatusCompleted, nil
	case "cancel", "cancelled", "canceled":
		return models.StatusCancelled, nil
	case "reject", "rejected":
		return models.StatusRejected, nil
	default:
		return "", ErrInvalidStatus
	}
}

func canTransition(current, next models.AppointmentStatus) bool {
	switch current {
	case models.StatusPending:
		return next == models.StatusConfirmed || next == models.StatusRejected || next == models.StatusCancelled
	case models.StatusConfirmed:
		return next == models.StatusCompleted || next == models.StatusCancelled
	default:
		return false
	}
}
