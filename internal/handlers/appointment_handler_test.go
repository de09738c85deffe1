package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/services"
	"github.com/saeid-a/CareMarketBack/internal/store"
)

type stubAppointmentService struct {
	createErr      error
	lastCreate     services.CreateAppointmentInput
	lastQuickTime  string
	lastListRole   string
	lastStatusRole string
	lastStatus     string
	lastStart      time.Time
	lastDuration   int
	statusErr      error
}

func (s *stubAppointmentService) CreateAppointment(
	_ context.Context,
	input services.CreateAppointmentInput,
) (*models.Appointment, error) {
	s.lastCreate = input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &models.Appointment{ID: "a1", ProviderID: input.ProviderID, ClientID: input.ClientID, DateTime: input.DateTime}, nil
}

func (s *stubAppointmentService) BookAppointment(
	_ context.Context,
	providerID string,
	clientID string,
	timeText string,
) (*models.Appointment, error) {
	s.lastQuickTime = timeText
	return &models.Appointment{ID: "a2", ProviderID: providerID, ClientID: clientID}, nil
}

func (s *stubAppointmentService) CheckAvailability(
	_ context.Context,
	_ string,
	start time.Time,
	durationMinutes int,
) (bool, error) {
	s.lastStart = start
	s.lastDuration = durationMinutes
	return true, nil
}

func (s *stubAppointmentService) GetAppointmentsForUser(
	_ context.Context,
	_ string,
	role string,
) ([]models.AppointmentDetail, error) {
	s.lastListRole = role
	return []models.AppointmentDetail{}, nil
}

func (s *stubAppointmentService) GetAllAppointments(context.Context) ([]models.Appointment, error) {
	return []models.Appointment{}, nil
}

func (s *stubAppointmentService) UpdateStatusAs(
	_ context.Context,
	_ string,
	role string,
	appointmentID string,
	requestedStatus string,
) (*models.Appointment, error) {
	s.lastStatusRole = role
	s.lastStatus = requestedStatus
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &models.Appointment{ID: appointmentID, Status: models.StatusConfirmed}, nil
}

func newAppointmentTestApp(service *stubAppointmentService, role string) *fiber.App {
	handler := NewAppointmentHandler(service)
	app := fiber.New()
	app.Use(authenticated("c1", role))
	app.Post("/appointments", handler.Create)
	app.Post("/appointments/quick", handler.QuickBook)
	app.Get("/appointments", handler.List)
	app.Get("/appointments/availability", handler.Availability)
	app.Put("/appointments/:id/status", handler.UpdateStatus)
	return app
}

func TestAppointmentCreateBooksForCaller(t *testing.T) {
	service := &stubAppointmentService{}
	app := newAppointmentTestApp(service, "client")

	body := `{"provider_id":"p1","date_time":"2024-03-15T09:00:00Z","type":"phone","amount_cents":5000}`
	req := httptest.NewRequest("POST", "/appointments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastCreate.ClientID != "c1" || service.lastCreate.ProviderID != "p1" {
		t.Fatalf("unexpected create input: %+v", service.lastCreate)
	}
	if service.lastCreate.DurationMinutes != services.DefaultAppointmentMinutes {
		t.Fatalf("expected default duration, got %d", service.lastCreate.DurationMinutes)
	}
	if service.lastCreate.AmountCents == nil || *service.lastCreate.AmountCents != 5000 {
		t.Fatalf("expected amount to pass through")
	}
}

func TestAppointmentCreateRejectsBadDate(t *testing.T) {
	app := newAppointmentTestApp(&stubAppointmentService{}, "client")

	req := httptest.NewRequest("POST", "/appointments", strings.NewReader(`{"provider_id":"p1","date_time":"tomorrow"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAppointmentCollisionIsRetryableConflict(t *testing.T) {
	start := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	service := &stubAppointmentService{createErr: &store.CollisionError{
		ProviderID:     "p1",
		RequestedStart: start.Add(30 * time.Minute),
		RequestedEnd:   start.Add(time.Hour),
		ConflictingID:  "a0",
		ConflictStart:  start,
		ConflictEnd:    start.Add(time.Hour),
	}}
	app := newAppointmentTestApp(service, "client")

	req := httptest.NewRequest("POST", "/appointments", strings.NewReader(`{"provider_id":"p1","date_time":"2024-03-15T09:30:00Z","duration_minutes":30}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var body struct {
		Code      string `json:"code"`
		Retryable bool   `json:"retryable"`
		Conflict  struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"conflict"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != services.CodeCollision || !body.Retryable {
		t.Fatalf("unexpected body: %+v", body)
	}
	if !body.Conflict.Start.Equal(start) || !body.Conflict.End.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected conflict window: %+v", body.Conflict)
	}
}

func TestAppointmentQuickBookPassesFreeText(t *testing.T) {
	service := &stubAppointmentService{}
	app := newAppointmentTestApp(service, "client")

	req := httptest.NewRequest("POST", "/appointments/quick", strings.NewReader(`{"provider_id":"p1","time":"tomorrow 3pm"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastQuickTime != "tomorrow 3pm" {
		t.Fatalf("unexpected time text: %q", service.lastQuickTime)
	}
}

func TestAppointmentListRole(t *testing.T) {
	service := &stubAppointmentService{}
	app := newAppointmentTestApp(service, "client")

	resp, err := app.Test(httptest.NewRequest("GET", "/appointments", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK || service.lastListRole != "client" {
		t.Fatalf("expected client listing, got %d %q", resp.StatusCode, service.lastListRole)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/appointments?role=provider", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for client asking provider view, got %d", resp.StatusCode)
	}

	providerApp := newAppointmentTestApp(service, "provider")
	resp, err = providerApp.Test(httptest.NewRequest("GET", "/appointments", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK || service.lastListRole != "provider" {
		t.Fatalf("expected provider listing, got %d %q", resp.StatusCode, service.lastListRole)
	}
}

func TestAppointmentUpdateStatus(t *testing.T) {
	service := &stubAppointmentService{}
	app := newAppointmentTestApp(service, "provider")

	req := httptest.NewRequest("PUT", "/appointments/a1/status", strings.NewReader(`{"status":"confirm"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastStatusRole != "provider" || service.lastStatus != "confirm" {
		t.Fatalf("unexpected status call: %q %q", service.lastStatusRole, service.lastStatus)
	}

	service.statusErr = services.ErrInvalidStateTransition
	req = httptest.NewRequest("PUT", "/appointments/a1/status", strings.NewReader(`{"status":"confirm"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestAppointmentAvailability(t *testing.T) {
	service := &stubAppointmentService{}
	app := newAppointmentTestApp(service, "client")

	resp, err := app.Test(httptest.NewRequest("GET", "/appointments/availability?provider_id=p1&start=2024-03-15T10:00:00Z", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastDuration != services.DefaultAppointmentMinutes {
		t.Fatalf("expected default duration, got %d", service.lastDuration)
	}
	if !service.lastStart.Equal(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", service.lastStart)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/appointments/availability?provider_id=p1", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without start, got %d", resp.StatusCode)
	}
}
