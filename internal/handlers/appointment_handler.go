package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/services"
)

type appointmentApplicationService interface {
	CreateAppointment(ctx context.Context, input services.CreateAppointmentInput) (*models.Appointment, error)
	BookAppointment(ctx context.Context, providerID string, clientID string, timeText string) (*models.Appointment, error)
	CheckAvailability(ctx context.Context, providerID string, start time.Time, durationMinutes int) (bool, error)
	GetAppointmentsForUser(ctx context.Context, userID string, role string) ([]models.AppointmentDetail, error)
	GetAllAppointments(ctx context.Context) ([]models.Appointment, error)
	UpdateStatusAs(
		ctx context.Context,
		actorID string,
		role string,
		appointmentID string,
		requestedStatus string,
	) (*models.Appointment, error)
}

type AppointmentHandler struct {
	service appointmentApplicationService
}

type createAppointmentRequest struct {
	ProviderID      string  `json:"provider_id"`
	DateTime        string  `json:"date_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Type            string  `json:"type"`
	Notes           *string `json:"notes"`
	AmountCents     *int64  `json:"amount_cents"`
}

type quickBookRequest struct {
	ProviderID string `json:"provider_id"`
	Time       string `json:"time"`
}

type updateAppointmentStatusRequest struct {
	Status string `json:"status"`
}

func NewAppointmentHandler(service appointmentApplicationService) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

func (h *AppointmentHandler) Create(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req createAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.ProviderID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider_id is required"})
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DateTime))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date_time must be RFC3339"})
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = services.DefaultAppointmentMinutes
	}

	appointment, err := h.service.CreateAppointment(c.Context(), services.CreateAppointmentInput{
		ProviderID:      req.ProviderID,
		ClientID:        userID,
		DateTime:        start,
		DurationMinutes: duration,
		Type:            req.Type,
		Notes:           req.Notes,
		AmountCents:     req.AmountCents,
	})
	if err != nil {
		return mapError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"appointment": appointment})
}

func (h *AppointmentHandler) QuickBook(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req quickBookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.ProviderID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider_id is required"})
	}

	appointment, err := h.service.BookAppointment(c.Context(), req.ProviderID, userID, req.Time)
	if err != nil {
		return mapError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"appointment": appointment})
}

func (h *AppointmentHandler) List(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	tokenRole := parseRole(c)
	role := strings.ToLower(strings.TrimSpace(c.Query("role", tokenRole)))
	if role == services.RoleProvider && tokenRole != services.RoleProvider && tokenRole != services.RoleAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only providers can list provider appointments"})
	}

	appointments, err := h.service.GetAppointmentsForUser(c.Context(), userID, role)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"appointments": appointments})
}

func (h *AppointmentHandler) ListAll(c *fiber.Ctx) error {
	appointments, err := h.service.GetAllAppointments(c.Context())
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"appointments": appointments})
}

func (h *AppointmentHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req updateAppointmentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	appointment, err := h.service.UpdateStatusAs(c.Context(), userID, parseRole(c), c.Params("id"), req.Status)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"appointment": appointment})
}

func (h *AppointmentHandler) Availability(c *fiber.Ctx) error {
	providerID := strings.TrimSpace(c.Query("provider_id"))
	if providerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider_id is required"})
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("start")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start must be RFC3339"})
	}
	duration := parsePositiveInt(c.Query("duration_minutes"), services.DefaultAppointmentMinutes)

	available, err := h.service.CheckAvailability(c.Context(), providerID, start, duration)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{"available": available})
}
