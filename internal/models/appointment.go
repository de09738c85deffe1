package models

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusRejected  AppointmentStatus = "REJECTED"
)

// Active reports whether the appointment still holds its slot.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled && s != StatusRejected
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

const (
	PaymentPending  = "pending"
	PaymentExempted = "exempted"
)

type Appointment struct {
	ID              string            `json:"id"`
	ProviderID      string            `json:"provider_id"`
	ClientID        string            `json:"client_id"`
	DateTime        time.Time         `json:"date_time"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	Type            string            `json:"type"`
	PaymentStatus   string            `json:"payment_status"`
	AmountCents     *int64            `json:"amount_cents,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// End is the exclusive end of the booked interval.
func (a *Appointment) End() time.Time {
	return a.DateTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps uses half-open interval semantics, so back-to-back slots do not collide.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.End()) && end.After(a.DateTime)
}

type Counterparty struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Title       *string `json:"title,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

type AppointmentDetail struct {
	Appointment
	Counterparty *Counterparty `json:"counterparty,omitempty"`
}
