package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CareMarketBack/internal/models"
	"github.com/saeid-a/CareMarketBack/internal/store"
)

type AppointmentRepository struct {
	db DBTX
}

func NewAppointmentRepository(db DBTX) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `id, provider_id, client_id, date_time, duration_min, status, type,
	payment_status, amount_cents, notes, created_at, updated_at`

func scanAppointment(row interface{ Scan(dest ...any) error }) (*models.Appointment, error) {
	var appointment models.Appointment
	var status string
	var amountCents sql.NullInt64
	var notes sql.NullString
	if err := row.Scan(
		&appointment.ID,
		&appointment.ProviderID,
		&appointment.ClientID,
		&appointment.DateTime,
		&appointment.DurationMinutes,
		&status,
		&appointment.Type,
		&appointment.PaymentStatus,
		&amountCents,
		&notes,
		&appointment.CreatedAt,
		&appointment.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appointment.Status = models.AppointmentStatus(status)
	if amountCents.Valid {
		appointment.AmountCents = &amountCents.Int64
	}
	if notes.Valid {
		appointment.Notes = &notes.String
	}
	return &appointment, nil
}

func collectAppointments(rows pgx.Rows) ([]models.Appointment, error) {
	defer rows.Close()

	appointments := make([]models.Appointment, 0)
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, *appointment)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return appointments, nil
}

// Create stores end_time alongside the start so the exclusion constraint can
// index the booked range directly.
func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, provider_id, client_id, date_time, end_time, duration_min, status, type,
			payment_status, amount_cents, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		appointment.ID,
		appointment.ProviderID,
		appointment.ClientID,
		appointment.DateTime,
		appointment.End(),
		appointment.DurationMinutes,
		string(appointment.Status),
		appointment.Type,
		appointment.PaymentStatus,
		appointment.AmountCents,
		appointment.Notes,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	return err
}

func (r *AppointmentRepository) GetByID(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1
	`
	appointment, err := scanAppointment(r.db.QueryRow(ctx, query, appointmentID))
	if err != nil {
		return nil, notFound(err)
	}
	return appointment, nil
}

// FindConflict returns the earliest active appointment overlapping
// [start, end), or nil when the slot is free.
func (r *AppointmentRepository) FindConflict(
	ctx context.Context,
	providerID string,
	start time.Time,
	end time.Time,
) (*models.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE provider_id = $1
		  AND status NOT IN ('CANCELLED', 'REJECTED')
		  AND date_time < $3
		  AND end_time > $2
		ORDER BY date_time ASC, id COLLATE "C" ASC
		LIMIT 1
	`
	appointment, err := scanAppointment(r.db.QueryRow(ctx, query, providerID, start, end))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return appointment, nil
}

func (r *AppointmentRepository) ListForProviders(ctx context.Context, providerIDs []string) ([]models.Appointment, error) {
	if len(providerIDs) == 0 {
		return []models.Appointment{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = ANY($1)
		ORDER BY date_time DESC, created_at DESC, id COLLATE "C" ASC
	`, providerIDs)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListForClient(ctx context.Context, clientID string) ([]models.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY date_time DESC, created_at DESC, id COLLATE "C" ASC
	`, clientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListAll(ctx context.Context) ([]models.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY date_time DESC, created_at DESC, id COLLATE "C" ASC
	`)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// UpdateStatusIfCurrent only writes when the stored status still equals
// current, so two racing transitions cannot both win.
func (r *AppointmentRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	appointmentID string,
	current models.AppointmentStatus,
	next models.AppointmentStatus,
	updatedAt time.Time,
) (*models.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns

	appointment, err := scanAppointment(r.db.QueryRow(
		ctx,
		query,
		appointmentID,
		string(current),
		string(next),
		updatedAt,
	))
	if err == nil {
		return appointment, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if _, err := r.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	return nil, store.ErrStaleStatus
}
