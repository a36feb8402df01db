package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// ListByClinicianDay returns every appointment for the clinician on the
	// given calendar day, regardless of status, ordered by start time.
	ListByClinicianDay(ctx context.Context, clinicianID uuid.UUID, day time.Time) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	// LockClinicianDay serializes bookings per (clinician, day) for the rest
	// of the current transaction. Must be called inside a transaction.
	LockClinicianDay(ctx context.Context, clinicianID uuid.UUID, day time.Time) error
}
