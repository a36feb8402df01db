// Package scheduling owns the appointment book: conflict checking, booking,
// rescheduling, and the appointment status state machine.
package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/domain/audit"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
	"github.com/clinicdesk/clinicdesk/internal/platform/clock"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("APPOINTMENT_NOT_FOUND", "appointment not found")
	ErrPatientNotFound     = apperr.NotFound("PATIENT_NOT_FOUND", "patient not found")
	ErrClinicianNotFound   = apperr.NotFound("CLINICIAN_NOT_FOUND", "clinician not found")
	ErrDepartmentNotFound  = apperr.NotFound("DEPARTMENT_NOT_FOUND", "department not found")
	ErrPatientInactive     = apperr.Conflict("PATIENT_INACTIVE", "patient record is inactive")
	ErrSchedulingConflict  = apperr.Conflict("SCHEDULING_CONFLICT", "the requested time overlaps an existing appointment")
	ErrInvalidTransition   = apperr.IllegalTransition("INVALID_STATUS_TRANSITION", "this status change is not permitted")
	ErrFutureCompletion    = apperr.IllegalTransition("FUTURE_APPOINTMENT_CANNOT_BE_COMPLETED", "a future-dated appointment cannot be marked completed")
	ErrNotActive           = apperr.IllegalTransition("APPOINTMENT_NOT_ACTIVE", "only active appointments can be rescheduled")
)

// PatientDirectory is the slice of the directory service this package needs.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientIsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// StaffDirectory resolves clinician and department references.
type StaffDirectory interface {
	StaffExists(ctx context.Context, id uuid.UUID) (bool, error)
	DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo                AppointmentRepository
	patients            PatientDirectory
	staff               StaffDirectory
	rec                 audit.Recorder
	tx                  db.TxRunner
	clk                 clock.Clock
	defaultDurationMins int
}

func NewService(repo AppointmentRepository, patients PatientDirectory, staff StaffDirectory,
	rec audit.Recorder, tx db.TxRunner, clk clock.Clock, defaultDurationMins int) *Service {
	if defaultDurationMins <= 0 {
		defaultDurationMins = DefaultDurationMins
	}
	return &Service{
		repo:                repo,
		patients:            patients,
		staff:               staff,
		rec:                 rec,
		tx:                  tx,
		clk:                 clk,
		defaultDurationMins: defaultDurationMins,
	}
}

// parseDate reads a YYYY-MM-DD calendar date in the clinic's time zone.
func (s *Service) parseDate(dateStr string) (time.Time, error) {
	loc := s.clk.Now().Location()
	d, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.CodeValidation, "date must be YYYY-MM-DD")
	}
	return d, nil
}

// parseStartAt combines a calendar date with an HH:MM time of day.
func parseStartAt(date time.Time, timeStr string) (time.Time, error) {
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.CodeValidation, "start_time must be HH:MM (24-hour)")
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

// dateAfter reports whether a's calendar date is strictly after b's.
func dateAfter(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	if y1 != y2 {
		return y1 > y2
	}
	if m1 != m2 {
		return m1 > m2
	}
	return d1 > d2
}

type ConflictRequest struct {
	ClinicianID  uuid.UUID `json:"clinician_id"`
	Date         string    `json:"date"`
	StartTime    string    `json:"start_time"`
	DurationMins int       `json:"duration_mins"`
	ExcludeID    uuid.UUID `json:"exclude_appointment_id"`
}

// CheckConflict reports whether the proposed slot overlaps the clinician's
// existing active appointments. Read-only; booking repeats the check under
// the per-day lock before committing.
func (s *Service) CheckConflict(ctx context.Context, req ConflictRequest) (*ConflictResult, error) {
	if req.ClinicianID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeValidation, "clinician_id is required")
	}
	if req.DurationMins < 0 {
		return nil, apperr.Validation(apperr.CodeValidation, "duration_mins must be positive")
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	startAt, err := parseStartAt(day, req.StartTime)
	if err != nil {
		return nil, err
	}
	dur := req.DurationMins
	if dur == 0 {
		dur = s.defaultDurationMins
	}

	existing, err := s.repo.ListByClinicianDay(ctx, req.ClinicianID, day)
	if err != nil {
		return nil, apperr.Internal("list clinician day", err)
	}
	res := FindConflicts(startAt, dur, req.ExcludeID, existing)
	return &res, nil
}

type BookRequest struct {
	PatientID    uuid.UUID  `json:"patient_id"`
	ClinicianID  uuid.UUID  `json:"clinician_id"`
	DepartmentID *uuid.UUID `json:"department_id"`
	Date         string     `json:"date"`
	StartTime    string     `json:"start_time"`
	DurationMins int        `json:"duration_mins"`
	Priority     string     `json:"priority"`
	Reason       string     `json:"reason"`
	Notes        string     `json:"notes"`
}

// BookAppointment creates a scheduled appointment. The conflict check and
// the insert run under the clinician-day lock so two concurrent bookings
// cannot both pass the check.
func (s *Service) BookAppointment(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeValidation, "patient_id is required")
	}
	if req.ClinicianID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeValidation, "clinician_id is required")
	}
	if req.DurationMins < 0 {
		return nil, apperr.Validation(apperr.CodeValidation, "duration_mins must be positive")
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	startAt, err := parseStartAt(day, req.StartTime)
	if err != nil {
		return nil, err
	}
	dur := req.DurationMins
	if dur == 0 {
		dur = s.defaultDurationMins
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !IsValidPriority(priority) {
		return nil, apperr.Validation(apperr.CodeValidation, "priority must be high, normal, or low")
	}

	exists, err := s.patients.PatientExists(ctx, req.PatientID)
	if err != nil {
		return nil, apperr.Internal("check patient", err)
	}
	if !exists {
		return nil, ErrPatientNotFound
	}
	active, err := s.patients.PatientIsActive(ctx, req.PatientID)
	if err != nil {
		return nil, apperr.Internal("check patient", err)
	}
	if !active {
		return nil, ErrPatientInactive
	}
	exists, err = s.staff.StaffExists(ctx, req.ClinicianID)
	if err != nil {
		return nil, apperr.Internal("check clinician", err)
	}
	if !exists {
		return nil, ErrClinicianNotFound
	}
	if req.DepartmentID != nil {
		exists, err = s.staff.DepartmentExists(ctx, *req.DepartmentID)
		if err != nil {
			return nil, apperr.Internal("check department", err)
		}
		if !exists {
			return nil, ErrDepartmentNotFound
		}
	}

	appt := &Appointment{
		PatientID:    req.PatientID,
		ClinicianID:  req.ClinicianID,
		DepartmentID: req.DepartmentID,
		Date:         day,
		StartAt:      startAt,
		DurationMins: dur,
		Priority:     priority,
		Reason:       req.Reason,
		Status:       StatusScheduled,
	}
	if req.Notes != "" {
		appt.Notes = &req.Notes
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockClinicianDay(ctx, req.ClinicianID, day); err != nil {
			return apperr.Internal("lock clinician day", err)
		}
		existing, err := s.repo.ListByClinicianDay(ctx, req.ClinicianID, day)
		if err != nil {
			return apperr.Internal("list clinician day", err)
		}
		if res := FindConflicts(startAt, dur, uuid.Nil, existing); res.HasConflict {
			return ErrSchedulingConflict.WithMessagef(
				"the requested time overlaps %d existing appointment(s)", len(res.ConflictingIDs))
		}
		if err := s.repo.Create(ctx, appt); err != nil {
			return apperr.Internal("create appointment", err)
		}
		newStatus := appt.Status
		return s.rec.Record(ctx, &audit.Event{
			Action:     "book",
			EntityType: audit.EntityAppointment,
			EntityID:   appt.ID,
			NewStatus:  &newStatus,
			ActorID:    audit.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

type RescheduleRequest struct {
	Date         string     `json:"date"`
	StartTime    string     `json:"start_time"`
	DurationMins int        `json:"duration_mins"`
	ClinicianID  *uuid.UUID `json:"clinician_id"`
}

// RescheduleAppointment moves an active appointment to a new slot, keeping
// any field the request leaves empty. The conflict check excludes the
// appointment itself and runs under the target clinician-day lock.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if req.DurationMins < 0 {
		return nil, apperr.Validation(apperr.CodeValidation, "duration_mins must be positive")
	}
	if req.ClinicianID != nil {
		exists, err := s.staff.StaffExists(ctx, *req.ClinicianID)
		if err != nil {
			return nil, apperr.Internal("check clinician", err)
		}
		if !exists {
			return nil, ErrClinicianNotFound
		}
	}

	var updated *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		appt, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrAppointmentNotFound
			}
			return apperr.Internal("get appointment", err)
		}
		if !IsActiveStatus(appt.Status) {
			return ErrNotActive
		}

		loc := s.clk.Now().Location()
		day := time.Date(appt.Date.Year(), appt.Date.Month(), appt.Date.Day(), 0, 0, 0, 0, loc)
		if req.Date != "" {
			day, err = s.parseDate(req.Date)
			if err != nil {
				return err
			}
		}
		startAt := time.Date(day.Year(), day.Month(), day.Day(),
			appt.StartAt.Hour(), appt.StartAt.Minute(), 0, 0, loc)
		if req.StartTime != "" {
			startAt, err = parseStartAt(day, req.StartTime)
			if err != nil {
				return err
			}
		}
		dur := appt.DurationMins
		if req.DurationMins > 0 {
			dur = req.DurationMins
		}
		clinicianID := appt.ClinicianID
		if req.ClinicianID != nil {
			clinicianID = *req.ClinicianID
		}

		if err := s.repo.LockClinicianDay(ctx, clinicianID, day); err != nil {
			return apperr.Internal("lock clinician day", err)
		}
		existing, err := s.repo.ListByClinicianDay(ctx, clinicianID, day)
		if err != nil {
			return apperr.Internal("list clinician day", err)
		}
		if res := FindConflicts(startAt, dur, appt.ID, existing); res.HasConflict {
			return ErrSchedulingConflict.WithMessagef(
				"the requested time overlaps %d existing appointment(s)", len(res.ConflictingIDs))
		}

		appt.ClinicianID = clinicianID
		appt.Date = day
		appt.StartAt = startAt
		appt.DurationMins = dur
		appt.AppendNote(s.clk.Now(), fmt.Sprintf("rescheduled to %s", startAt.Format("2006-01-02 15:04")))
		if err := s.repo.Update(ctx, appt); err != nil {
			return apperr.Internal("update appointment", err)
		}
		updated = appt
		return s.rec.Record(ctx, &audit.Event{
			Action:     "reschedule",
			EntityType: audit.EntityAppointment,
			EntityID:   appt.ID,
			ActorID:    audit.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetStatus moves an appointment through the state machine and appends the
// timestamped note trail entry. Same-status requests are rejected; use
// Transition for synchronizer traffic that may already be converged.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, newStatus, reason string) (*Appointment, error) {
	if !IsValidStatus(newStatus) {
		return nil, apperr.Validation(apperr.CodeValidation, fmt.Sprintf("invalid appointment status: %s", newStatus))
	}

	var updated *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		appt, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrAppointmentNotFound
			}
			return apperr.Internal("get appointment", err)
		}
		if err := s.applyStatus(ctx, appt, newStatus, reason); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition applies a synchronizer-implied status. Unlike SetStatus it is
// a no-op when the appointment already holds the target status, since the
// queue's waiting and called states both map onto checked-in.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, newStatus, reason string) error {
	if !IsValidStatus(newStatus) {
		return apperr.Validation(apperr.CodeValidation, fmt.Sprintf("invalid appointment status: %s", newStatus))
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		appt, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrAppointmentNotFound
			}
			return apperr.Internal("get appointment", err)
		}
		if appt.Status == newStatus {
			return nil
		}
		return s.applyStatus(ctx, appt, newStatus, reason)
	})
}

// applyStatus enforces transition legality, appends the note line, persists,
// and records the audit event. Runs on the caller's transaction.
func (s *Service) applyStatus(ctx context.Context, appt *Appointment, newStatus, reason string) error {
	oldStatus := appt.Status
	if !CanTransition(oldStatus, newStatus) {
		return ErrInvalidTransition.WithMessagef("cannot change status from %s to %s", oldStatus, newStatus)
	}
	if newStatus == StatusCompleted && dateAfter(appt.Date, s.clk.Now()) {
		return ErrFutureCompletion
	}
	if oldStatus == StatusCompleted && newStatus == StatusCancelled && strings.TrimSpace(reason) == "" {
		return apperr.Validation("REASON_REQUIRED", "cancelling a completed appointment requires a reason")
	}

	line := strings.TrimSpace(reason)
	if line == "" {
		line = fmt.Sprintf("status changed from %s to %s", oldStatus, newStatus)
	}
	appt.AppendNote(s.clk.Now(), line)
	appt.Status = newStatus
	if err := s.repo.Update(ctx, appt); err != nil {
		return apperr.Internal("update appointment", err)
	}
	return s.rec.Record(ctx, &audit.Event{
		Action:     "status_change",
		EntityType: audit.EntityAppointment,
		EntityID:   appt.ID,
		OldStatus:  &oldStatus,
		NewStatus:  &newStatus,
		ActorID:    audit.ActorFromContext(ctx),
	})
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, apperr.Internal("get appointment", err)
	}
	return appt, nil
}

// ListByClinicianDay returns the clinician's schedule for one calendar day.
func (s *Service) ListByClinicianDay(ctx context.Context, clinicianID uuid.UUID, dateStr string) ([]*Appointment, error) {
	day, err := s.parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByClinicianDay(ctx, clinicianID, day)
	if err != nil {
		return nil, apperr.Internal("list clinician day", err)
	}
	return items, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
