// Package frontdesk owns same-day patient flow: check-in admission, the
// waiting queue, and the synchronizer that keeps check-in and appointment
// status aligned with every queue transition.
package frontdesk

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/domain/audit"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
	"github.com/clinicdesk/clinicdesk/internal/platform/clock"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

var (
	ErrCheckInNotFound    = apperr.NotFound("CHECKIN_NOT_FOUND", "check-in not found")
	ErrQueueEntryNotFound = apperr.NotFound("QUEUE_ENTRY_NOT_FOUND", "queue entry not found")
	ErrPatientNotFound    = apperr.NotFound("PATIENT_NOT_FOUND", "patient not found")
	ErrStaffNotFound      = apperr.NotFound("STAFF_NOT_FOUND", "staff member not found")

	ErrPatientInactive     = apperr.Conflict("PATIENT_INACTIVE", "patient record is inactive")
	ErrDuplicateCheckIn    = apperr.Conflict("DUPLICATE_CHECKIN", "patient already has an open check-in for today")
	ErrNoWaitingPatients   = apperr.Conflict("NO_WAITING_PATIENTS", "no patients are waiting in the queue")
	ErrAppointmentMismatch = apperr.Conflict("APPOINTMENT_PATIENT_MISMATCH", "appointment belongs to a different patient")

	ErrNotCheckable           = apperr.IllegalTransition("APPOINTMENT_NOT_CHECKABLE", "appointment is not in a status that allows check-in")
	ErrInvalidQueueTransition = apperr.IllegalTransition("INVALID_QUEUE_TRANSITION", "this queue status change is not permitted")
)

// PatientDirectory is the slice of the directory service this package needs.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientIsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// StaffDirectory resolves the staff member a queue action is attributed to.
type StaffDirectory interface {
	StaffExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Appointments is the slice of the scheduling service the front desk
// consumes: read one appointment and drive its state machine. Transition
// joins the caller's transaction and no-ops when the appointment already
// holds the requested status.
type Appointments interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, newStatus, reason string) error
}

type Service struct {
	checkins       CheckInRepository
	queue          QueueRepository
	appts          Appointments
	patients       PatientDirectory
	staff          StaffDirectory
	rec            audit.Recorder
	tx             db.TxRunner
	clk            clock.Clock
	avgConsultMins int
}

func NewService(checkins CheckInRepository, queue QueueRepository, appts Appointments,
	patients PatientDirectory, staff StaffDirectory, rec audit.Recorder,
	tx db.TxRunner, clk clock.Clock, avgConsultMins int) *Service {
	if avgConsultMins <= 0 {
		avgConsultMins = DefaultAvgConsultMins
	}
	return &Service{
		checkins:       checkins,
		queue:          queue,
		appts:          appts,
		patients:       patients,
		staff:          staff,
		rec:            rec,
		tx:             tx,
		clk:            clk,
		avgConsultMins: avgConsultMins,
	}
}

func optStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type WalkInRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Priority  string    `json:"priority"`
	Notes     string    `json:"notes"`
}

type AppointmentCheckInRequest struct {
	PatientID     uuid.UUID `json:"patient_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Priority      string    `json:"priority"`
	Notes         string    `json:"notes"`
}

// AdmitResult pairs the check-in with its queue entry, the entry already
// carrying its position estimate.
type AdmitResult struct {
	CheckIn    *CheckIn    `json:"checkin"`
	QueueEntry *QueueEntry `json:"queue_entry"`
}

// AdmitWalkIn registers a walk-in patient: one check-in, one queue entry,
// the next sequence number of the day.
func (s *Service) AdmitWalkIn(ctx context.Context, req WalkInRequest) (*AdmitResult, error) {
	return s.admit(ctx, req.PatientID, nil, TypeWalkIn, req.Priority, req.Notes, "admit_walkin")
}

// AdmitForAppointment checks a patient in against a booked appointment and
// moves the appointment to checked-in in the same transaction.
func (s *Service) AdmitForAppointment(ctx context.Context, req AppointmentCheckInRequest) (*AdmitResult, error) {
	if req.AppointmentID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeValidation, "appointment_id is required")
	}
	appt, err := s.appts.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != req.PatientID {
		return nil, ErrAppointmentMismatch
	}
	if appt.Status != scheduling.StatusScheduled {
		return nil, ErrNotCheckable.WithMessagef("appointment is %s and cannot be checked in", appt.Status)
	}
	return s.admit(ctx, req.PatientID, &req.AppointmentID, TypeAppointment, req.Priority, req.Notes, "admit_appointment")
}

// AddWalkIn is walk-in admission surfaced on the queue API. Same path, same
// invariants; the queue entry and its paired check-in are created together.
func (s *Service) AddWalkIn(ctx context.Context, req WalkInRequest) (*AdmitResult, error) {
	return s.AdmitWalkIn(ctx, req)
}

func (s *Service) admit(ctx context.Context, patientID uuid.UUID, apptID *uuid.UUID,
	ciType, priority, notes, action string) (*AdmitResult, error) {
	if patientID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeValidation, "patient_id is required")
	}
	exists, err := s.patients.PatientExists(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal("check patient", err)
	}
	if !exists {
		return nil, ErrPatientNotFound
	}
	active, err := s.patients.PatientIsActive(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal("check patient", err)
	}
	if !active {
		return nil, ErrPatientInactive
	}

	if priority == "" {
		priority = PriorityNormal
		if ciType == TypeAppointment {
			priority = PriorityHigh
		}
	} else if !IsValidPriority(priority) {
		return nil, apperr.Validation(apperr.CodeValidation, "priority must be high, normal, or low")
	}

	now := s.clk.Now()
	window := clock.DayWindowOf(now)

	var res *AdmitResult
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		// Same-day admissions are serialized on the day lock, so the
		// sequence read below cannot race another check-in.
		if err := s.checkins.LockDay(ctx, window.Day); err != nil {
			return apperr.Internal("lock check-in day", err)
		}
		open, err := s.checkins.HasNonTerminal(ctx, patientID, window.Day)
		if err != nil {
			return apperr.Internal("check open check-ins", err)
		}
		if open {
			return ErrDuplicateCheckIn
		}
		seq, err := s.checkins.NextSequence(ctx, window.Day)
		if err != nil {
			return apperr.Internal("next check-in sequence", err)
		}

		ci := &CheckIn{
			PatientID:      patientID,
			AppointmentID:  apptID,
			Type:           ciType,
			CheckinDay:     window.Day,
			CheckinTime:    now,
			SequenceNumber: seq,
			Notes:          optStr(notes),
			Status:         CheckInStatusWaiting,
		}
		if err := s.checkins.Create(ctx, ci); err != nil {
			if db.IsUniqueViolation(err, "uq_checkin_day_seq") {
				return apperr.Transient(db.CodeTxContention, "check-in number was claimed concurrently, please retry").Wrap(err)
			}
			return apperr.Internal("create check-in", err)
		}

		qe := &QueueEntry{
			CheckInID:      ci.ID,
			PatientID:      patientID,
			AppointmentID:  apptID,
			CheckinDay:     window.Day,
			SequenceNumber: seq,
			Priority:       priority,
			Status:         QueueStatusWaiting,
			CheckinTime:    now,
		}
		if err := s.queue.Create(ctx, qe); err != nil {
			return apperr.Internal("create queue entry", err)
		}
		if err := s.appendHistory(ctx, qe, "", now, nil); err != nil {
			return err
		}

		if apptID != nil {
			if err := s.appts.Transition(ctx, *apptID, scheduling.StatusCheckedIn, ""); err != nil {
				return err
			}
		}

		entries, err := s.queue.ListWaiting(ctx, window.Day)
		if err != nil {
			return apperr.Internal("list waiting queue", err)
		}
		s.annotateWaiting(entries)
		for _, e := range entries {
			if e.ID == qe.ID {
				qe.EstimatedWaitMins = e.EstimatedWaitMins
				break
			}
		}

		res = &AdmitResult{CheckIn: ci, QueueEntry: qe}
		newStatus := ci.Status
		return s.rec.Record(ctx, &audit.Event{
			Action:     action,
			EntityType: audit.EntityCheckIn,
			EntityID:   ci.ID,
			NewStatus:  &newStatus,
			ActorID:    audit.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListWaiting returns today's waiting queue in call order, each entry
// annotated with its position estimate.
func (s *Service) ListWaiting(ctx context.Context) ([]*QueueEntry, error) {
	window := clock.DayWindowOf(s.clk.Now())
	entries, err := s.queue.ListWaiting(ctx, window.Day)
	if err != nil {
		return nil, apperr.Internal("list waiting queue", err)
	}
	s.annotateWaiting(entries)
	return entries, nil
}

// annotateWaiting sorts entries into call order and fills the estimate:
// the patient at position p waits about p * average consult minutes,
// positions counted from 1.
func (s *Service) annotateWaiting(entries []*QueueEntry) {
	SortWaiting(entries)
	for i, e := range entries {
		e.EstimatedWaitMins = (i + 1) * s.avgConsultMins
	}
}

// Board returns all of today's queue entries in sequence order. Waiting
// entries carry the position estimate; called and terminal entries carry
// the wait they actually served, from their own timestamps.
func (s *Service) Board(ctx context.Context) ([]*QueueEntry, error) {
	window := clock.DayWindowOf(s.clk.Now())
	entries, err := s.queue.ListByDay(ctx, window.Day)
	if err != nil {
		return nil, apperr.Internal("list queue board", err)
	}

	var waiting []*QueueEntry
	for _, e := range entries {
		if e.Status == QueueStatusWaiting {
			waiting = append(waiting, e)
		}
	}
	s.annotateWaiting(waiting)

	for _, e := range entries {
		if e.Status == QueueStatusWaiting {
			continue
		}
		var served time.Time
		switch {
		case e.CalledTime != nil:
			served = *e.CalledTime
		case e.CompletedTime != nil:
			served = *e.CompletedTime
		default:
			continue
		}
		mins := int(served.Sub(e.CheckinTime).Minutes())
		e.WaitMins = &mins
	}
	return entries, nil
}

type CallNextRequest struct {
	StaffID uuid.UUID `json:"staff_id"`
}

// CallNext claims the head of today's waiting queue for a staff member.
// The claim is a single atomic row pick; concurrent calls each get a
// distinct patient or NO_WAITING_PATIENTS.
func (s *Service) CallNext(ctx context.Context, req CallNextRequest) (*QueueEntry, error) {
	if err := s.requireStaff(ctx, req.StaffID); err != nil {
		return nil, err
	}
	now := s.clk.Now()
	window := clock.DayWindowOf(now)

	var claimed *QueueEntry
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		qe, err := s.queue.ClaimNextWaiting(ctx, window.Day, req.StaffID, now)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrNoWaitingPatients
			}
			return apperr.Internal("claim next waiting entry", err)
		}
		if err := s.appendHistory(ctx, qe, QueueStatusWaiting, now, nil); err != nil {
			return err
		}
		if err := s.syncFromQueue(ctx, qe, false); err != nil {
			return err
		}
		claimed = qe
		old, status := QueueStatusWaiting, qe.Status
		return s.rec.Record(ctx, &audit.Event{
			Action:     "call_next",
			EntityType: audit.EntityQueueEntry,
			EntityID:   qe.ID,
			OldStatus:  &old,
			NewStatus:  &status,
			ActorID:    audit.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// StartQueueEntry marks the consultation as begun for a called patient.
func (s *Service) StartQueueEntry(ctx context.Context, entryID, staffID uuid.UUID) (*QueueEntry, error) {
	if err := s.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}
	return s.transitionEntry(ctx, entryID, QueueStatusInProgress, "start", false, func(qe *QueueEntry) {
		qe.AssignedStaffID = &staffID
	})
}

// CompleteQueueEntry finishes the visit: queue entry completed, check-in
// attended with its waiting time frozen, linked appointment completed.
func (s *Service) CompleteQueueEntry(ctx context.Context, entryID, staffID uuid.UUID) (*QueueEntry, error) {
	if err := s.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}
	now := s.clk.Now()
	return s.transitionEntry(ctx, entryID, QueueStatusCompleted, "complete", false, func(qe *QueueEntry) {
		qe.CompletedTime = &now
		qe.AssignedStaffID = &staffID
	})
}

type CancelRequest struct {
	Reason string `json:"reason"`
	NoShow bool   `json:"no_show"`
}

// CancelQueueEntry removes a patient from the queue before their consult
// starts. NoShow chooses which terminal status the check-in and any linked
// appointment receive.
func (s *Service) CancelQueueEntry(ctx context.Context, entryID uuid.UUID, req CancelRequest) (*QueueEntry, error) {
	now := s.clk.Now()
	note := optStr(req.Reason)
	return s.transitionEntry(ctx, entryID, QueueStatusCancelled, "cancel", req.NoShow, func(qe *QueueEntry) {
		qe.CompletedTime = &now
		if note != nil {
			qe.Note = note
		}
	})
}

func (s *Service) requireStaff(ctx context.Context, staffID uuid.UUID) error {
	if staffID == uuid.Nil {
		return apperr.Validation(apperr.CodeValidation, "staff_id is required")
	}
	exists, err := s.staff.StaffExists(ctx, staffID)
	if err != nil {
		return apperr.Internal("check staff", err)
	}
	if !exists {
		return ErrStaffNotFound
	}
	return nil
}

// transitionEntry moves one queue entry through the state machine and runs
// the synchronizer, all inside a single transaction.
func (s *Service) transitionEntry(ctx context.Context, entryID uuid.UUID, to, action string,
	noShow bool, mutate func(*QueueEntry)) (*QueueEntry, error) {
	now := s.clk.Now()
	var updated *QueueEntry
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		qe, err := s.queue.GetByID(ctx, entryID)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrQueueEntryNotFound
			}
			return apperr.Internal("load queue entry", err)
		}
		if !CanQueueTransition(qe.Status, to) {
			return ErrInvalidQueueTransition.WithMessagef("cannot move queue entry from %s to %s", qe.Status, to)
		}

		from := qe.Status
		qe.Status = to
		mutate(qe)
		if err := s.queue.Update(ctx, qe); err != nil {
			return apperr.Internal("update queue entry", err)
		}
		if err := s.appendHistory(ctx, qe, from, now, qe.Note); err != nil {
			return err
		}
		if err := s.syncFromQueue(ctx, qe, noShow); err != nil {
			return err
		}

		updated = qe
		return s.rec.Record(ctx, &audit.Event{
			Action:     action,
			EntityType: audit.EntityQueueEntry,
			EntityID:   qe.ID,
			OldStatus:  &from,
			NewStatus:  &to,
			ActorID:    audit.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) appendHistory(ctx context.Context, qe *QueueEntry, from string, at time.Time, note *string) error {
	h := &QueueStatusHistory{
		QueueEntryID: qe.ID,
		ToStatus:     qe.Status,
		ChangedBy:    audit.ActorFromContext(ctx),
		ChangedAt:    at,
		Note:         note,
	}
	if from != "" {
		h.FromStatus = &from
	}
	if err := s.queue.AddHistory(ctx, h); err != nil {
		return apperr.Internal("record queue history", err)
	}
	return nil
}

// mappedStatuses is the synchronization table: queue state to (check-in
// state, appointment state).
func mappedStatuses(queueStatus string, noShow bool) (string, string) {
	switch queueStatus {
	case QueueStatusWaiting:
		return CheckInStatusWaiting, scheduling.StatusCheckedIn
	case QueueStatusCalled:
		return CheckInStatusCalled, scheduling.StatusCheckedIn
	case QueueStatusInProgress:
		// The patient is still "called" from the check-in desk's view.
		return CheckInStatusCalled, scheduling.StatusInProgress
	case QueueStatusCompleted:
		return CheckInStatusAttended, scheduling.StatusCompleted
	case QueueStatusCancelled:
		if noShow {
			return CheckInStatusNoShow, scheduling.StatusNoShow
		}
		return CheckInStatusCancelled, scheduling.StatusCancelled
	}
	return queueStatus, ""
}

// syncFromQueue propagates a queue entry's status to its check-in and, when
// one is linked, the appointment. Runs on the caller's transaction, so a
// rejection anywhere rolls back the queue change too. A terminal check-in
// freezes its waiting time once; later syncs never overwrite it.
func (s *Service) syncFromQueue(ctx context.Context, qe *QueueEntry, noShow bool) error {
	ci, err := s.checkins.GetByID(ctx, qe.CheckInID)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrCheckInNotFound.WithMessagef("queue entry %s has no check-in", qe.ID)
		}
		return apperr.Internal("load check-in for sync", err)
	}

	ciStatus, apptStatus := mappedStatuses(qe.Status, noShow)

	dirty := false
	if ci.Status != ciStatus {
		ci.Status = ciStatus
		dirty = true
	}
	if qe.AssignedStaffID != nil && (ci.AssignedStaffID == nil || *ci.AssignedStaffID != *qe.AssignedStaffID) {
		ci.AssignedStaffID = qe.AssignedStaffID
		dirty = true
	}
	if IsTerminalCheckInStatus(ciStatus) && ci.WaitingTimeMins == nil {
		terminal := s.clk.Now()
		if qe.CompletedTime != nil {
			terminal = *qe.CompletedTime
		}
		mins := int(terminal.Sub(ci.CheckinTime).Minutes())
		ci.WaitingTimeMins = &mins
		dirty = true
	}
	if dirty {
		if err := s.checkins.Update(ctx, ci); err != nil {
			return apperr.Internal("sync check-in", err)
		}
	}

	if qe.AppointmentID != nil {
		reason := ""
		if qe.Note != nil && (apptStatus == scheduling.StatusCancelled || apptStatus == scheduling.StatusNoShow) {
			reason = *qe.Note
		}
		if err := s.appts.Transition(ctx, *qe.AppointmentID, apptStatus, reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetCheckIn(ctx context.Context, id uuid.UUID) (*CheckIn, error) {
	ci, err := s.checkins.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCheckInNotFound
		}
		return nil, apperr.Internal("get check-in", err)
	}
	return ci, nil
}

// GetQueueEntry returns one entry, with the position estimate when it is
// still waiting.
func (s *Service) GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	qe, err := s.queue.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, apperr.Internal("get queue entry", err)
	}
	if qe.Status == QueueStatusWaiting {
		entries, err := s.queue.ListWaiting(ctx, qe.CheckinDay)
		if err != nil {
			return nil, apperr.Internal("list waiting queue", err)
		}
		s.annotateWaiting(entries)
		for _, e := range entries {
			if e.ID == qe.ID {
				qe.EstimatedWaitMins = e.EstimatedWaitMins
				break
			}
		}
	}
	return qe, nil
}

// ListCheckIns lists check-ins for a calendar day, today when dateStr is
// empty.
func (s *Service) ListCheckIns(ctx context.Context, dateStr string, limit, offset int) ([]*CheckIn, int, error) {
	day := clock.DayWindowOf(s.clk.Now()).Day
	if dateStr != "" {
		loc := s.clk.Now().Location()
		d, err := time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			return nil, 0, apperr.Validation(apperr.CodeValidation, "date must be YYYY-MM-DD")
		}
		day = d
	}
	items, total, err := s.checkins.ListByDay(ctx, day, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal("list check-ins", err)
	}
	return items, total, nil
}

// QueueHistory returns the status trail of one queue entry, oldest first.
func (s *Service) QueueHistory(ctx context.Context, entryID uuid.UUID) ([]*QueueStatusHistory, error) {
	if _, err := s.queue.GetByID(ctx, entryID); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, apperr.Internal("load queue entry", err)
	}
	items, err := s.queue.ListHistory(ctx, entryID)
	if err != nil {
		return nil, apperr.Internal("list queue history", err)
	}
	return items, nil
}
