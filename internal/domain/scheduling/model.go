package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. scheduled, checked-in, and in-progress count as
// active; completed, cancelled, and no-show are terminal.
const (
	StatusScheduled  = "scheduled"
	StatusCheckedIn  = "checked-in"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no-show"
)

// Appointment priorities.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// DefaultDurationMins applies when an appointment carries no duration.
const DefaultDurationMins = 30

var validStatuses = map[string]bool{
	StatusScheduled:  true,
	StatusCheckedIn:  true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
	StatusNoShow:     true,
}

var validPriorities = map[string]bool{
	PriorityHigh:   true,
	PriorityNormal: true,
	PriorityLow:    true,
}

// transitions encodes the whole state machine in one place. Forward moves
// may skip steps (a scheduled appointment can complete without a recorded
// check-in); any active status may move to cancelled or no-show. completed
// may only move to cancelled, and the service demands a reason for that one
// move.
var transitions = map[string]map[string]bool{
	StatusScheduled:  {StatusCheckedIn: true, StatusInProgress: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
	StatusCheckedIn:  {StatusInProgress: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
	StatusInProgress: {StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
	StatusCompleted:  {StatusCancelled: true},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

func IsValidStatus(s string) bool { return validStatuses[s] }

func IsValidPriority(p string) bool { return validPriorities[p] }

func IsActiveStatus(s string) bool {
	return s == StatusScheduled || s == StatusCheckedIn || s == StatusInProgress
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Appointment maps to the appointment table. Date is the calendar day the
// clinic books against; StartAt is the concrete instant in the clinic's
// time zone.
type Appointment struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ClinicianID  uuid.UUID  `db:"clinician_id" json:"clinician_id"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Date         time.Time  `db:"appt_date" json:"date"`
	StartAt      time.Time  `db:"start_at" json:"start_at"`
	DurationMins int        `db:"duration_mins" json:"duration_mins"`
	Priority     string     `db:"priority" json:"priority"`
	Reason       string     `db:"reason" json:"reason"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// EndAt is the exclusive end of the appointment's interval.
func (a *Appointment) EndAt() time.Time {
	d := a.DurationMins
	if d <= 0 {
		d = DefaultDurationMins
	}
	return a.StartAt.Add(time.Duration(d) * time.Minute)
}

// AppendNote adds one timestamped line to the notes trail.
func (a *Appointment) AppendNote(at time.Time, line string) {
	entry := at.Format("2006-01-02 15:04") + ": " + line
	if a.Notes == nil || *a.Notes == "" {
		a.Notes = &entry
		return
	}
	joined := *a.Notes + "\n" + entry
	a.Notes = &joined
}
