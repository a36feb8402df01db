package frontdesk

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Check-in types.
const (
	TypeAppointment = "appointment"
	TypeWalkIn      = "walk-in"
)

// DefaultAvgConsultMins feeds the wait estimate when config leaves the
// average consult length unset.
const DefaultAvgConsultMins = 15

// Check-in statuses. attended, cancelled, and no-show are terminal; once a
// check-in reaches one of them its waiting time is frozen.
const (
	CheckInStatusWaiting   = "waiting"
	CheckInStatusCalled    = "called"
	CheckInStatusAttended  = "attended"
	CheckInStatusCancelled = "cancelled"
	CheckInStatusNoShow    = "no-show"
)

// Queue entry statuses. in-progress is optional; some visits go straight
// from called to completed.
const (
	QueueStatusWaiting    = "waiting"
	QueueStatusCalled     = "called"
	QueueStatusInProgress = "in-progress"
	QueueStatusCompleted  = "completed"
	QueueStatusCancelled  = "cancelled"
)

// Queue priorities.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

var validPriorities = map[string]bool{
	PriorityHigh:   true,
	PriorityNormal: true,
	PriorityLow:    true,
}

func IsValidPriority(p string) bool { return validPriorities[p] }

// queueTransitions encodes the queue state machine once: cancel is only
// reachable before the consult starts, and a started consult can only
// complete.
var queueTransitions = map[string]map[string]bool{
	QueueStatusWaiting:    {QueueStatusCalled: true, QueueStatusCancelled: true},
	QueueStatusCalled:     {QueueStatusInProgress: true, QueueStatusCompleted: true, QueueStatusCancelled: true},
	QueueStatusInProgress: {QueueStatusCompleted: true},
	QueueStatusCompleted:  {},
	QueueStatusCancelled:  {},
}

// CanQueueTransition reports whether the queue state machine permits
// from → to.
func CanQueueTransition(from, to string) bool {
	return queueTransitions[from][to]
}

func IsTerminalQueueStatus(s string) bool {
	return s == QueueStatusCompleted || s == QueueStatusCancelled
}

func IsTerminalCheckInStatus(s string) bool {
	return s == CheckInStatusAttended || s == CheckInStatusCancelled || s == CheckInStatusNoShow
}

var priorityRanks = map[string]int{
	PriorityHigh:   0,
	PriorityNormal: 1,
	PriorityLow:    2,
}

// rankOf treats an unknown priority as normal rather than dropping the
// entry to the back of the queue.
func rankOf(p string) int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return priorityRanks[PriorityNormal]
}

// Less is the waiting-order comparator: priority rank ascending, then
// sequence number ascending. A pure total order over any entry set.
func Less(a, b *QueueEntry) bool {
	ra, rb := rankOf(a.Priority), rankOf(b.Priority)
	if ra != rb {
		return ra < rb
	}
	return a.SequenceNumber < b.SequenceNumber
}

// SortWaiting orders entries in place by the waiting-order comparator.
// Stable, so sorting an already-sorted list is a no-op.
func SortWaiting(entries []*QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
}

// CheckIn maps to the patient_checkin table. SequenceNumber is the queue
// number handed to the patient, unique per calendar day.
type CheckIn struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	AppointmentID   *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Type            string     `db:"checkin_type" json:"type"`
	CheckinDay      time.Time  `db:"checkin_day" json:"checkin_day"`
	CheckinTime     time.Time  `db:"checkin_time" json:"checkin_time"`
	SequenceNumber  int        `db:"sequence_number" json:"sequence_number"`
	AssignedStaffID *uuid.UUID `db:"assigned_staff_id" json:"assigned_staff_id,omitempty"`
	WaitingTimeMins *int       `db:"waiting_time_mins" json:"waiting_time_mins,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	Status          string     `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// QueueEntry maps to the queue_entry table, exactly one per check-in.
// EstimatedWaitMins and WaitMins are computed on read, never stored.
type QueueEntry struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	CheckInID         uuid.UUID  `db:"checkin_id" json:"checkin_id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	AppointmentID     *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	CheckinDay        time.Time  `db:"checkin_day" json:"checkin_day"`
	SequenceNumber    int        `db:"sequence_number" json:"sequence_number"`
	Priority          string     `db:"priority" json:"priority"`
	Status            string     `db:"status" json:"status"`
	CheckinTime       time.Time  `db:"checkin_time" json:"checkin_time"`
	CalledTime        *time.Time `db:"called_time" json:"called_time,omitempty"`
	CompletedTime     *time.Time `db:"completed_time" json:"completed_time,omitempty"`
	AssignedStaffID   *uuid.UUID `db:"assigned_staff_id" json:"assigned_staff_id,omitempty"`
	Note              *string    `db:"note" json:"note,omitempty"`
	EstimatedWaitMins int        `db:"-" json:"estimated_wait_mins,omitempty"`
	WaitMins          *int       `db:"-" json:"wait_mins,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// QueueStatusHistory is one row of the queue entry's change trail.
type QueueStatusHistory struct {
	ID           uuid.UUID `db:"id" json:"id"`
	QueueEntryID uuid.UUID `db:"queue_entry_id" json:"queue_entry_id"`
	FromStatus   *string   `db:"from_status" json:"from_status,omitempty"`
	ToStatus     string    `db:"to_status" json:"to_status"`
	ChangedBy    string    `db:"changed_by" json:"changed_by"`
	ChangedAt    time.Time `db:"changed_at" json:"changed_at"`
	Note         *string   `db:"note" json:"note,omitempty"`
}
