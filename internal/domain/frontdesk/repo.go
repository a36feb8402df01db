package frontdesk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckInRepository is the persistence boundary for patient check-ins.
type CheckInRepository interface {
	Create(ctx context.Context, ci *CheckIn) error
	GetByID(ctx context.Context, id uuid.UUID) (*CheckIn, error)
	Update(ctx context.Context, ci *CheckIn) error
	ListByDay(ctx context.Context, day time.Time, limit, offset int) ([]*CheckIn, int, error)
	// HasNonTerminal reports whether the patient already holds a check-in
	// for the day that has not reached attended, cancelled, or no-show.
	HasNonTerminal(ctx context.Context, patientID uuid.UUID, day time.Time) (bool, error)
	// NextSequence returns one past the highest sequence number issued for
	// the day, starting at 1. Only meaningful under LockDay.
	NextSequence(ctx context.Context, day time.Time) (int, error)
	// LockDay serializes admissions for the day. Must be called inside a
	// transaction; the lock releases on commit or rollback.
	LockDay(ctx context.Context, day time.Time) error
}

// QueueRepository is the persistence boundary for queue entries and their
// status history.
type QueueRepository interface {
	Create(ctx context.Context, qe *QueueEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	GetByCheckIn(ctx context.Context, checkinID uuid.UUID) (*QueueEntry, error)
	Update(ctx context.Context, qe *QueueEntry) error
	ListWaiting(ctx context.Context, day time.Time) ([]*QueueEntry, error)
	ListByDay(ctx context.Context, day time.Time) ([]*QueueEntry, error)
	// ClaimNextWaiting atomically picks the head of the waiting order for
	// the day and moves it to called, stamping called_time and the staff
	// member. Concurrent callers skip rows another transaction holds, so
	// two stations never claim the same patient. Returns pgx.ErrNoRows
	// when nobody is waiting.
	ClaimNextWaiting(ctx context.Context, day time.Time, staffID uuid.UUID, calledAt time.Time) (*QueueEntry, error)
	AddHistory(ctx context.Context, h *QueueStatusHistory) error
	ListHistory(ctx context.Context, queueEntryID uuid.UUID) ([]*QueueStatusHistory, error)
}
