package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

// Event is one state-changing operation as seen by the audit trail. Events
// are append-only; nothing updates or deletes them.
type Event struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID `db:"entity_id" json:"entity_id"`
	OldStatus  *string   `db:"old_status" json:"old_status,omitempty"`
	NewStatus  *string   `db:"new_status" json:"new_status,omitempty"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// Entity types carried on events.
const (
	EntityAppointment = "appointment"
	EntityCheckIn     = "checkin"
	EntityQueueEntry  = "queue_entry"
	EntityPatient     = "patient"
)

// ActorFromContext resolves the acting user for an event. Operations that
// run outside an authenticated request are attributed to "system".
func ActorFromContext(ctx context.Context) string {
	if id := auth.UserIDFromContext(ctx); id != "" {
		return id
	}
	return "system"
}
