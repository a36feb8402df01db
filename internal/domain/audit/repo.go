package audit

import (
	"context"

	"github.com/google/uuid"
)

// Recorder is the write side the scheduling and front-desk services emit
// through. Record joins the caller's transaction when one is in flight, so
// the event commits or rolls back together with the state change it
// describes.
type Recorder interface {
	Record(ctx context.Context, ev *Event) error
}

type EventRepository interface {
	Insert(ctx context.Context, ev *Event) error
	List(ctx context.Context, limit, offset int) ([]*Event, int, error)
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*Event, int, error)
}
