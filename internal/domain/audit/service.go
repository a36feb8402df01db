// Package audit persists one event per state-changing operation. The write
// side rides the caller's transaction; the read side backs the admin trail
// endpoint.
package audit

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
	"github.com/clinicdesk/clinicdesk/internal/platform/clock"
)

type Service struct {
	repo EventRepository
	clk  clock.Clock
	log  zerolog.Logger
}

func NewService(repo EventRepository, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{repo: repo, clk: clk, log: log}
}

// Record persists ev and mirrors it to the structured log. The log line is
// best-effort context for operators; the row is the source of truth.
func (s *Service) Record(ctx context.Context, ev *Event) error {
	if strings.TrimSpace(ev.Action) == "" || strings.TrimSpace(ev.EntityType) == "" {
		return apperr.Validation(apperr.CodeValidation, "audit event requires action and entity_type")
	}
	ev.RecordedAt = s.clk.Now()
	if err := s.repo.Insert(ctx, ev); err != nil {
		return apperr.Internal("record audit event", err)
	}

	line := s.log.Info().
		Str("action", ev.Action).
		Str("entity_type", ev.EntityType).
		Str("entity_id", ev.EntityID.String()).
		Str("actor_id", ev.ActorID)
	if ev.OldStatus != nil {
		line = line.Str("old_status", *ev.OldStatus)
	}
	if ev.NewStatus != nil {
		line = line.Str("new_status", *ev.NewStatus)
	}
	line.Msg("audit event")
	return nil
}

func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]*Event, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListEventsByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*Event, int, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID, limit, offset)
}
