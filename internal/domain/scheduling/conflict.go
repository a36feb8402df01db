package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// ConflictResult reports which appointments a candidate interval overlaps.
type ConflictResult struct {
	HasConflict    bool        `json:"has_conflict"`
	ConflictingIDs []uuid.UUID `json:"conflicting_ids,omitempty"`
}

// FindConflicts checks the candidate interval [start, start+duration)
// against a snapshot of one clinician's day. Only appointments in an active
// status participate; excludeID skips the appointment being rescheduled.
// Intervals are half-open, so touching endpoints do not conflict. Pure over
// the snapshot, no side effects.
func FindConflicts(candidateStart time.Time, durationMins int, excludeID uuid.UUID, existing []*Appointment) ConflictResult {
	if durationMins <= 0 {
		durationMins = DefaultDurationMins
	}
	candidateEnd := candidateStart.Add(time.Duration(durationMins) * time.Minute)

	var ids []uuid.UUID
	for _, other := range existing {
		if excludeID != uuid.Nil && other.ID == excludeID {
			continue
		}
		if !IsActiveStatus(other.Status) {
			continue
		}
		if candidateStart.Before(other.EndAt()) && candidateEnd.After(other.StartAt) {
			ids = append(ids, other.ID)
		}
	}
	return ConflictResult{HasConflict: len(ids) > 0, ConflictingIDs: ids}
}
