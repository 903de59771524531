package season

import (
	"fmt"

	"bookaway/internal/models"
)

// transitions lists the statuses each status may move to. Self transitions
// are idempotent re-runs.
var transitions = map[models.SeasonStatus][]models.SeasonStatus{
	models.SeasonDraft:  {models.SeasonDraft, models.SeasonOpen, models.SeasonClosed, models.SeasonDeleted},
	models.SeasonOpen:   {models.SeasonOpen, models.SeasonClosed, models.SeasonDeleted},
	models.SeasonClosed: {models.SeasonClosed, models.SeasonDeleted},
}

// CanTransition reports whether a season in status from may move to to.
func CanTransition(from, to models.SeasonStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(s *models.Season, to models.SeasonStatus) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("season %d %s -> %s: %w", s.ID, s.Status, to, models.ErrInvalidTransition)
	}
	return nil
}
