// Package season drives the season lifecycle: creation with its weeks,
// opening, closing with finalization, and deletion.
package season

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bookaway/internal/calendar"
	"bookaway/internal/events"
	"bookaway/internal/ledger"
	"bookaway/internal/models"
)

// WeekCache stores the viewer independent week listing of a season.
// Get also returns the generation of the season's entry; Set only stores a
// listing when the generation has not moved since, so a listing read before
// an invalidation is never cached after it.
type WeekCache interface {
	Get(ctx context.Context, seasonID int64) (weeks []models.WeekWithBookings, generation int64, ok bool)
	Set(ctx context.Context, seasonID, generation int64, weeks []models.WeekWithBookings)
}

// CreateSeason holds the fields of a new season.
type CreateSeason struct {
	Name      string
	From      time.Time
	To        time.Time
	Cost      int
	CreatedBy string
}

// Controller provides season lifecycle operations.
type Controller struct {
	store     ledger.Store
	cache     WeekCache
	publisher events.Publisher
	logger    *zerolog.Logger
}

// NewController creates a controller. cache and publisher may be nil.
func NewController(store ledger.Store, cache WeekCache, publisher events.Publisher, logger *zerolog.Logger) *Controller {
	if publisher == nil {
		publisher = events.Nop{}
	}
	l := logger.With().Str("component", "season").Logger()
	return &Controller{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    &l,
	}
}

// Create stores a DRAFT season together with its weeks.
func (c *Controller) Create(ctx context.Context, in CreateSeason) (*models.Season, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("season name is required: %w", models.ErrInvalidArgument)
	}
	if in.Cost < 0 {
		return nil, fmt.Errorf("season cost must not be negative: %w", models.ErrInvalidArgument)
	}

	weeks, err := calendar.Partition(0, in.From, in.To)
	if err != nil {
		return nil, err
	}

	s := &models.Season{
		Name:      name,
		From:      models.DateOf(in.From),
		To:        models.DateOf(in.To),
		Status:    models.SeasonDraft,
		Cost:      in.Cost,
		CreatedBy: in.CreatedBy,
	}
	err = c.store.WithTx(ctx, func(l ledger.Ledger) error {
		if err := l.InsertSeason(ctx, s); err != nil {
			return err
		}
		for i := range weeks {
			weeks[i].SeasonID = s.ID
		}
		return l.InsertWeeks(ctx, weeks)
	})
	if err != nil {
		return nil, fmt.Errorf("create season: %w", err)
	}

	c.logger.Info().
		Int64("season_id", s.ID).
		Str("name", s.Name).
		Time("from", s.From).
		Time("to", s.To).
		Int("weeks", len(weeks)).
		Str("created_by", s.CreatedBy).
		Msg("season created")
	c.publisher.Publish(events.Event{Type: events.SeasonCreated, SeasonID: s.ID, UserID: s.CreatedBy})
	return s, nil
}

// Open moves a DRAFT season to OPEN. Opening an OPEN season does nothing.
func (c *Controller) Open(ctx context.Context, id int64) error {
	changed := false
	err := c.store.WithTx(ctx, func(l ledger.Ledger) error {
		s, err := liveSeason(ctx, l, id)
		if err != nil {
			return err
		}
		if err := checkTransition(s, models.SeasonOpen); err != nil {
			return err
		}
		if s.Status == models.SeasonOpen {
			return nil
		}
		changed = true
		return l.SetSeasonStatus(ctx, id, models.SeasonOpen)
	})
	if err != nil {
		return fmt.Errorf("open season %d: %w", id, err)
	}

	if changed {
		c.logger.Info().Int64("season_id", id).Msg("season opened")
		c.publisher.Publish(events.Event{Type: events.SeasonOpened, SeasonID: id})
	}
	return nil
}

// Close moves a DRAFT or OPEN season to CLOSED and finalizes every APPLIED
// booking of its weeks in the same transaction. Closing a CLOSED season
// re-runs the finalize, which only touches bookings still APPLIED, and does
// not publish SeasonClosed again.
func (c *Controller) Close(ctx context.Context, id int64) (ledger.FinalizeResult, error) {
	var result ledger.FinalizeResult
	changed := false
	err := c.store.WithTx(ctx, func(l ledger.Ledger) error {
		s, err := liveSeason(ctx, l, id)
		if err != nil {
			return err
		}
		if err := checkTransition(s, models.SeasonClosed); err != nil {
			return err
		}
		if s.Status != models.SeasonClosed {
			changed = true
			if err := l.SetSeasonStatus(ctx, id, models.SeasonClosed); err != nil {
				return err
			}
		}

		weeks, err := l.ListWeeks(ctx, id)
		if err != nil {
			return err
		}
		ids := make([]int64, len(weeks))
		for i, w := range weeks {
			ids[i] = w.ID
		}
		result, err = l.BulkFinalize(ctx, ids)
		return err
	})
	if err != nil {
		return ledger.FinalizeResult{}, fmt.Errorf("close season %d: %w", id, err)
	}
	resolved := len(result.Awarded) + len(result.Cancelled)
	if !changed {
		if resolved > 0 {
			c.logger.Info().Int64("season_id", id).Int("resolved", resolved).Msg("closed season finalized again")
			c.publisher.Publish(events.Event{Type: events.WeekUpdated, SeasonID: id})
		}
		return result, nil
	}

	c.logger.Info().
		Int64("season_id", id).
		Int("weeks", result.Weeks).
		Int("awarded", len(result.Awarded)).
		Int("cancelled", len(result.Cancelled)).
		Msg("season closed")
	c.publisher.Publish(events.Event{
		Type:      events.SeasonClosed,
		SeasonID:  id,
		Awarded:   result.Awarded,
		Cancelled: result.Cancelled,
	})
	return result, nil
}

// Delete marks the season DELETED and removes all of its weeks and bookings.
func (c *Controller) Delete(ctx context.Context, id int64) (ledger.PurgeResult, error) {
	var result ledger.PurgeResult
	err := c.store.WithTx(ctx, func(l ledger.Ledger) error {
		s, err := liveSeason(ctx, l, id)
		if err != nil {
			return err
		}
		if err := checkTransition(s, models.SeasonDeleted); err != nil {
			return err
		}
		if err := l.SetSeasonStatus(ctx, id, models.SeasonDeleted); err != nil {
			return err
		}
		result, err = l.PurgeSeason(ctx, id)
		return err
	})
	if err != nil {
		return ledger.PurgeResult{}, fmt.Errorf("delete season %d: %w", id, err)
	}

	c.logger.Info().
		Int64("season_id", id).
		Int64("weeks", result.Weeks).
		Int64("bookings", result.Bookings).
		Msg("season deleted")
	c.publisher.Publish(events.Event{Type: events.SeasonDeleted, SeasonID: id})
	return result, nil
}

// ChangeSeasonStatus moves the season to status using the matching
// lifecycle operation. DRAFT is only accepted for a season that is already
// DRAFT.
func (c *Controller) ChangeSeasonStatus(ctx context.Context, id int64, status models.SeasonStatus) error {
	switch status {
	case models.SeasonOpen:
		return c.Open(ctx, id)
	case models.SeasonClosed:
		_, err := c.Close(ctx, id)
		return err
	case models.SeasonDeleted:
		_, err := c.Delete(ctx, id)
		return err
	case models.SeasonDraft:
		var s *models.Season
		err := c.store.View(ctx, func(l ledger.Ledger) error {
			var err error
			s, err = liveSeason(ctx, l, id)
			return err
		})
		if err != nil {
			return fmt.Errorf("change season %d status: %w", id, err)
		}
		if s.Status != models.SeasonDraft {
			return checkTransition(s, models.SeasonDraft)
		}
		return nil
	}
	return fmt.Errorf("season status %q: %w", status, models.ErrInvalidArgument)
}

// GetSeason returns a season that has not been deleted.
func (c *Controller) GetSeason(ctx context.Context, id int64) (*models.Season, error) {
	var s *models.Season
	err := c.store.View(ctx, func(l ledger.Ledger) error {
		var err error
		s, err = liveSeason(ctx, l, id)
		return err
	})
	return s, err
}

// GetSeasonStatus returns the status of a season. Deleted seasons report
// DELETED.
func (c *Controller) GetSeasonStatus(ctx context.Context, id int64) (models.SeasonStatus, error) {
	var status models.SeasonStatus
	err := c.store.View(ctx, func(l ledger.Ledger) error {
		s, err := l.GetSeason(ctx, id)
		if err != nil {
			return err
		}
		status = s.Status
		return nil
	})
	return status, err
}

// ListSeasons returns seasons in the given statuses. Without statuses every
// season that is not deleted is returned.
func (c *Controller) ListSeasons(ctx context.Context, statuses ...models.SeasonStatus) ([]models.Season, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("season status %q: %w", st, models.ErrInvalidArgument)
		}
	}
	if len(statuses) == 0 {
		statuses = []models.SeasonStatus{models.SeasonDraft, models.SeasonOpen, models.SeasonClosed}
	}

	var seasons []models.Season
	err := c.store.View(ctx, func(l ledger.Ledger) error {
		var err error
		seasons, err = l.ListSeasons(ctx, statuses...)
		return err
	})
	return seasons, err
}

// ListWeeks returns the weeks of a season with every booking placed on them.
// BookedByUser is set on the bookings that belong to viewer.
func (c *Controller) ListWeeks(ctx context.Context, seasonID int64, viewer string) ([]models.WeekWithBookings, error) {
	if _, err := c.GetSeason(ctx, seasonID); err != nil {
		return nil, err
	}

	var generation int64
	if c.cache != nil {
		weeks, gen, ok := c.cache.Get(ctx, seasonID)
		if ok {
			return annotate(weeks, viewer), nil
		}
		generation = gen
	}

	var result []models.WeekWithBookings
	err := c.store.View(ctx, func(l ledger.Ledger) error {
		weeks, err := l.ListWeeks(ctx, seasonID)
		if err != nil {
			return err
		}
		ids := make([]int64, len(weeks))
		for i, w := range weeks {
			ids[i] = w.ID
		}
		bookings, err := l.ListBookingsForWeeks(ctx, ids)
		if err != nil {
			return err
		}

		byWeek := make(map[int64][]models.BookingView, len(weeks))
		for i := range bookings {
			byWeek[bookings[i].WeekID] = append(byWeek[bookings[i].WeekID], bookings[i].View(""))
		}
		result = make([]models.WeekWithBookings, len(weeks))
		for i, w := range weeks {
			views := byWeek[w.ID]
			if views == nil {
				views = []models.BookingView{}
			}
			result[i] = models.WeekWithBookings{Week: w, Bookings: views}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list weeks of season %d: %w", seasonID, err)
	}

	if c.cache != nil {
		c.cache.Set(ctx, seasonID, generation, result)
	}
	return annotate(result, viewer), nil
}

// annotate returns a copy of weeks with BookedByUser set for viewer.
func annotate(weeks []models.WeekWithBookings, viewer string) []models.WeekWithBookings {
	out := make([]models.WeekWithBookings, len(weeks))
	for i, w := range weeks {
		views := make([]models.BookingView, len(w.Bookings))
		for j, b := range w.Bookings {
			b.BookedByUser = viewer != "" && b.UserID == viewer
			views[j] = b
		}
		out[i] = models.WeekWithBookings{Week: w.Week, Bookings: views}
	}
	return out
}

// SetWeekBookability changes how much of a week can be booked. Days are only
// kept for PARTIALLY_BOOKABLE weeks and must fall inside the week.
func (c *Controller) SetWeekBookability(ctx context.Context, weekID int64, b models.Bookability, days []time.Time) (*models.Week, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("bookability %q: %w", b, models.ErrInvalidArgument)
	}

	var week *models.Week
	err := c.store.WithTx(ctx, func(l ledger.Ledger) error {
		var err error
		if week, err = l.GetWeek(ctx, weekID); err != nil {
			return err
		}

		normalized := []time.Time{}
		if b == models.PartiallyBookable {
			if normalized, err = calendar.NormalizeNotBookableDays(*week, days); err != nil {
				return err
			}
		}
		if err := l.UpdateWeekBookability(ctx, weekID, b, normalized); err != nil {
			return err
		}
		week.Bookability = b
		week.NotBookableDays = normalized
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set bookability of week %d: %w", weekID, err)
	}

	c.logger.Info().
		Int64("week_id", weekID).
		Int64("season_id", week.SeasonID).
		Str("bookability", string(b)).
		Int("not_bookable_days", len(week.NotBookableDays)).
		Msg("week bookability changed")
	c.publisher.Publish(events.Event{Type: events.WeekUpdated, SeasonID: week.SeasonID, WeekID: weekID})
	return week, nil
}

// UsedPoints totals the points the user spent on weeks they won.
func (c *Controller) UsedPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := c.store.View(ctx, func(l ledger.Ledger) error {
		var err error
		total, err = l.SumBookedPoints(ctx, userID)
		return err
	})
	return total, err
}

// NextBookedWeek returns the user's earliest won week that has not ended
// before now, or nil.
func (c *Controller) NextBookedWeek(ctx context.Context, userID string, now time.Time) (*models.BookedWeek, error) {
	var next *models.BookedWeek
	err := c.store.View(ctx, func(l ledger.Ledger) error {
		var err error
		next, err = l.NextBookedWeek(ctx, userID, now)
		return err
	})
	return next, err
}

// ListUserBookings returns the user's bookings, limited to one season when
// seasonID is non-zero.
func (c *Controller) ListUserBookings(ctx context.Context, userID string, seasonID int64) ([]models.Booking, error) {
	var bookings []models.Booking
	err := c.store.View(ctx, func(l ledger.Ledger) error {
		var err error
		bookings, err = l.ListUserBookings(ctx, userID, seasonID)
		return err
	})
	return bookings, err
}

// liveSeason loads a season and hides deleted ones.
func liveSeason(ctx context.Context, l ledger.Ledger, id int64) (*models.Season, error) {
	s, err := l.GetSeason(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status == models.SeasonDeleted {
		return nil, fmt.Errorf("season %d is deleted: %w", id, models.ErrNotFound)
	}
	return s, nil
}
