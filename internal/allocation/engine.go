// Package allocation accepts booking requests against season weeks.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bookaway/internal/events"
	"bookaway/internal/ledger"
	"bookaway/internal/metrics"
	"bookaway/internal/models"
)

// Request is a user's bid for a week at one priority slot.
type Request struct {
	UserID      string
	WeekID      int64
	Priority    models.Priority
	PointsSpent int
}

// Validate checks the request fields that do not need the store.
func (r Request) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user id is required: %w", models.ErrInvalidArgument)
	}
	if r.WeekID <= 0 {
		return fmt.Errorf("week id is required: %w", models.ErrInvalidArgument)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("priority %q: %w", r.Priority, models.ErrInvalidArgument)
	}
	if r.PointsSpent < 0 {
		return fmt.Errorf("points spent must not be negative: %w", models.ErrInvalidArgument)
	}
	return nil
}

// Engine decides booking requests.
type Engine struct {
	store     ledger.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to stamp requests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records request outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine. A nil publisher discards events.
func NewEngine(store ledger.Store, publisher events.Publisher, logger *zerolog.Logger, opts ...Option) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	l := logger.With().Str("component", "allocation").Logger()
	e := &Engine{
		store:     store,
		publisher: publisher,
		logger:    &l,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestBooking places an APPLIED booking for the user on the week. Any
// booking the user already holds at the same priority in the season is
// cancelled in the same transaction.
func (e *Engine) RequestBooking(ctx context.Context, req Request) (*models.Booking, error) {
	started := time.Now()
	booking, superseded, err := e.requestBooking(ctx, req)
	e.metrics.ObserveBooking(models.ErrorKind(err), time.Since(started))

	if err != nil {
		ev := e.logger.Warn()
		if models.ErrorKind(err) == models.KindInternal {
			ev = e.logger.Error()
		}
		ev.Err(err).
			Str("user_id", req.UserID).
			Int64("week_id", req.WeekID).
			Str("priority", string(req.Priority)).
			Msg("booking request rejected")
		return nil, err
	}

	if superseded != nil {
		e.logger.Info().
			Int64("booking_id", superseded.ID).
			Int64("week_id", superseded.WeekID).
			Str("user_id", superseded.UserID).
			Str("priority", string(superseded.Priority)).
			Msg("booking superseded")
		e.publisher.Publish(events.Event{
			Type:      events.BookingSuperseded,
			SeasonID:  superseded.SeasonID,
			WeekID:    superseded.WeekID,
			BookingID: superseded.ID,
			UserID:    superseded.UserID,
		})
	}

	e.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("season_id", booking.SeasonID).
		Int64("week_id", booking.WeekID).
		Str("user_id", booking.UserID).
		Str("priority", string(booking.Priority)).
		Int("points_spent", booking.PointsSpent).
		Msg("booking requested")
	e.publisher.Publish(events.Event{
		Type:      events.BookingRequested,
		SeasonID:  booking.SeasonID,
		WeekID:    booking.WeekID,
		BookingID: booking.ID,
		UserID:    booking.UserID,
	})
	return booking, nil
}

func (e *Engine) requestBooking(ctx context.Context, req Request) (*models.Booking, *models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	var booking, superseded *models.Booking
	err := e.store.WithTx(ctx, func(l ledger.Ledger) error {
		week, err := l.GetWeek(ctx, req.WeekID)
		if err != nil {
			return err
		}

		season, err := l.GetSeason(ctx, week.SeasonID)
		if err != nil {
			return err
		}
		if !season.AcceptsBookings() {
			return fmt.Errorf("season %d is %s: %w", season.ID, season.Status, models.ErrSeasonNotOpen)
		}

		conflict, err := l.FindConflictingBooking(ctx, week.ID)
		if err != nil {
			return err
		}
		if conflict != nil && conflict.Status == models.BookingBooked && conflict.UserID != req.UserID {
			return fmt.Errorf("week %d: %w", week.ID, models.ErrAlreadyFinalized)
		}

		prev, err := l.FindActiveBooking(ctx, req.UserID, season.ID, req.Priority)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := l.RetireBooking(ctx, prev.ID); err != nil {
				return err
			}
			prev.Status = models.BookingCancelled
			superseded = prev
		}

		booking = &models.Booking{
			WeekID:      week.ID,
			SeasonID:    season.ID,
			UserID:      req.UserID,
			Priority:    req.Priority,
			PointsSpent: req.PointsSpent,
			Status:      models.BookingApplied,
			RequestedAt: e.now().UTC(),
		}
		return l.InsertBooking(ctx, booking)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("request booking for week %d: %w", req.WeekID, err)
	}
	return booking, superseded, nil
}
