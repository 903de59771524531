// Package ledger defines the transactional store contract shared by the
// allocation engine and the season lifecycle controller.
package ledger

import (
	"context"
	"time"

	"bookaway/internal/models"
)

// Ledger is the set of primitives available inside one unit of work.
// Every method must see the writes made earlier through the same Ledger.
type Ledger interface {
	SeasonRepository
	WeekRepository
	BookingRepository
}

// SeasonRepository provides season operations.
type SeasonRepository interface {
	InsertSeason(ctx context.Context, s *models.Season) error
	GetSeason(ctx context.Context, id int64) (*models.Season, error)
	ListSeasons(ctx context.Context, statuses ...models.SeasonStatus) ([]models.Season, error)
	SetSeasonStatus(ctx context.Context, id int64, status models.SeasonStatus) error
	// PurgeSeason deletes every week and booking of the season.
	PurgeSeason(ctx context.Context, id int64) (PurgeResult, error)
}

// WeekRepository provides week operations.
type WeekRepository interface {
	InsertWeeks(ctx context.Context, weeks []models.Week) error
	GetWeek(ctx context.Context, id int64) (*models.Week, error)
	ListWeeks(ctx context.Context, seasonID int64) ([]models.Week, error)
	UpdateWeekBookability(ctx context.Context, id int64, b models.Bookability, notBookableDays []time.Time) error
}

// BookingRepository provides booking operations.
type BookingRepository interface {
	// FindActiveBooking returns the user's APPLIED or BOOKED booking at the
	// given priority in the season, or nil.
	FindActiveBooking(ctx context.Context, userID string, seasonID int64, p models.Priority) (*models.Booking, error)
	// FindConflictingBooking returns the BOOKED booking on the week if there
	// is one, otherwise the earliest APPLIED booking, or nil.
	FindConflictingBooking(ctx context.Context, weekID int64) (*models.Booking, error)
	// RetireBooking moves an APPLIED booking to CANCELLED.
	RetireBooking(ctx context.Context, id int64) error
	InsertBooking(ctx context.Context, b *models.Booking) error
	// BulkFinalize awards every week that has APPLIED bookings to the
	// earliest applicant and cancels the rest. Weeks that already have a
	// BOOKED booking only get their APPLIED bookings cancelled.
	BulkFinalize(ctx context.Context, weekIDs []int64) (FinalizeResult, error)
	ListBookingsForWeeks(ctx context.Context, weekIDs []int64) ([]models.Booking, error)
	ListUserBookings(ctx context.Context, userID string, seasonID int64) ([]models.Booking, error)
	SumBookedPoints(ctx context.Context, userID string) (int, error)
	NextBookedWeek(ctx context.Context, userID string, now time.Time) (*models.BookedWeek, error)
}

// Store runs units of work against the ledger.
type Store interface {
	// WithTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Ledger) error) error
	// View runs read-only fn outside of a write transaction.
	View(ctx context.Context, fn func(Ledger) error) error
}

// FinalizeResult summarises a bulk finalize.
type FinalizeResult struct {
	Weeks     int     // weeks that had APPLIED bookings
	Awarded   []int64 // booking ids moved to BOOKED
	Cancelled []int64 // booking ids moved to CANCELLED
}

// PurgeResult summarises a season purge.
type PurgeResult struct {
	Weeks    int64
	Bookings int64
}
