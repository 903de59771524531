package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookaway/internal/ledger"
	"bookaway/internal/models"
)

const bookingColumns = `id, week_id, season_id, user_id, priority, points_spent, status, requested_at, updated_at`

// FindActiveBooking returns the user's live booking at priority p in the
// season, or nil when the slot is free.
func (r *repo) FindActiveBooking(ctx context.Context, userID string, seasonID int64, p models.Priority) (*models.Booking, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE user_id = ? AND season_id = ? AND priority = ? AND status IN ('APPLIED', 'BOOKED')
		LIMIT 1`,
		userID, seasonID, string(p),
	)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active booking: %w", err)
	}
	return b, nil
}

// FindConflictingBooking returns the BOOKED booking of the week if any,
// otherwise its earliest APPLIED booking, or nil.
func (r *repo) FindConflictingBooking(ctx context.Context, weekID int64) (*models.Booking, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE week_id = ? AND status IN ('APPLIED', 'BOOKED')
		ORDER BY CASE status WHEN 'BOOKED' THEN 0 ELSE 1 END, requested_at, id
		LIMIT 1`,
		weekID,
	)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conflicting booking: %w", err)
	}
	return b, nil
}

// RetireBooking cancels an APPLIED booking.
func (r *repo) RetireBooking(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE bookings SET status = 'CANCELLED', updated_at = ? WHERE id = ? AND status = 'APPLIED'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("retire booking %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status string
	err = r.q.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("booking %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("retire booking %d: %w", id, err)
	}
	if models.BookingStatus(status) == models.BookingBooked {
		return fmt.Errorf("booking %d: %w", id, models.ErrAlreadyFinalized)
	}
	// Already cancelled.
	return nil
}

// InsertBooking stores b and fills its ID.
func (r *repo) InsertBooking(ctx context.Context, b *models.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	now := time.Now().UTC()
	if b.Status == "" {
		b.Status = models.BookingApplied
	}
	if b.RequestedAt.IsZero() {
		b.RequestedAt = now
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO bookings (week_id, season_id, user_id, priority, points_spent, status, requested_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.WeekID, b.SeasonID, b.UserID, string(b.Priority), b.PointsSpent, string(b.Status), b.RequestedAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("booking id: %w", err)
	}
	b.UpdatedAt = now
	return nil
}

// BulkFinalize resolves every APPLIED booking on the given weeks. Within a
// week the earliest request wins unless the week is already BOOKED.
func (r *repo) BulkFinalize(ctx context.Context, weekIDs []int64) (ledger.FinalizeResult, error) {
	var result ledger.FinalizeResult
	if len(weekIDs) == 0 {
		return result, nil
	}

	bookings, err := r.ListBookingsForWeeks(ctx, weekIDs)
	if err != nil {
		return result, err
	}

	booked := make(map[int64]bool)
	applied := make(map[int64][]models.Booking)
	var order []int64
	for _, b := range bookings {
		switch b.Status {
		case models.BookingBooked:
			booked[b.WeekID] = true
		case models.BookingApplied:
			if _, ok := applied[b.WeekID]; !ok {
				order = append(order, b.WeekID)
			}
			applied[b.WeekID] = append(applied[b.WeekID], b)
		}
	}

	now := time.Now().UTC()
	for _, weekID := range order {
		result.Weeks++
		for i, b := range applied[weekID] {
			to := models.BookingCancelled
			if i == 0 && !booked[weekID] {
				to = models.BookingBooked
			}
			if err := r.setBookingStatus(ctx, b.ID, to, now); err != nil {
				return result, err
			}
			if to == models.BookingBooked {
				result.Awarded = append(result.Awarded, b.ID)
			} else {
				result.Cancelled = append(result.Cancelled, b.ID)
			}
		}
	}
	return result, nil
}

func (r *repo) setBookingStatus(ctx context.Context, id int64, status models.BookingStatus, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = 'APPLIED'`,
		string(status), now, id,
	)
	if err != nil {
		return fmt.Errorf("set booking %d to %s: %w", id, status, err)
	}
	return nil
}

// ListBookingsForWeeks returns every booking on the given weeks ordered by
// week, then by request time.
func (r *repo) ListBookingsForWeeks(ctx context.Context, weekIDs []int64) ([]models.Booking, error) {
	if len(weekIDs) == 0 {
		return nil, nil
	}
	marks, args := inClause(weekIDs)
	return r.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE week_id IN (`+marks+`)
		ORDER BY week_id, requested_at, id`, args...)
}

// ListUserBookings returns the bookings of a user, optionally limited to one
// season when seasonID is non-zero.
func (r *repo) ListUserBookings(ctx context.Context, userID string, seasonID int64) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ?`
	args := []any{userID}
	if seasonID != 0 {
		query += ` AND season_id = ?`
		args = append(args, seasonID)
	}
	query += ` ORDER BY requested_at, id`
	return r.queryBookings(ctx, query, args...)
}

// SumBookedPoints totals the points of the user's BOOKED bookings.
func (r *repo) SumBookedPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_spent), 0) FROM bookings WHERE user_id = ? AND status = 'BOOKED'`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum booked points: %w", err)
	}
	return total, nil
}

// NextBookedWeek returns the earliest booked week of the user that has not
// ended before now, or nil.
func (r *repo) NextBookedWeek(ctx context.Context, userID string, now time.Time) (*models.BookedWeek, error) {
	var bw models.BookedWeek
	err := r.q.QueryRowContext(ctx, `
		SELECT w.week_number, w.from_date, w.to_date, w.season_id, b.id
		FROM bookings b
		JOIN weeks w ON w.id = b.week_id
		WHERE b.user_id = ? AND b.status = 'BOOKED' AND w.to_date >= ?
		ORDER BY w.from_date
		LIMIT 1`,
		userID, models.DateOf(now),
	).Scan(&bw.WeekNumber, &bw.From, &bw.To, &bw.SeasonID, &bw.BookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next booked week: %w", err)
	}
	return &bw, nil
}

func (r *repo) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(row scanner) (*models.Booking, error) {
	var b models.Booking
	var priority, status string
	if err := row.Scan(&b.ID, &b.WeekID, &b.SeasonID, &b.UserID, &priority, &b.PointsSpent, &status, &b.RequestedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Priority = models.Priority(priority)
	b.Status = models.BookingStatus(status)
	return &b, nil
}
