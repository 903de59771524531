package models

import "time"

// Bookability describes how much of a week can be booked.
type Bookability string

const (
	FullyBookable     Bookability = "FULLY_BOOKABLE"
	PartiallyBookable Bookability = "PARTIALLY_BOOKABLE"
	NotBookable       Bookability = "NOT_BOOKABLE"
)

// Valid reports whether b is one of the known values.
func (b Bookability) Valid() bool {
	switch b {
	case FullyBookable, PartiallyBookable, NotBookable:
		return true
	}
	return false
}

// Week is the smallest bookable unit of a season.
// From is the first day of the week and To is its last day; both are dates at
// midnight UTC.
type Week struct {
	ID              int64       `json:"id"`
	SeasonID        int64       `json:"season_id"`
	WeekNumber      int         `json:"week_number"`
	From            time.Time   `json:"from"`
	To              time.Time   `json:"to"`
	Bookability     Bookability `json:"week_status"`
	NotBookableDays []time.Time `json:"not_bookable_days"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ContainsDate checks if the week covers a specific date.
func (w *Week) ContainsDate(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(w.From)) && !d.After(DateOf(w.To))
}

// WeekWithBookings is a week annotated with the bookings placed on it.
type WeekWithBookings struct {
	Week
	Bookings []BookingView `json:"bookings"`
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
