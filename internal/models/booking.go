package models

import "time"

// BookingStatus is the state of a booking record.
type BookingStatus string

const (
	BookingApplied   BookingStatus = "APPLIED"
	BookingBooked    BookingStatus = "BOOKED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Active reports whether the status still holds a priority slot.
func (s BookingStatus) Active() bool {
	return s == BookingApplied || s == BookingBooked
}

// Priority is one of the two per-season request channels of a user.
type Priority string

const (
	Priority1 Priority = "PRIORITY_1"
	Priority2 Priority = "PRIORITY_2"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == Priority1 || p == Priority2
}

// Booking is a user's claim on a week at a given priority.
type Booking struct {
	ID          int64         `json:"id"`
	WeekID      int64         `json:"week_id"`
	SeasonID    int64         `json:"season_id"`
	UserID      string        `json:"user_id"`
	Priority    Priority      `json:"priority"`
	PointsSpent int           `json:"points_spent"`
	Status      BookingStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CanTransition reports whether the booking may move to the given status.
// Only APPLIED bookings move; BOOKED and CANCELLED are final.
func (b *Booking) CanTransition(to BookingStatus) bool {
	if b.Status != BookingApplied {
		return false
	}
	return to == BookingBooked || to == BookingCancelled
}

// BookingView is the display form of a booking inside a week listing.
type BookingView struct {
	ID           int64         `json:"id"`
	UserID       string        `json:"user_id"`
	PointsSpent  int           `json:"points_spent"`
	Priority     Priority      `json:"priority"`
	Status       BookingStatus `json:"status"`
	RequestedAt  time.Time     `json:"requested_at"`
	BookedByUser bool          `json:"booking_by_user"`
}

// View converts b to its listing form relative to viewer.
func (b *Booking) View(viewer string) BookingView {
	return BookingView{
		ID:           b.ID,
		UserID:       b.UserID,
		PointsSpent:  b.PointsSpent,
		Priority:     b.Priority,
		Status:       b.Status,
		RequestedAt:  b.RequestedAt,
		BookedByUser: viewer != "" && b.UserID == viewer,
	}
}

// BookedWeek pairs a booked week with the booking that won it.
type BookedWeek struct {
	WeekNumber int       `json:"week_number"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	SeasonID   int64     `json:"season_id"`
	BookingID  int64     `json:"booking_id"`
}
