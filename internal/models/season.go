package models

import "time"

// SeasonStatus is the lifecycle state of a season.
type SeasonStatus string

const (
	SeasonDraft   SeasonStatus = "DRAFT"
	SeasonOpen    SeasonStatus = "OPEN"
	SeasonClosed  SeasonStatus = "CLOSED"
	SeasonDeleted SeasonStatus = "DELETED"
)

// Valid reports whether s is one of the known statuses.
func (s SeasonStatus) Valid() bool {
	switch s {
	case SeasonDraft, SeasonOpen, SeasonClosed, SeasonDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s SeasonStatus) Terminal() bool {
	return s == SeasonClosed || s == SeasonDeleted
}

// Season is an administratively defined date range subdivided into weeks.
type Season struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Status    SeasonStatus `json:"status"`
	Cost      int          `json:"cost"`
	CreatedBy string       `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// AcceptsBookings reports whether booking requests are allowed for the season.
func (s *Season) AcceptsBookings() bool {
	return s.Status == SeasonOpen
}
