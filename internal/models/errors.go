package models

import "errors"

var (
	ErrInvalidRange      = errors.New("invalid date range")
	ErrNotFound          = errors.New("not found")
	ErrSeasonNotOpen     = errors.New("season is not open for bookings")
	ErrAlreadyFinalized  = errors.New("week already awarded to another user")
	ErrInvalidTransition = errors.New("invalid season status transition")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Error kinds reported to callers.
const (
	KindInvalidRange      = "InvalidRange"
	KindNotFound          = "NotFound"
	KindSeasonNotOpen     = "SeasonNotOpen"
	KindAlreadyFinalized  = "AlreadyFinalized"
	KindInvalidTransition = "InvalidTransition"
	KindInvalidArgument   = "InvalidArgument"
	KindInternal          = "Internal"
)

// ErrorKind classifies err into the error taxonomy. Anything that is not one
// of the sentinel errors is Internal.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRange):
		return KindInvalidRange
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSeasonNotOpen):
		return KindSeasonNotOpen
	case errors.Is(err, ErrAlreadyFinalized):
		return KindAlreadyFinalized
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	}
	return KindInternal
}
