package trip

import (
	"errors"
	"fmt"
	"time"

	"tripshare/internal/types"
)

var (
	ErrNotFound         = errors.New("trip not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrConflict         = errors.New("trip state conflict")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrValidation       = errors.New("invalid trip request")
	ErrConflictingTrip  = errors.New("user already has a trip around this time")
	ErrCapacityExceeded = errors.New("not enough seats on trip")
	ErrNotMember        = errors.New("user is not a member of this trip")
	ErrAlreadyMember    = errors.New("user already joined this trip")
	ErrNotDriver        = errors.New("caller is not the driver of this trip")
	ErrLeaveTooLate     = errors.New("too close to start time to leave")
	ErrUnfunded         = errors.New("trip is not funded yet")
)

// OutsideStartWindowError is returned when a driver starts a trip before the
// window opens or after it closes.
type OutsideStartWindowError struct {
	TooEarly bool
	Opens    time.Time
	Closes   time.Time
}

func (e *OutsideStartWindowError) Error() string {
	if e.TooEarly {
		return fmt.Sprintf("too early to start trip, window opens at %s", e.Opens.Format(time.RFC3339))
	}
	return fmt.Sprintf("too late to start trip, window closed at %s", e.Closes.Format(time.RFC3339))
}

type InsufficientBalanceError struct {
	UserID    types.ID
	Needed    int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: need %d, have %d", e.UserID, e.Needed, e.Available)
}
