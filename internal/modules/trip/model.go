// README: Trip aggregate, membership, money movement records and status definitions.
package trip

import (
	"time"

	"tripshare/internal/types"
)

type Status string

const (
	StatusNone      Status = "NONE"
	StatusOpen      Status = "OPEN"
	StatusFull      Status = "FULL"
	StatusAssigned  Status = "ASSIGNED"
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type BookingType string

const (
	BookingSingle BookingType = "SINGLE"
	BookingDouble BookingType = "DOUBLE"
	BookingTriple BookingType = "TRIPLE"
)

// Capacity is the number of seats a trip of this booking type holds.
func (b BookingType) Capacity() int {
	switch b {
	case BookingSingle:
		return 1
	case BookingDouble:
		return 2
	case BookingTriple:
		return 3
	default:
		return 0
	}
}

func (b BookingType) Valid() bool { return b.Capacity() > 0 }

type TripType string

const (
	OneWay    TripType = "ONE_WAY"
	RoundTrip TripType = "ROUND_TRIP"
)

type Direction string

const (
	Outbound Direction = "OUTBOUND"
	Return   Direction = "RETURN"
)

type Role string

const (
	RolePassenger Role = "PASSENGER"
	RoleDriver    Role = "DRIVER"
)

type Trip struct {
	ID                 types.ID
	CreatorID          types.ID
	DriverID           *types.ID
	Status             Status
	StatusVersion      int
	BookingType        BookingType
	From               types.Point
	To                 types.Point
	TripDate           string
	StartTime          time.Time
	EndTime            time.Time
	DistanceKm         float64
	Duration           time.Duration
	SeatsBooked        int
	TotalFare          int64
	DriverShare        int64
	AppCommission      int64
	UserHasEnoughMoney bool
	IsPaid             bool
	Notified8hAt       *time.Time
	Notified30m        bool
	Notified15m        bool
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancelReason       *string
	Members            []Member
}

type Member struct {
	ID            types.ID
	TripID        types.ID
	UserID        types.ID
	Pickup        types.Point
	Drop          types.Point
	SeatsBooked   int
	PassengerFare int64
	DriverShare   int64
	AppCommission int64
	CreatedAt     time.Time
}

func (t *Trip) Capacity() int { return t.BookingType.Capacity() }

func (t *Trip) AvailableSeats() int { return t.Capacity() - t.SeatsBooked }

func (t *Trip) Member(userID types.ID) (Member, bool) {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

func (t *Trip) MemberIDs() []types.ID {
	ids := make([]types.ID, len(t.Members))
	for i, m := range t.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (t *Trip) HasDriver(driverID types.ID) bool {
	return t.DriverID != nil && *t.DriverID == driverID
}

func (t *Trip) Window() Window {
	return Window{TripID: t.ID, Start: t.StartTime, End: t.EndTime}
}

type Account struct {
	UserID  types.ID
	Role    Role
	Balance int64
	Bonus   int64
}

type EntryKind string

const (
	EntryTripFare     EntryKind = "trip_fare"
	EntryDriverPayout EntryKind = "driver_payout"
	EntryLeavePenalty EntryKind = "leave_penalty"
)

// LedgerEntry is a signed balance movement. A debit without AllowOverdraft
// fails instead of taking the balance below zero.
type LedgerEntry struct {
	ID             types.ID
	UserID         types.ID
	TripID         types.ID
	Amount         int64
	Kind           EntryKind
	AllowOverdraft bool
	CreatedAt      time.Time
}

type Event struct {
	ID         int64
	TripID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

const (
	ActorPassenger = "passenger"
	ActorDriver    = "driver"
	ActorSystem    = "system"
)

// AllowedTransitions represents the trip state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusOpen:     {StatusFull, StatusCancelled},
	StatusFull:     {StatusOpen, StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusStarted, StatusOpen, StatusFull, StatusCancelled},
	StatusStarted:  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
