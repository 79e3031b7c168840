// README: Seat and fare bookkeeping that drives OPEN/FULL transitions.
package trip

import (
	"tripshare/internal/geo"
	"tripshare/internal/modules/pricing"
	"tripshare/internal/types"
)

// StatusForNew is the initial status of a trip created with seats booked.
func StatusForNew(b BookingType, seats int) Status {
	if b == BookingSingle || seats == b.Capacity() {
		return StatusFull
	}
	return StatusOpen
}

// AddSeats books seats on t and flips it to FULL once capacity is reached.
func AddSeats(t *Trip, seats int) error {
	if seats <= 0 {
		return ErrValidation
	}
	if t.SeatsBooked+seats > t.Capacity() {
		return ErrCapacityExceeded
	}
	t.SeatsBooked += seats
	if t.SeatsBooked == t.Capacity() {
		t.Status = StatusFull
	}
	return nil
}

func AddFare(t *Trip, b pricing.FareBreakdown) {
	t.TotalFare += b.PassengerFare
	t.DriverShare += b.DriverShare
	t.AppCommission += b.AppCommission
}

func SubtractFare(t *Trip, m Member) {
	t.TotalFare -= m.PassengerFare
	t.DriverShare -= m.DriverShare
	t.AppCommission -= m.AppCommission
}

type Route struct {
	From types.Point
	To   types.Point
}

// WidenRoute stretches the trip's endpoints so a joining member's pickup and
// drop sit inside them. Both points are measured against the current route.
func WidenRoute(current Route, m Member) Route {
	out := current
	base := geo.HaversineMeters(current.From, current.To)
	if geo.HaversineMeters(m.Pickup, current.To) > base {
		out.From = m.Pickup
	}
	if geo.HaversineMeters(current.From, m.Drop) > base {
		out.To = m.Drop
	}
	return out
}

// LeaveOutcome decides what happens to t when m leaves. t.Members still
// includes m.
func LeaveOutcome(t *Trip, m Member) (cancel bool, next Status) {
	remaining := 0
	for _, other := range t.Members {
		if other.ID != m.ID {
			remaining++
		}
	}
	if remaining == 0 || m.SeatsBooked >= t.Capacity() {
		return true, StatusCancelled
	}
	switch t.Status {
	case StatusFull, StatusAssigned:
		return false, StatusOpen
	default:
		return false, t.Status
	}
}
