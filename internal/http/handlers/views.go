package handlers

import (
	"time"

	"tripshare/internal/modules/pricing"
	"tripshare/internal/modules/trip"
	"tripshare/internal/types"
)

type memberView struct {
	UserID        types.ID    `json:"user_id"`
	Pickup        types.Point `json:"pickup"`
	Drop          types.Point `json:"drop"`
	SeatsBooked   int         `json:"seats_booked"`
	PassengerFare int64       `json:"passenger_fare"`
}

type tripView struct {
	ID                 types.ID     `json:"id"`
	Status             trip.Status  `json:"status"`
	BookingType        string       `json:"booking_type"`
	From               types.Point  `json:"from"`
	To                 types.Point  `json:"to"`
	TripDate           string       `json:"trip_date"`
	StartTime          time.Time    `json:"start_time"`
	EndTime            time.Time    `json:"end_time"`
	DistanceKm         float64      `json:"distance_km"`
	DurationSeconds    int64        `json:"duration_seconds"`
	SeatsBooked        int          `json:"seats_booked"`
	AvailableSeats     int          `json:"available_seats"`
	TotalFare          int64        `json:"total_fare"`
	DriverShare        int64        `json:"driver_share"`
	AppCommission      int64        `json:"app_commission"`
	UserHasEnoughMoney bool         `json:"user_has_enough_money"`
	IsPaid             bool         `json:"is_paid"`
	DriverID           *types.ID    `json:"driver_id,omitempty"`
	Members            []memberView `json:"members"`
}

func toTripView(t *trip.Trip) tripView {
	members := make([]memberView, len(t.Members))
	for i, m := range t.Members {
		members[i] = memberView{
			UserID:        m.UserID,
			Pickup:        m.Pickup,
			Drop:          m.Drop,
			SeatsBooked:   m.SeatsBooked,
			PassengerFare: m.PassengerFare,
		}
	}
	return tripView{
		ID:                 t.ID,
		Status:             t.Status,
		BookingType:        string(t.BookingType),
		From:               t.From,
		To:                 t.To,
		TripDate:           t.TripDate,
		StartTime:          t.StartTime,
		EndTime:            t.EndTime,
		DistanceKm:         t.DistanceKm,
		DurationSeconds:    int64(t.Duration / time.Second),
		SeatsBooked:        t.SeatsBooked,
		AvailableSeats:     t.AvailableSeats(),
		TotalFare:          t.TotalFare,
		DriverShare:        t.DriverShare,
		AppCommission:      t.AppCommission,
		UserHasEnoughMoney: t.UserHasEnoughMoney,
		IsPaid:             t.IsPaid,
		DriverID:           t.DriverID,
		Members:            members,
	}
}

func toTripViews(ts []*trip.Trip) []tripView {
	out := make([]tripView, len(ts))
	for i, t := range ts {
		out[i] = toTripView(t)
	}
	return out
}

type nearbyView struct {
	Trip                 tripView `json:"trip"`
	PickupDistanceMeters float64  `json:"pickup_distance_meters"`
	DropDistanceMeters   float64  `json:"drop_distance_meters"`
}

func toNearbyViews(ns []trip.NearbyTrip) []nearbyView {
	out := make([]nearbyView, len(ns))
	for i, n := range ns {
		out[i] = nearbyView{
			Trip:                 toTripView(n.Trip),
			PickupDistanceMeters: n.PickupDistanceMeters,
			DropDistanceMeters:   n.DropDistanceMeters,
		}
	}
	return out
}

type createdView struct {
	Direction trip.Direction `json:"direction"`
	Trip      tripView       `json:"trip"`
}

type nearbyLegView struct {
	Date      string         `json:"date"`
	Direction trip.Direction `json:"direction"`
	Trips     []nearbyView   `json:"trips"`
}

type requestView struct {
	Created        []createdView   `json:"created"`
	Nearby         []nearbyLegView `json:"nearby"`
	Quote          pricing.Quote   `json:"quote"`
	TotalCost      int64           `json:"total_cost"`
	HasEnoughMoney bool            `json:"has_enough_money"`
	BonusUsed      bool            `json:"bonus_used"`
}

func toRequestView(r *trip.RequestResult) requestView {
	v := requestView{
		Created:        make([]createdView, len(r.Created)),
		Nearby:         make([]nearbyLegView, len(r.Nearby)),
		Quote:          r.Quote,
		TotalCost:      r.TotalCost,
		HasEnoughMoney: r.HasEnoughMoney,
		BonusUsed:      r.BonusUsed,
	}
	for i, c := range r.Created {
		v.Created[i] = createdView{Direction: c.Direction, Trip: toTripView(c.Trip)}
	}
	for i, n := range r.Nearby {
		v.Nearby[i] = nearbyLegView{Date: n.Date, Direction: n.Direction, Trips: toNearbyViews(n.Trips)}
	}
	return v
}
