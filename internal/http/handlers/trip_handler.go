// README: Passenger-facing trip handlers: request, quote, nearby search, join and leave.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripshare/internal/modules/trip"
	"tripshare/internal/types"
)

type TripService interface {
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
	RequestTrip(ctx context.Context, cmd trip.RequestCommand) (*trip.RequestResult, error)
	QuoteFare(ctx context.Context, cmd trip.FareCommand) (*trip.FareQuote, error)
	FindNearbyTrips(ctx context.Context, cmd trip.NearbyCommand) ([]trip.NearbyTrip, error)
	JoinTrip(ctx context.Context, cmd trip.JoinCommand) (*trip.JoinResult, error)
	LeaveTrip(ctx context.Context, cmd trip.LeaveCommand) (*trip.LeaveResult, error)
}

type TripHandler struct {
	trips TripService
}

func NewTripHandler(svc TripService) *TripHandler {
	return &TripHandler{trips: svc}
}

type requestTripReq struct {
	From        types.Point `json:"from"`
	To          types.Point `json:"to"`
	TripDates   []string    `json:"trip_dates" binding:"required,min=1"`
	StartTime   string      `json:"start_time" binding:"required"`
	EndTime     string      `json:"end_time"`
	Type        string      `json:"type" binding:"required"`
	BookingType string      `json:"booking_type" binding:"required"`
	Seats       int         `json:"seats" binding:"required,min=1"`
	Skip        int         `json:"skip"`
	Take        int         `json:"take"`
}

func (h *TripHandler) Request(c *gin.Context) {
	var req requestTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.trips.RequestTrip(c.Request.Context(), trip.RequestCommand{
		UserID:      callerID(c),
		From:        req.From,
		To:          req.To,
		TripDates:   req.TripDates,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Type:        trip.TripType(req.Type),
		BookingType: trip.BookingType(req.BookingType),
		Seats:       req.Seats,
		Skip:        req.Skip,
		Take:        req.Take,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	status := http.StatusOK
	if len(res.Created) > 0 {
		status = http.StatusCreated
	}
	writeJSON(c, status, toRequestView(res))
}

type fareReq struct {
	From        types.Point `json:"from"`
	To          types.Point `json:"to"`
	BookingType string      `json:"booking_type" binding:"required"`
	Seats       int         `json:"seats" binding:"required,min=1"`
}

func (h *TripHandler) Fare(c *gin.Context) {
	var req fareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	q, err := h.trips.QuoteFare(c.Request.Context(), trip.FareCommand{
		UserID:      callerID(c),
		From:        req.From,
		To:          req.To,
		BookingType: trip.BookingType(req.BookingType),
		Seats:       req.Seats,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"quote":            q.Quote,
		"duration_seconds": int64(q.Duration / time.Second),
	})
}

type nearbyReq struct {
	Pickup    types.Point `json:"pickup"`
	Drop      types.Point `json:"drop"`
	Seats     int         `json:"seats"`
	StartTime time.Time   `json:"start_time" binding:"required"`
	Skip      int         `json:"skip"`
	Take      int         `json:"take"`
}

func (h *TripHandler) Nearby(c *gin.Context) {
	var req nearbyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	trips, err := h.trips.FindNearbyTrips(c.Request.Context(), trip.NearbyCommand{
		UserID:    callerID(c),
		Pickup:    req.Pickup,
		Drop:      req.Drop,
		Seats:     req.Seats,
		StartTime: req.StartTime,
		Skip:      req.Skip,
		Take:      req.Take,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": toNearbyViews(trips)})
}

func (h *TripHandler) Get(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	t, err := h.trips.Get(c.Request.Context(), id)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripView(t))
}

type joinReq struct {
	Pickup types.Point `json:"pickup"`
	Drop   types.Point `json:"drop"`
	Seats  int         `json:"seats" binding:"required,min=1"`
}

func (h *TripHandler) Join(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	var req joinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.trips.JoinTrip(c.Request.Context(), trip.JoinCommand{
		TripID: id,
		UserID: callerID(c),
		Pickup: req.Pickup,
		Drop:   req.Drop,
		Seats:  req.Seats,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"trip":        toTripView(res.Trip),
		"quote":       res.Quote,
		"became_full": res.BecameFull,
	})
}

func (h *TripHandler) Leave(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	res, err := h.trips.LeaveTrip(c.Request.Context(), trip.LeaveCommand{TripID: id, UserID: callerID(c)})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"trip":            toTripView(res.Trip),
		"penalty":         res.Penalty,
		"cancelled":       res.Cancelled,
		"driver_released": res.DriverReleased,
	})
}
