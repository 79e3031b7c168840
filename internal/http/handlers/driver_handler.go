// README: Driver handlers for listing full trips, assign, start, end and leave.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripshare/internal/modules/trip"
)

type DriverService interface {
	ListFullTrips(ctx context.Context, skip, take int) ([]*trip.Trip, error)
	AssignDriver(ctx context.Context, cmd trip.AssignCommand) (*trip.Trip, error)
	StartTrip(ctx context.Context, cmd trip.StartCommand) (*trip.Trip, error)
	EndTrip(ctx context.Context, cmd trip.EndCommand) (*trip.Settlement, error)
	DriverLeave(ctx context.Context, cmd trip.DriverLeaveCommand) (*trip.DriverLeaveResult, error)
}

type DriverHandler struct {
	trips DriverService
}

func NewDriverHandler(svc DriverService) *DriverHandler {
	return &DriverHandler{trips: svc}
}

func (h *DriverHandler) ListFull(c *gin.Context) {
	skip, take, ok := paging(c)
	if !ok {
		return
	}
	trips, err := h.trips.ListFullTrips(c.Request.Context(), skip, take)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": toTripViews(trips)})
}

func (h *DriverHandler) Assign(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	t, err := h.trips.AssignDriver(c.Request.Context(), trip.AssignCommand{TripID: id, DriverID: callerID(c)})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripView(t))
}

func (h *DriverHandler) Start(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	t, err := h.trips.StartTrip(c.Request.Context(), trip.StartCommand{TripID: id, DriverID: callerID(c)})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripView(t))
}

func (h *DriverHandler) End(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	s, err := h.trips.EndTrip(c.Request.Context(), trip.EndCommand{TripID: id, DriverID: callerID(c)})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"trip":          toTripView(s.Trip),
		"charged":       s.Charged,
		"driver_payout": s.DriverPayout,
	})
}

func (h *DriverHandler) Leave(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	res, err := h.trips.DriverLeave(c.Request.Context(), trip.DriverLeaveCommand{TripID: id, DriverID: callerID(c)})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trip": toTripView(res.Trip), "penalty": res.Penalty})
}
