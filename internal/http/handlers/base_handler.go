// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tripshare/internal/geo"
	"tripshare/internal/http/middleware"
	"tripshare/internal/modules/pricing"
	"tripshare/internal/modules/routing"
	"tripshare/internal/modules/trip"
	"tripshare/internal/types"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeTripError maps domain errors to HTTP status codes.
func writeTripError(c *gin.Context, err error) {
	_ = c.Error(err)

	var balance *trip.InsufficientBalanceError
	var window *trip.OutsideStartWindowError
	var provider *routing.ProviderError

	switch {
	case errors.As(err, &balance):
		writeJSON(c, http.StatusPaymentRequired, errorResponse{
			Error:   err.Error(),
			Details: map[string]any{"needed": balance.Needed, "available": balance.Available},
		})
	case errors.As(err, &window):
		writeJSON(c, http.StatusConflict, errorResponse{
			Error:   err.Error(),
			Details: map[string]any{"opens": window.Opens, "closes": window.Closes},
		})
	case errors.As(err, &provider):
		writeError(c, http.StatusBadGateway, "routing provider unavailable")
	case errors.Is(err, trip.ErrValidation), errors.Is(err, pricing.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, trip.ErrUserNotFound),
		errors.Is(err, routing.ErrRouteNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrNotDriver), errors.Is(err, trip.ErrNotMember):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, trip.ErrConflict), errors.Is(err, trip.ErrInvalidState),
		errors.Is(err, trip.ErrConflictingTrip), errors.Is(err, trip.ErrCapacityExceeded),
		errors.Is(err, trip.ErrAlreadyMember), errors.Is(err, trip.ErrLeaveTooLate),
		errors.Is(err, trip.ErrUnfunded):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, geo.ErrDecode):
		writeError(c, http.StatusBadGateway, "routing provider returned a malformed route")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func tripID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if id == "" || len(id) > 64 {
		writeError(c, http.StatusBadRequest, "missing or invalid trip id")
		return "", false
	}
	return types.ID(id), true
}

// paging reads skip/take query params, falling back to 0 and 0 (service default).
func paging(c *gin.Context) (skip, take int, ok bool) {
	var err error
	if v := c.Query("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			writeError(c, http.StatusBadRequest, "invalid skip")
			return 0, 0, false
		}
	}
	if v := c.Query("take"); v != "" {
		if take, err = strconv.Atoi(v); err != nil || take < 0 {
			writeError(c, http.StatusBadRequest, "invalid take")
			return 0, 0, false
		}
	}
	return skip, take, true
}
