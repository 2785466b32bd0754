package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"training-booking-backend/internal/booking"
	"training-booking-backend/internal/mw"
)

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeInternal       = "INTERNAL"
)

var kindStatus = map[booking.Kind]int{
	booking.KindPastBooking:          http.StatusUnprocessableEntity,
	booking.KindInsufficientNotice:   http.StatusUnprocessableEntity,
	booking.KindDateMismatch:         http.StatusUnprocessableEntity,
	booking.KindSessionNotFound:      http.StatusNotFound,
	booking.KindReservationNotFound:  http.StatusNotFound,
	booking.KindCapacityExceeded:     http.StatusConflict,
	booking.KindDuplicateReservation: http.StatusConflict,
	booking.KindAlreadyCancelled:     http.StatusConflict,
	booking.KindInvalidTransition:    http.StatusConflict,
	booking.KindNotOwner:             http.StatusForbidden,
	booking.KindQuery:                http.StatusInternalServerError,
}

// writeError is the single place booking errors become HTTP responses.
// Store failures and unexpected errors are logged with the request id and
// answered with one generic INTERNAL code.
func (h *Handler) writeError(c *gin.Context, err error) {
	var be *booking.Error
	if !errors.As(err, &be) {
		h.log.Error("unexpected handler error", zap.String("request_id", mw.GetRequestID(c)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": codeInternal})
		return
	}

	status, ok := kindStatus[be.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		h.log.Error("booking query failed", zap.String("request_id", mw.GetRequestID(c)), zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error", "code": codeInternal})
		return
	}

	body := gin.H{"error": be.Message, "code": string(be.Kind)}
	if be.Kind == booking.KindCapacityExceeded {
		body["remaining"] = be.Remaining
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": codeInvalidRequest})
}
