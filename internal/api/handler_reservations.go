package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"training-booking-backend/internal/booking"
	"training-booking-backend/internal/model"
	"training-booking-backend/internal/mw"
	"training-booking-backend/internal/parse"
)

type createReservationRequest struct {
	SessionID   int64  `json:"session_id" binding:"required,gt=0"`
	RequestedAt string `json:"requested_at" binding:"required"`
	Notes       string `json:"notes" binding:"max=1024"`
}

type confirmReservationRequest struct {
	PaymentRef string `json:"payment_ref" binding:"max=128"`
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	clientID, _ := mw.ClientID(c)

	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	requestedAt, err := parse.DateTime(req.RequestedAt)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.engine.CreateReservation(c.Request.Context(), booking.CreateRequest{
		ClientID:    clientID,
		SessionID:   req.SessionID,
		RequestedAt: requestedAt,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListReservations handles GET /api/reservations?status=.
func (h *Handler) ListReservations(c *gin.Context) {
	clientID, _ := mw.ClientID(c)

	var status *model.ReservationStatus
	if raw := c.Query("status"); raw != "" {
		s, err := model.ParseReservationStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		status = &s
	}

	views, err := h.engine.ListClientReservations(c.Request.Context(), clientID, status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": views})
}

// GetReservation handles GET /api/reservations/:id.
func (h *Handler) GetReservation(c *gin.Context) {
	clientID, _ := mw.ClientID(c)
	id, ok := reservationIDParam(c)
	if !ok {
		return
	}

	view, err := h.engine.GetReservation(c.Request.Context(), id, clientID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ConfirmReservation handles POST /api/reservations/:id/confirm.
func (h *Handler) ConfirmReservation(c *gin.Context) {
	clientID, _ := mw.ClientID(c)
	id, ok := reservationIDParam(c)
	if !ok {
		return
	}

	var req confirmReservationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	view, err := h.engine.ConfirmReservation(c.Request.Context(), id, clientID, strings.TrimSpace(req.PaymentRef))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CancelReservation handles POST /api/reservations/:id/cancel.
func (h *Handler) CancelReservation(c *gin.Context) {
	clientID, _ := mw.ClientID(c)
	id, ok := reservationIDParam(c)
	if !ok {
		return
	}

	if err := h.engine.CancelReservation(c.Request.Context(), id, clientID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func reservationIDParam(c *gin.Context) (int64, bool) {
	id, err := parse.ID(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return 0, false
	}
	return id, true
}
