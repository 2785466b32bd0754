package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"training-booking-backend/internal/parse"
	"training-booking-backend/internal/store"
)

// SearchSessions handles GET /api/sessions?from=&specialty=&trainer_id=.
func (h *Handler) SearchSessions(c *gin.Context) {
	var filter store.SessionFilter

	if raw := c.Query("from"); raw != "" {
		from, err := parse.Date(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.From = from
	}
	filter.Specialty = strings.TrimSpace(c.Query("specialty"))
	if raw := c.Query("trainer_id"); raw != "" {
		id, err := parse.ID(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.TrainerID = &id
	}

	sessions, err := h.engine.SearchAvailableSessions(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetHealth reports whether the database answers.
func (h *Handler) GetHealth(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
