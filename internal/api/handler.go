package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"training-booking-backend/internal/booking"
	"training-booking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *booking.Engine
	store   store.Store
	webpush *webpush.Options
	log     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *booking.Engine, s store.Store, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		engine:  engine,
		store:   s,
		webpush: webpushOptions,
		log:     log,
	}
}
