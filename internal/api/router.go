package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"training-booking-backend/config"
	"training-booking-backend/internal/booking"
	"training-booking-backend/internal/mw"
	"training-booking-backend/internal/store"
)

// Dependencies is everything the router needs.
type Dependencies struct {
	Engine    *booking.Engine
	Store     store.Store
	WebPush   *webpush.Options
	Cache     *mw.ResponseCache
	Server    config.ServerConfig
	JWTSecret string
	Logger    *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	responseCache := deps.Cache
	if responseCache == nil {
		responseCache = mw.NewResponseCache(deps.Server.CacheTTL)
	}

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.AccessLog(log.Named("http")))

	handler := NewHandler(deps.Engine, deps.Store, deps.WebPush, log)
	limit := rate.Limit(deps.Server.RateLimitPerSec)

	r.GET("/healthz", handler.GetHealth)

	api := r.Group("/api")

	public := api.Group("", mw.RateLimiter(limit, deps.Server.RateLimitBurst))
	{
		public.GET("/sessions", responseCache.Middleware(), handler.SearchSessions)
		public.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	authed := api.Group("", mw.ClientAuth(deps.JWTSecret), mw.RateLimiter(limit, deps.Server.RateLimitBurst))
	{
		authed.POST("/reservations", handler.CreateReservation)
		authed.GET("/reservations", handler.ListReservations)
		authed.GET("/reservations/:id", handler.GetReservation)
		authed.POST("/reservations/:id/confirm", handler.ConfirmReservation)
		authed.POST("/reservations/:id/cancel", handler.CancelReservation)

		authed.GET("/subscriptions", handler.GetSubscription)
		authed.PUT("/subscriptions", handler.PutSubscription)
		authed.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}
