package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"training-booking-backend/config"
)

// Expirer cancels holds whose payment window has passed.
type Expirer interface {
	ExpirePendingReservations(ctx context.Context) (int, error)
}

// Service periodically releases unpaid PENDING reservations so they stop
// occupying session capacity.
type Service struct {
	cfg     config.ExpiryConfig
	expirer Expirer
	log     *zap.Logger
}

// NewService creates a new expiry sweeper.
func NewService(cfg config.ExpiryConfig, expirer Expirer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, expirer: expirer, log: log.Named("expiry")}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("expiry sweeper is disabled, not starting")
		return
	}
	s.log.Info("starting expiry sweeper", zap.Duration("interval", s.cfg.Interval))

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce runs a single expiry pass and returns how many holds it released.
func (s *Service) SweepOnce(ctx context.Context) int {
	start := time.Now()
	n, err := s.expirer.ExpirePendingReservations(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
		return n
	}
	if n > 0 {
		s.log.Info("expiry sweep finished", zap.Int("expired", n), zap.Duration("took", time.Since(start)))
	}
	return n
}
