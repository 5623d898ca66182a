package payments

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically resolves transactions stuck past the pending timeout.
type Sweeper struct {
	coordinator *Coordinator
	interval    time.Duration
	log         *zap.Logger
}

func NewSweeper(coordinator *Coordinator, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{coordinator: coordinator, interval: interval, log: log}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := s.coordinator.ExpireStale(ctx)
			if err != nil {
				s.log.Error("payment sweep failed", zap.Error(err))
				continue
			}
			if resolved > 0 {
				s.log.Info("payment sweep resolved stale transactions", zap.Int("count", resolved))
			}
		}
	}
}
