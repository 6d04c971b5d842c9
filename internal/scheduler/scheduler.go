package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bitfantasy/sprout/internal/greens/service"
)

// Scheduler runs the periodic readiness scan. Stage clocks advance by
// themselves, so trays whose light time elapses without an operator action
// are picked up here and order readiness re-checked.
type Scheduler struct {
	cron       *cron.Cron
	growingSvc *service.GrowingService
	logger     *zap.Logger
}

// New creates the scheduler with a readiness scan every intervalMins
// minutes.
func New(growingSvc *service.GrowingService, intervalMins int, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(),
		growingSvc: growingSvc,
		logger:     logger,
	}
	if intervalMins <= 0 {
		intervalMins = 30
	}
	spec := fmt.Sprintf("@every %dm", intervalMins)
	if _, err := s.cron.AddFunc(spec, s.scanReadiness); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduling in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) scanReadiness() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := s.growingSvc.ScanReadiness(ctx); err != nil {
		s.logger.Error("readiness scan failed", zap.Error(err))
		return
	}
	s.logger.Info("readiness scan completed", zap.Duration("took", time.Since(start)))
}
