// Package scheduler runs the periodic idle-session sweep.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSpec = "@every 5m"

// Evictor closes live sessions idle for longer than ttl.
type Evictor interface {
	EvictIdle(ttl time.Duration) int
}

type Scheduler struct {
	cron    *cron.Cron
	evictor Evictor
	spec    string
	ttl     time.Duration
	logger  *zap.Logger
}

// New builds a sweeper. An empty spec uses DefaultSpec.
func New(evictor Evictor, spec string, ttl time.Duration, logger *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		evictor: evictor,
		spec:    spec,
		ttl:     ttl,
		logger:  logger,
	}
}

// Start registers the sweep and starts the cron loop. A non-positive ttl
// disables the sweep.
func (s *Scheduler) Start() error {
	if s.ttl <= 0 {
		s.logger.Warn("Session idle TTL not set, idle sessions will not be evicted")
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("schedule idle sweep %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("spec", s.spec),
		zap.Duration("idle_ttl", s.ttl))
	return nil
}

// Sweep evicts idle sessions once.
func (s *Scheduler) Sweep() int {
	n := s.evictor.EvictIdle(s.ttl)
	s.logger.Debug("Idle sweep finished", zap.Int("evicted", n))
	return n
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
