package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically re-evaluates every entity so stale status does not
// depend on the entity reporting again.
type Sweeper struct {
	cron     *cron.Cron
	pipeline *Pipeline
	logger   *zap.Logger
}

func NewSweeper(p *Pipeline, spec string, logger *zap.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		pipeline: p,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	changed := s.pipeline.Sweep(context.Background())
	if changed > 0 {
		s.logger.Info("Sweep changed statuses", zap.Int("entities", changed))
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context done when a running sweep
// has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
