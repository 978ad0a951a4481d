// Package scheduler warms the events cache on a cron schedule so the first
// request after midnight does not pay for the upstream round trip.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"universe/internal/events"
	appLog "universe/internal/log"
)

// Warmer is the subset of events.Manager the scheduler drives.
type Warmer interface {
	GetEvents(ctx context.Context) (events.Payload, error)
}

// Scheduler runs cache warm-ups on a cron spec.
type Scheduler struct {
	warmer  Warmer
	spec    string
	cron    *cron.Cron
	timeout time.Duration
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithLocation evaluates the cron expression in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil && s.cron == nil {
			s.cron = cron.New(cron.WithLocation(loc), cron.WithLogger(cron.DiscardLogger))
		}
	}
}

// WithTimeout bounds each warm-up run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(w Warmer, spec string, opts ...Option) (*Scheduler, error) {
	if w == nil {
		return nil, errors.New("scheduler: warmer is nil")
	}
	s := &Scheduler{
		warmer:  w,
		spec:    spec,
		timeout: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s, nil
}

// Start registers the warm-up job and launches the cron loop. An empty spec
// disables scheduling.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		appLog.Info("cache warm-up disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() {
		_ = s.RunOnce(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	appLog.Info("cache warm-up scheduled", "spec", s.spec)
	return nil
}

// Stop halts the scheduler; the returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce performs a single warm-up. It only hits the upstream when the
// cached blob is stale.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := s.warmer.GetEvents(ctx)
	if err != nil {
		appLog.Error("cache warm-up failed", err)
		return err
	}
	appLog.Info("cache warm-up done", "bytes", len(payload))
	return nil
}
