package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler fires jobs on six-field (seconds first) cron specs. Jobs are
// not serialized: a tick that arrives while the previous run is still going
// starts another one.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
	ctx  context.Context
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log,
		ctx:  context.Background(),
	}
}

// AddJob registers job under spec. Job errors are logged, never fatal.
func (s *Scheduler) AddJob(spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := job(s.ctx); err != nil {
			s.log.Error("Scheduled job failed", "schedule", spec, "error", err)
		}
	})
	return err
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to return. Jobs receive ctx.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info("Scheduler started", "next", e.Next)
	}
	<-ctx.Done()
	s.Stop()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
