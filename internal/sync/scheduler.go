package syncx

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs SyncPending on a cron spec ("@every 5m", "*/10 * * * *").
type Scheduler struct {
	cron   *cron.Cron
	syncer *Syncer
	log    *slog.Logger
}

func NewScheduler(syncer *Syncer, spec string, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		syncer: syncer,
		log:    log,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) RunOnce() {
	if _, err := s.syncer.SyncPending(context.Background()); err != nil {
		s.log.Error("scheduled sync", "err", err)
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sync, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
