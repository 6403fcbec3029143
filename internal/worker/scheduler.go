package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

// Runner runs one reminder scan.
type Runner interface {
	Run(ctx context.Context, kind model.ScanKind) (model.ScanSummary, error)
}

type SchedulerConfig struct {
	Location *time.Location
	Hour     int
	Minute   int
	// Kinds run in order on every tick.
	Kinds []model.ScanKind
}

// Scheduler triggers the reminder scans once a day at a fixed local time.
// It is the in-process alternative to an external cron calling the scan
// endpoints; both may run since scans are idempotent.
type Scheduler struct {
	runner Runner
	cfg    SchedulerConfig
	logger *logger.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

func NewScheduler(runner Runner, cfg SchedulerConfig, logger *logger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []model.ScanKind{model.ScanKindTasks, model.ScanKindHearings}
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, loc *time.Location, hour, minute int) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.cfg.Location, s.cfg.Hour, s.cfg.Minute)
		s.logger.Info("next reminder scan scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-s.after(next.Sub(s.now())):
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every configured scan kind and returns the joined errors.
// One failing kind does not stop the next.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, kind := range s.cfg.Kinds {
		summary, err := s.runner.Run(ctx, kind)
		if err != nil {
			s.logger.Error(err, "reminder scan failed", "kind", string(kind))
			errs = append(errs, err)
			continue
		}
		s.logger.Info("reminder scan finished",
			"kind", string(kind),
			"items_scanned", summary.ItemsScanned,
			"notifications_created", summary.NotificationsCreated,
			"duplicates_skipped", summary.DuplicatesSkipped,
		)
	}
	return errors.Join(errs...)
}
