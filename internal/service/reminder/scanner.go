package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
	"github.com/jwalitptl/notification-dispatch/pkg/metrics"
)

// Dispatcher turns candidates into ledger rows and deliveries.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind model.ScanKind, candidates []model.Candidate) (model.ScanSummary, error)
}

type Config struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// HorizonDays bounds the hearing query; it is at least the furthest window.
	HorizonDays int
}

// Scanner finds due tasks and upcoming hearings and hands reminder
// candidates to the dispatcher. It holds no state between runs; re-running
// is safe because the ledger rejects repeated idempotency keys.
type Scanner struct {
	source     repository.ReminderSourceRepository
	dispatcher Dispatcher
	logger     *logger.Logger
	metrics    *metrics.Metrics
	loc        *time.Location
	horizon    int
	now        func() time.Time
}

func NewScanner(source repository.ReminderSourceRepository, dispatcher Dispatcher, cfg Config, logger *logger.Logger, metrics *metrics.Metrics) *Scanner {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	horizon := cfg.HorizonDays
	if horizon < MaxHearingOffset() {
		horizon = MaxHearingOffset()
	}
	return &Scanner{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		loc:        loc,
		horizon:    horizon,
		now:        time.Now,
	}
}

// Run executes one scan of the given kind.
func (s *Scanner) Run(ctx context.Context, kind model.ScanKind) (model.ScanSummary, error) {
	switch kind {
	case model.ScanKindTasks:
		return s.ScanTasks(ctx)
	case model.ScanKindHearings:
		return s.ScanHearings(ctx)
	}
	return model.ScanSummary{Kind: kind}, fmt.Errorf("unknown scan kind %q", kind)
}

func (s *Scanner) ScanTasks(ctx context.Context) (model.ScanSummary, error) {
	return s.scan(ctx, model.ScanKindTasks, func(today time.Time) (int, []model.Candidate, error) {
		tasks, err := s.source.ListDueTasks(ctx, today)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to list due tasks: %w", err)
		}
		return len(tasks), s.TaskCandidates(tasks, today), nil
	})
}

func (s *Scanner) ScanHearings(ctx context.Context) (model.ScanSummary, error) {
	return s.scan(ctx, model.ScanKindHearings, func(today time.Time) (int, []model.Candidate, error) {
		items, err := s.source.ListUpcomingHearingItems(ctx, today, s.horizon)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to list hearing items: %w", err)
		}
		return len(items), s.HearingCandidates(items, today), nil
	})
}

type collectFunc func(today time.Time) (scanned int, candidates []model.Candidate, err error)

func (s *Scanner) scan(ctx context.Context, kind model.ScanKind, collect collectFunc) (model.ScanSummary, error) {
	started := s.now()
	today := Today(started, s.loc)
	log := s.logger.WithFields(map[string]interface{}{
		"kind":  string(kind),
		"today": today.Format(dateLayout),
	})
	log.Info("reminder scan started")

	scanned, candidates, err := collect(today)
	if err != nil {
		s.finish(kind, started, "error")
		log.Error(err, "reminder scan failed")
		return model.ScanSummary{Kind: kind, StartedAt: started, FinishedAt: s.now()}, err
	}

	summary, err := s.dispatcher.Dispatch(ctx, kind, candidates)
	summary.Kind = kind
	summary.ItemsScanned = scanned
	summary.StartedAt = started
	summary.FinishedAt = s.now()
	s.metrics.ItemsScanned.WithLabelValues(string(kind)).Add(float64(scanned))

	fields := []interface{}{
		"items_scanned", summary.ItemsScanned,
		"candidates", len(candidates),
		"notifications_created", summary.NotificationsCreated,
		"duplicates_skipped", summary.DuplicatesSkipped,
		"push_sent", summary.PushSent,
		"push_failed", summary.PushFailed,
		"push_removed", summary.PushRemoved,
		"email_sent", summary.EmailSent,
		"ledger_failed", summary.LedgerFailed,
	}
	if err != nil {
		s.finish(kind, started, "error")
		log.Error(err, "reminder scan finished with errors", fields...)
		return summary, err
	}

	s.finish(kind, started, "success")
	log.Info("reminder scan finished", fields...)
	return summary, nil
}

func (s *Scanner) finish(kind model.ScanKind, started time.Time, status string) {
	s.metrics.ScanRuns.WithLabelValues(string(kind), status).Inc()
	s.metrics.ScanDuration.WithLabelValues(string(kind)).Observe(s.now().Sub(started).Seconds())
}

// TaskCandidates builds one candidate per overdue or due-today task. Done
// tasks and tasks due after today produce nothing.
func (s *Scanner) TaskCandidates(tasks []*model.Task, today time.Time) []model.Candidate {
	var out []model.Candidate
	for _, task := range tasks {
		if task.Status == model.TaskStatusDone || task.OwnerUserID == uuid.Nil {
			continue
		}
		offset, err := DayOffset(today, task.DueDate)
		if err != nil {
			s.logger.Warn(err, "skipping task with unreadable due date", "task_id", task.ID)
			continue
		}

		c := model.Candidate{
			UserID:   task.OwnerUserID,
			Category: model.CategoryTask,
			Link:     "/tasks/" + task.ID,
		}
		switch ClassifyTask(offset) {
		case TaskOverdue:
			c.Title = "Task overdue"
			c.Message = fmt.Sprintf("%q was due on %s.", task.Title, task.DueDate[:len(dateLayout)])
			c.IdempotencyKey = TaskOverdueKey(task.ID)
		case TaskDueToday:
			c.Title = "Task due today"
			c.Message = fmt.Sprintf("%q is due today.", task.Title)
			c.IdempotencyKey = TaskDueKey(task.ID)
		default:
			continue
		}
		out = append(out, c)
	}
	return out
}

// HearingCandidates builds a candidate for each item whose date lands exactly
// on a reminder window.
func (s *Scanner) HearingCandidates(items []*model.HearingItem, today time.Time) []model.Candidate {
	var out []model.Candidate
	for _, item := range items {
		if item.OwnerUserID == uuid.Nil {
			continue
		}
		date, err := ParseDate(item.Date)
		if err != nil {
			s.logger.Warn(err, "skipping hearing with unreadable date", "item_id", item.ID, "source", string(item.SourceKind))
			continue
		}
		window, ok := HearingWindow(int(date.Sub(today).Hours() / 24))
		if !ok {
			continue
		}

		day := date.Format(dateLayout)
		out = append(out, model.Candidate{
			UserID:         item.OwnerUserID,
			Category:       model.CategoryTask,
			Title:          window.Title,
			Message:        hearingMessage(item, day),
			Link:           hearingLink(item),
			IdempotencyKey: HearingKey(item.SourceKind, item.ID, day, window),
		})
	}
	return out
}

func hearingMessage(item *model.HearingItem, day string) string {
	var b strings.Builder
	b.WriteString(item.Title)
	if item.Reference != "" {
		fmt.Fprintf(&b, " (%s)", item.Reference)
	}
	fmt.Fprintf(&b, " on %s", day)
	if item.Time != nil && *item.Time != "" {
		t := *item.Time
		if len(t) > 5 {
			t = t[:5]
		}
		fmt.Fprintf(&b, " at %s", t)
	}
	if item.Location != "" {
		fmt.Fprintf(&b, ", %s", item.Location)
	}
	b.WriteString(".")
	return b.String()
}

func hearingLink(item *model.HearingItem) string {
	if item.SourceKind == model.HearingSourceEvent {
		return "/calendar/" + item.ID
	}
	return "/cases/" + item.ID
}
