package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcnijman/go-emailaddress"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/notification-dispatch/internal/email"
	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	"github.com/jwalitptl/notification-dispatch/internal/service/preference"
	"github.com/jwalitptl/notification-dispatch/internal/service/push"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
	"github.com/jwalitptl/notification-dispatch/pkg/messaging"
	"github.com/jwalitptl/notification-dispatch/pkg/metrics"
)

const (
	defaultConcurrency = 8

	EventNotificationCreated = "notification.created"
)

type Config struct {
	// Concurrency caps how many users are processed at once.
	Concurrency int
	// Icon is shown by the service worker next to push messages.
	Icon string
	// BaseURL turns relative links into absolute ones for email.
	BaseURL string
}

// Service writes reminder candidates to the ledger and delivers the ones
// that were new. The ledger's unique idempotency key is the only dedup
// state; nothing is remembered between calls.
type Service struct {
	ledger  repository.NotificationRepository
	subs    repository.SubscriptionRepository
	users   repository.UserDirectory
	prefs   preference.Resolver
	pusher  *push.Service
	mailer  email.Service
	broker  messaging.Broker
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(
	ledger repository.NotificationRepository,
	subs repository.SubscriptionRepository,
	users repository.UserDirectory,
	prefs preference.Resolver,
	pusher *push.Service,
	mailer email.Service,
	broker messaging.Broker,
	cfg Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	return &Service{
		ledger:  ledger,
		subs:    subs,
		users:   users,
		prefs:   prefs,
		pusher:  pusher,
		mailer:  mailer,
		broker:  broker,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// run carries the state shared by the per-user workers of one Dispatch.
type run struct {
	kind model.ScanKind

	mu        sync.Mutex
	summary   model.ScanSummary
	configErr error
}

func (r *run) merge(part model.ScanSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Merge(part)
}

func (r *run) pushDisabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configErr != nil
}

func (r *run) disablePush(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configErr == nil {
		r.configErr = err
	}
}

// Dispatch processes candidates user by user. A candidate whose key is
// already in the ledger is skipped entirely. A failure for one candidate
// never stops the others; only a push configuration failure is returned as
// an error, after every ledger row has still been written.
func (s *Service) Dispatch(ctx context.Context, kind model.ScanKind, candidates []model.Candidate) (model.ScanSummary, error) {
	r := &run{kind: kind}
	r.summary.Kind = kind

	if s.pusher != nil && s.pusher.ConfigError() != nil {
		r.disablePush(s.pusher.ConfigError())
		s.logger.Error(r.configErr, "push is misconfigured, push delivery disabled for this run", "kind", string(kind))
	}

	users, batches, repeated := groupByUser(candidates)
	if repeated > 0 {
		r.summary.DuplicatesSkipped += repeated
		s.metrics.DuplicatesSkipped.WithLabelValues(string(kind)).Add(float64(repeated))
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, userID := range users {
		userID := userID
		batch := batches[userID]
		g.Go(func() error {
			r.merge(s.dispatchUser(ctx, r, userID, batch))
			return nil
		})
	}
	_ = g.Wait()

	summary := r.summary
	if r.configErr != nil {
		summary.PushConfigError = r.configErr.Error()
		return summary, fmt.Errorf("push delivery disabled: %w", r.configErr)
	}
	return summary, nil
}

// groupByUser partitions candidates per user in first-seen order and drops
// repeated keys within the batch.
func groupByUser(candidates []model.Candidate) ([]uuid.UUID, map[uuid.UUID][]model.Candidate, int) {
	var (
		users    []uuid.UUID
		batches  = make(map[uuid.UUID][]model.Candidate)
		seen     = make(map[string]struct{}, len(candidates))
		repeated int
	)
	for _, c := range candidates {
		if _, ok := seen[c.IdempotencyKey]; ok {
			repeated++
			continue
		}
		seen[c.IdempotencyKey] = struct{}{}
		if _, ok := batches[c.UserID]; !ok {
			users = append(users, c.UserID)
		}
		batches[c.UserID] = append(batches[c.UserID], c)
	}
	return users, batches, repeated
}

func (s *Service) dispatchUser(ctx context.Context, r *run, userID uuid.UUID, batch []model.Candidate) model.ScanSummary {
	log := s.logger.WithFields(map[string]interface{}{
		"kind":    string(r.kind),
		"user_id": userID.String(),
	})

	now := s.now()
	rows := make([]*model.Notification, len(batch))
	for i, c := range batch {
		rows[i] = c.Notification(uuid.New(), now)
	}

	created, failed := s.commit(ctx, rows, log)

	var part model.ScanSummary
	part.NotificationsCreated = len(created)
	part.LedgerFailed = failed
	part.DuplicatesSkipped = len(rows) - len(created) - failed

	kind := string(r.kind)
	s.metrics.NotificationsCreated.WithLabelValues(kind).Add(float64(part.NotificationsCreated))
	s.metrics.DuplicatesSkipped.WithLabelValues(kind).Add(float64(part.DuplicatesSkipped))
	s.metrics.LedgerFailures.WithLabelValues(kind).Add(float64(part.LedgerFailed))

	// Every row in created is committed, so delivery may start.
	for _, n := range created {
		s.publish(ctx, n, log)
		s.deliverPush(ctx, r, n, &part, log)
		s.deliverEmail(ctx, n, &part, log)
	}
	return part
}

// commit writes rows in one batch and falls back to row-by-row inserts when
// the batch fails, so one bad row only costs itself.
func (s *Service) commit(ctx context.Context, rows []*model.Notification, log *logger.Logger) ([]*model.Notification, int) {
	var created []*model.Notification

	inserted, err := s.ledger.InsertBatch(ctx, rows)
	for _, n := range rows {
		if inserted[n.IdempotencyKey] {
			created = append(created, n)
		}
	}
	if err == nil {
		return created, 0
	}
	// Chunks committed before the failure stay in the ledger; only the rest are retried.
	log.Warn(err, "batch ledger insert failed, retrying row by row", "rows", len(rows), "committed", len(created))

	failed := 0
	for _, n := range rows {
		if inserted[n.IdempotencyKey] {
			continue
		}
		ok, err := s.ledger.Insert(ctx, n)
		if err != nil {
			failed++
			log.Error(err, "failed to write notification", "idempotency_key", n.IdempotencyKey)
			continue
		}
		if ok {
			created = append(created, n)
		}
	}
	return created, failed
}

func (s *Service) publish(ctx context.Context, n *model.Notification, log *logger.Logger) {
	event := model.NotificationEvent{
		ID:             uuid.New(),
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           EventNotificationCreated,
		Category:       n.Category,
		Title:          n.Title,
		Message:        n.Message,
		Link:           n.Link,
		CreatedAt:      n.CreatedAt,
	}
	msg := messaging.Message{Type: EventNotificationCreated, Payload: event}
	if err := s.broker.Publish(ctx, messaging.ChannelNotifications, msg); err != nil {
		log.Warn(err, "failed to publish notification event", "notification_id", n.ID.String())
	}
}

func (s *Service) deliverPush(ctx context.Context, r *run, n *model.Notification, part *model.ScanSummary, log *logger.Logger) {
	if s.pusher == nil || r.pushDisabled() {
		return
	}

	allowed, err := s.prefs.IsAllowed(ctx, n.UserID, n.Category, model.ChannelPush)
	if err != nil {
		log.Warn(err, "failed to resolve push preference", "notification_id", n.ID.String())
		return
	}
	if !allowed {
		return
	}

	subs, err := s.subs.ListByUser(ctx, n.UserID)
	if err != nil {
		log.Warn(err, "failed to list push subscriptions", "notification_id", n.ID.String())
		return
	}
	if len(subs) == 0 {
		return
	}

	tally, err := s.pusher.DeliverAll(ctx, subs, push.Payload{
		Title: n.Title,
		Body:  n.Message,
		URL:   n.Link,
		Icon:  s.cfg.Icon,
		Tag:   n.IdempotencyKey,
	})
	part.PushSent += tally.Sent
	part.PushFailed += tally.Failed
	part.PushRemoved += tally.Removed

	if err != nil {
		if push.IsConfigError(err) {
			r.disablePush(err)
			log.Error(err, "push signing failed, push delivery disabled for this run")
			return
		}
		log.Warn(err, "push delivery failed", "notification_id", n.ID.String())
	}
}

func (s *Service) deliverEmail(ctx context.Context, n *model.Notification, part *model.ScanSummary, log *logger.Logger) {
	if s.mailer == nil || s.users == nil {
		return
	}

	allowed, err := s.prefs.IsAllowed(ctx, n.UserID, n.Category, model.ChannelEmail)
	if err != nil {
		log.Warn(err, "failed to resolve email preference", "notification_id", n.ID.String())
		return
	}
	if !allowed {
		return
	}

	address, err := s.users.GetEmail(ctx, n.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn(err, "failed to look up email address")
		}
		return
	}
	parsed, err := emailaddress.Parse(address)
	if err != nil {
		log.Warn(err, "skipping email to malformed address")
		return
	}

	subject, body, err := email.RenderReminder(email.Reminder{
		Title:   n.Title,
		Message: n.Message,
		URL:     s.absoluteURL(n.Link),
	})
	if err != nil {
		log.Error(err, "failed to render reminder email")
		part.EmailFailed++
		s.metrics.EmailDeliveries.WithLabelValues("failed").Inc()
		return
	}

	if err := s.mailer.SendCustom(ctx, parsed.String(), subject, body); err != nil {
		log.Warn(err, "failed to send reminder email", "notification_id", n.ID.String())
		part.EmailFailed++
		s.metrics.EmailDeliveries.WithLabelValues("failed").Inc()
		return
	}
	part.EmailSent++
	s.metrics.EmailDeliveries.WithLabelValues("sent").Inc()
}

func (s *Service) absoluteURL(link string) string {
	if link == "" || s.cfg.BaseURL == "" {
		return link
	}
	return s.cfg.BaseURL + link
}
