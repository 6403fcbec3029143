package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
	"github.com/jwalitptl/notification-dispatch/pkg/metrics"
	"github.com/jwalitptl/notification-dispatch/pkg/webpush"
)

// Outcome is the result of one delivery attempt to one subscription.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeRemoved Outcome = "removed"
	OutcomeFailed  Outcome = "failed"
)

// Sender is the Web Push transport.
type Sender interface {
	Send(ctx context.Context, sub webpush.Subscription, payload []byte) (*webpush.Response, error)
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

func (p Payload) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("push payload title is required")
	}
	return nil
}

// Tally counts outcomes across subscriptions.
type Tally struct {
	Sent    int
	Failed  int
	Removed int
}

func (t *Tally) Add(o Outcome) {
	switch o {
	case OutcomeSent:
		t.Sent++
	case OutcomeRemoved:
		t.Removed++
	default:
		t.Failed++
	}
}

type Service struct {
	sender    Sender
	configErr error
	subs      repository.SubscriptionRepository
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(sender Sender, subs repository.SubscriptionRepository, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		sender:  sender,
		subs:    subs,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// NewUnconfigured returns a service whose every delivery fails with err.
// It is used when the VAPID keys could not be loaded so that runs report
// the misconfiguration instead of silently skipping push.
func NewUnconfigured(err error, subs repository.SubscriptionRepository, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if !errors.Is(err, webpush.ErrInvalidVAPIDKeys) {
		err = fmt.Errorf("%w: %v", webpush.ErrInvalidVAPIDKeys, err)
	}
	s := NewService(nil, subs, logger, metrics)
	s.configErr = err
	return s
}

// ConfigError is non-nil when push cannot work for any subscription.
func (s *Service) ConfigError() error {
	return s.configErr
}

// IsConfigError reports whether err disables push for the whole run.
func IsConfigError(err error) bool {
	return errors.Is(err, webpush.ErrInvalidVAPIDKeys)
}

// Deliver sends payload to one subscription. Only configuration failures
// are returned as errors; everything else is an Outcome.
func (s *Service) Deliver(ctx context.Context, sub *model.PushSubscription, payload Payload) (Outcome, error) {
	if s.configErr != nil {
		return OutcomeFailed, s.configErr
	}

	log := s.logger.WithFields(map[string]interface{}{
		"subscription_id": sub.ID.String(),
		"user_id":         sub.UserID.String(),
		"endpoint_origin": origin(sub.Endpoint),
	})

	if sub.Expired(s.now()) {
		return s.remove(ctx, sub, log, "expired"), nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return s.record(OutcomeFailed), fmt.Errorf("failed to encode push payload: %w", err)
	}

	start := time.Now()
	resp, err := s.sender.Send(ctx, webpush.Subscription{
		Endpoint: sub.Endpoint,
		P256dh:   sub.P256dh,
		Auth:     sub.Auth,
	}, body)
	s.metrics.PushLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if IsConfigError(err) {
			log.Error(err, "push signing failed")
			return s.record(OutcomeFailed), err
		}
		log.Warn(err, "push request failed")
		return s.record(OutcomeFailed), nil
	}

	switch {
	case resp.Gone():
		return s.remove(ctx, sub, log, fmt.Sprintf("push service answered %d", resp.StatusCode)), nil
	case !resp.Success():
		log.Warn(nil, "push service rejected message", "status", resp.StatusCode, "body", resp.Body)
		return s.record(OutcomeFailed), nil
	}

	log.Debug("push delivered", "status", resp.StatusCode)
	return s.record(OutcomeSent), nil
}

// DeliverAll fans payload out to every subscription concurrently. The
// returned error is set only for configuration failures.
func (s *Service) DeliverAll(ctx context.Context, subs []*model.PushSubscription, payload Payload) (Tally, error) {
	var tally Tally
	if len(subs) == 0 {
		return tally, nil
	}
	if s.configErr != nil {
		return tally, s.configErr
	}
	if err := payload.Validate(); err != nil {
		return tally, err
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		configErr error
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *model.PushSubscription) {
			defer wg.Done()
			outcome, err := s.Deliver(ctx, sub, payload)

			mu.Lock()
			defer mu.Unlock()
			tally.Add(outcome)
			if err != nil && configErr == nil {
				configErr = err
			}
		}(sub)
	}
	wg.Wait()

	return tally, configErr
}

// remove retires a subscription. A failed delete leaves it active, so it
// counts as a failure and is retried next run.
func (s *Service) remove(ctx context.Context, sub *model.PushSubscription, log *logger.Logger, reason string) Outcome {
	if err := s.subs.Delete(ctx, sub.ID); err != nil {
		log.Error(err, "failed to remove push subscription", "reason", reason)
		return s.record(OutcomeFailed)
	}
	log.Info("push subscription removed", "reason", reason)
	return s.record(OutcomeRemoved)
}

func (s *Service) record(o Outcome) Outcome {
	s.metrics.PushDeliveries.WithLabelValues(string(o)).Inc()
	return o
}

func origin(endpoint string) string {
	aud, err := webpush.Audience(endpoint)
	if err != nil {
		return "invalid"
	}
	return aud
}
