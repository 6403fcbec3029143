package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
	"github.com/jwalitptl/notification-dispatch/pkg/metrics"
	"github.com/jwalitptl/notification-dispatch/pkg/webpush"
)

type memorySubscriptions struct {
	mu        sync.Mutex
	subs      map[uuid.UUID]*model.PushSubscription
	deleteErr error
}

func newMemorySubscriptions(subs ...*model.PushSubscription) *memorySubscriptions {
	m := &memorySubscriptions{subs: map[uuid.UUID]*model.PushSubscription{}}
	for _, s := range subs {
		m.subs[s.ID] = s
	}
	return m
}

func (m *memorySubscriptions) Upsert(_ context.Context, sub *model.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *memorySubscriptions) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PushSubscription
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memorySubscriptions) Get(_ context.Context, id uuid.UUID) (*model.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (m *memorySubscriptions) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.subs, id)
	return nil
}

func (m *memorySubscriptions) DeleteForUser(ctx context.Context, _ uuid.UUID, id uuid.UUID) error {
	return m.Delete(ctx, id)
}

type stubSender struct {
	status int
	err    error
	calls  int32
}

func (s *stubSender) Send(_ context.Context, _ webpush.Subscription, _ []byte) (*webpush.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &webpush.Response{StatusCode: s.status}, nil
}

func newSub(userID uuid.UUID, endpoint string) *model.PushSubscription {
	return &model.PushSubscription{
		ID:        uuid.New(),
		UserID:    userID,
		Endpoint:  endpoint,
		CreatedAt: time.Now(),
	}
}

var testPayload = Payload{Title: "Task due today", Body: "File the return", URL: "/tasks/1"}

func TestDeliverRemovesGoneSubscription(t *testing.T) {
	pub, priv, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	keys, err := webpush.ParseVAPIDKeys(pub, priv)
	require.NoError(t, err)
	client, err := webpush.NewClient(keys, webpush.Options{Subject: "mailto:ops@example.com"})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	userID := uuid.New()
	sub := newSub(userID, srv.URL+"/push/stale")
	registry := newMemorySubscriptions(sub)
	svc := NewService(client, registry, logger.Nop(), metrics.New("test"))

	tally, err := svc.DeliverAll(context.Background(), []*model.PushSubscription{sub}, testPayload)
	require.NoError(t, err, "a gone endpoint is not a batch error")
	assert.Equal(t, Tally{Removed: 1}, tally)

	_, err = registry.Get(context.Background(), sub.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeliverOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		sender  *stubSender
		outcome Outcome
		removed bool
	}{
		{"created", &stubSender{status: http.StatusCreated}, OutcomeSent, false},
		{"not found", &stubSender{status: http.StatusNotFound}, OutcomeRemoved, true},
		{"rate limited", &stubSender{status: http.StatusTooManyRequests}, OutcomeFailed, false},
		{"server error", &stubSender{status: http.StatusInternalServerError}, OutcomeFailed, false},
		{"network error", &stubSender{err: errors.New("connection reset")}, OutcomeFailed, false},
		{"bad subscription keys", &stubSender{err: webpush.ErrPayloadTooLarge}, OutcomeFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newSub(uuid.New(), "https://push.example.com/1")
			registry := newMemorySubscriptions(sub)
			svc := NewService(tt.sender, registry, logger.Nop(), metrics.New("test"))

			outcome, err := svc.Deliver(context.Background(), sub, testPayload)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)

			_, err = registry.Get(context.Background(), sub.ID)
			if tt.removed {
				assert.ErrorIs(t, err, repository.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeliverFailedCleanupCountsAsFailure(t *testing.T) {
	sub := newSub(uuid.New(), "https://push.example.com/1")
	registry := newMemorySubscriptions(sub)
	registry.deleteErr = errors.New("database unavailable")
	svc := NewService(&stubSender{status: http.StatusGone}, registry, logger.Nop(), metrics.New("test"))

	outcome, err := svc.Deliver(context.Background(), sub, testPayload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestDeliverSkipsExpiredSubscription(t *testing.T) {
	sender := &stubSender{status: http.StatusCreated}
	past := time.Now().Add(-time.Hour)
	sub := newSub(uuid.New(), "https://push.example.com/1")
	sub.ExpirationTime = &past
	registry := newMemorySubscriptions(sub)
	svc := NewService(sender, registry, logger.Nop(), metrics.New("test"))

	outcome, err := svc.Deliver(context.Background(), sub, testPayload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, outcome)
	assert.Zero(t, atomic.LoadInt32(&sender.calls))
	assert.Empty(t, registry.subs)
}

func TestDeliverAllFansOut(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	pub, priv, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	keys, err := webpush.ParseVAPIDKeys(pub, priv)
	require.NoError(t, err)
	client, err := webpush.NewClient(keys, webpush.Options{})
	require.NoError(t, err)

	userID := uuid.New()
	subs := []*model.PushSubscription{
		newSub(userID, srv.URL+"/a"),
		newSub(userID, srv.URL+"/b"),
		newSub(userID, srv.URL+"/broken"),
	}
	svc := NewService(client, newMemorySubscriptions(subs...), logger.Nop(), metrics.New("test"))

	tally, err := svc.DeliverAll(context.Background(), subs, testPayload)
	require.NoError(t, err)
	assert.Equal(t, Tally{Sent: 2, Failed: 1}, tally)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestUnconfiguredServiceFailsLoudly(t *testing.T) {
	_, err := webpush.ParseVAPIDKeys("", "")
	require.Error(t, err)

	sub := newSub(uuid.New(), "https://push.example.com/1")
	svc := NewUnconfigured(err, newMemorySubscriptions(sub), logger.Nop(), metrics.New("test"))
	require.Error(t, svc.ConfigError())

	_, err = svc.DeliverAll(context.Background(), []*model.PushSubscription{sub}, testPayload)
	assert.True(t, IsConfigError(err))

	plain := NewUnconfigured(errors.New("vapid private key missing"), newMemorySubscriptions(), logger.Nop(), metrics.New("test"))
	assert.True(t, IsConfigError(plain.ConfigError()))
}

func TestPayloadValidate(t *testing.T) {
	assert.NoError(t, testPayload.Validate())
	assert.Error(t, Payload{Body: "no title"}.Validate())
}
