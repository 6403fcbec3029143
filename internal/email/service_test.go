package email

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/notification-dispatch/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

func TestSendCustomBuildsMessage(t *testing.T) {
	var got *gomail.Message
	svc := newSMTPService(Config{From: "reminders@example.com"}, func(msgs ...*gomail.Message) error {
		require.Len(t, msgs, 1)
		got = msgs[0]
		return nil
	}, logger.Nop())

	err := svc.SendCustom(context.Background(), "pat@example.com", "Task due today", "<p>hi</p>")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"reminders@example.com"}, got.GetHeader("From"))
	assert.Equal(t, []string{"pat@example.com"}, got.GetHeader("To"))
	assert.Equal(t, []string{"Task due today"}, got.GetHeader("Subject"))
}

func TestSendCustomTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	svc := newSMTPService(Config{Timeout: 20 * time.Millisecond}, func(...*gomail.Message) error {
		<-release
		return nil
	}, logger.Nop())

	err := svc.SendCustom(context.Background(), "pat@example.com", "s", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), svc.abandoned.Load())
}

func TestSendCustomBoundsStalledSends(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32

	svc := newSMTPService(Config{Timeout: 20 * time.Millisecond, MaxInFlight: 1}, func(...*gomail.Message) error {
		calls.Add(1)
		<-release
		return nil
	}, logger.Nop())

	assert.ErrorIs(t, svc.SendCustom(context.Background(), "pat@example.com", "s", "b"), context.DeadlineExceeded)
	// The stalled exchange still holds the only slot.
	assert.ErrorIs(t, svc.SendCustom(context.Background(), "sam@example.com", "s", "b"), context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), svc.abandoned.Load())

	close(release)
	require.Eventually(t, func() bool { return len(svc.inflight) == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, svc.SendCustom(context.Background(), "sam@example.com", "s", "b"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendCustomOpensBreaker(t *testing.T) {
	calls := 0
	svc := newSMTPService(Config{}, func(...*gomail.Message) error {
		calls++
		return errors.New("connection refused")
	}, logger.Nop())

	for i := 0; i < 5; i++ {
		assert.Error(t, svc.SendCustom(context.Background(), "pat@example.com", "s", "b"))
	}
	err := svc.SendCustom(context.Background(), "pat@example.com", "s", "b")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 5, calls)
}

func TestNewServiceWithoutHostLogsOnly(t *testing.T) {
	svc := NewService(Config{}, logger.Nop())
	_, ok := svc.(*logService)
	assert.True(t, ok)
	assert.NoError(t, svc.SendCustom(context.Background(), "pat@example.com", "s", "b"))
}

func TestRenderReminderEscapes(t *testing.T) {
	subject, body, err := RenderReminder(Reminder{
		Title:   "Hearing tomorrow",
		Message: "Smith <v> Jones on 2026-10-16.",
		URL:     "https://app.example.com/cases/1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hearing tomorrow", subject)
	assert.Contains(t, body, "Smith &lt;v&gt; Jones")
	assert.Contains(t, body, `href="https://app.example.com/cases/1"`)

	_, body, err = RenderReminder(Reminder{Title: "t", Message: "m"})
	require.NoError(t, err)
	assert.NotContains(t, body, "href=")
}
