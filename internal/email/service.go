package email

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/notification-dispatch/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

// Service sends transactional email.
type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	// MaxInFlight caps sends still talking to the SMTP server, including
	// ones whose caller already timed out.
	MaxInFlight int
}

// NewService returns an SMTP sender, or a logging stub when no SMTP host is
// configured.
func NewService(cfg Config, logger *logger.Logger) Service {
	if cfg.Host == "" {
		return &logService{logger: logger}
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return newSMTPService(cfg, d.DialAndSend, logger)
}

type smtpService struct {
	from    string
	timeout time.Duration
	send    func(...*gomail.Message) error
	cb      *circuitbreaker.CircuitBreaker
	logger  *logger.Logger

	inflight  chan struct{}
	abandoned atomic.Int64
}

func newSMTPService(cfg Config, send func(...*gomail.Message) error, logger *logger.Logger) *smtpService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &smtpService{
		from:     cfg.From,
		timeout:  timeout,
		send:     send,
		inflight: make(chan struct{}, maxInFlight),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 5,
			Timeout:     time.Minute,
		}),
		logger: logger,
	}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.cb.Execute(func() error {
		// gomail has no context support, so a send that outlives ctx keeps
		// its slot until the SMTP exchange ends.
		select {
		case s.inflight <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("failed to send email: %w", ctx.Err())
		}

		done := make(chan error, 1)
		go func() {
			defer func() { <-s.inflight }()
			done <- s.send(m)
		}()

		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("failed to send email: %w", err)
			}
			return nil
		case <-ctx.Done():
			n := s.abandoned.Add(1)
			s.logger.Warn(ctx.Err(), "email send abandoned, SMTP exchange still running", "to", to, "abandoned_total", n)
			return fmt.Errorf("failed to send email: %w", ctx.Err())
		}
	})
}

// logService stands in for SMTP in development.
type logService struct {
	logger *logger.Logger
}

func (s *logService) SendCustom(_ context.Context, to string, subject string, _ string) error {
	s.logger.Info("email not sent, no SMTP host configured", "to", to, "subject", subject)
	return nil
}
