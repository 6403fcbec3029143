package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notification-dispatch/config"
	"github.com/jwalitptl/notification-dispatch/internal/email"
	promhandler "github.com/jwalitptl/notification-dispatch/internal/handler/prometheus"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	"github.com/jwalitptl/notification-dispatch/internal/repository/postgres"
	"github.com/jwalitptl/notification-dispatch/internal/service/notification"
	"github.com/jwalitptl/notification-dispatch/internal/service/preference"
	"github.com/jwalitptl/notification-dispatch/internal/service/push"
	"github.com/jwalitptl/notification-dispatch/internal/service/reminder"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
	"github.com/jwalitptl/notification-dispatch/pkg/messaging"
	"github.com/jwalitptl/notification-dispatch/pkg/messaging/redis"
	"github.com/jwalitptl/notification-dispatch/pkg/metrics"
	"github.com/jwalitptl/notification-dispatch/pkg/webpush"
)

const metricsNamespace = "notify"

// App is the wired dependency graph shared by the API server and the worker.
type App struct {
	DB            *sqlx.DB
	Broker        messaging.Broker
	Notifications repository.NotificationRepository
	Subscriptions repository.SubscriptionRepository
	Preferences   *preference.Service
	Scanner       *reminder.Scanner
	Metrics       *promhandler.Handler
	// VAPIDPublicKey is empty when push is not configured.
	VAPIDPublicKey string
}

// New connects to the database and the broker and builds the services. A
// bad VAPID key pair does not fail startup: push is disabled and every scan
// reports the configuration error.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	var broker messaging.Broker = messaging.NopBroker{}
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create Redis broker: %w", err)
		}
	}

	promH := promhandler.New(metricsNamespace)
	m := metrics.NewMetrics(metricsNamespace, "", promH.Registry())

	base := postgres.NewBaseRepository(db)
	ledger := postgres.NewNotificationRepository(base)
	subs := postgres.NewSubscriptionRepository(base)
	prefs := preference.NewService(postgres.NewPreferenceRepository(base), preference.DefaultConfig())

	pusher, publicKey := newPusher(cfg.Push, subs, log, m)

	orchestrator := notification.NewService(
		ledger,
		subs,
		postgres.NewUserDirectory(base),
		prefs,
		pusher,
		email.NewService(cfg.Email.ToServiceConfig(), log),
		broker,
		notification.Config{
			Concurrency: cfg.Scan.Concurrency,
			Icon:        cfg.Push.Icon,
			BaseURL:     cfg.Server.BaseURL,
		},
		log,
		m,
	)

	loc, err := cfg.Scan.Location()
	if err != nil {
		db.Close()
		broker.Close()
		return nil, fmt.Errorf("invalid scan timezone: %w", err)
	}
	scanner := reminder.NewScanner(
		postgres.NewReminderSourceRepository(base),
		orchestrator,
		reminder.Config{Location: loc, HorizonDays: cfg.Scan.HorizonDays},
		log,
		m,
	)

	return &App{
		DB:             db,
		Broker:         broker,
		Notifications:  ledger,
		Subscriptions:  subs,
		Preferences:    prefs,
		Scanner:        scanner,
		Metrics:        promH,
		VAPIDPublicKey: publicKey,
	}, nil
}

func newPusher(cfg config.PushConfig, subs repository.SubscriptionRepository, log *logger.Logger, m *metrics.Metrics) (*push.Service, string) {
	keys, err := webpush.ParseVAPIDKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	if err != nil {
		log.Warn(err, "VAPID keys missing or invalid, push delivery disabled")
		return push.NewUnconfigured(err, subs, log, m), ""
	}
	client, err := webpush.NewClient(keys, webpush.Options{
		Subject:           cfg.Subject,
		TTL:               cfg.TTL,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		log.Warn(err, "push client misconfigured, push delivery disabled")
		return push.NewUnconfigured(err, subs, log, m), ""
	}
	return push.NewService(client, subs, log, m), keys.PublicKey()
}

func (a *App) Close() error {
	if err := a.Broker.Close(); err != nil {
		a.DB.Close()
		return err
	}
	return a.DB.Close()
}
