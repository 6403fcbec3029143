package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DavidGamba/go-getoptions"

	"github.com/jwalitptl/notification-dispatch/config"
	"github.com/jwalitptl/notification-dispatch/internal/app"
	"github.com/jwalitptl/notification-dispatch/internal/handler/health"
	notificationHandler "github.com/jwalitptl/notification-dispatch/internal/handler/notification"
	preferenceHandler "github.com/jwalitptl/notification-dispatch/internal/handler/preference"
	reminderHandler "github.com/jwalitptl/notification-dispatch/internal/handler/reminder"
	subscriptionHandler "github.com/jwalitptl/notification-dispatch/internal/handler/subscription"
	"github.com/jwalitptl/notification-dispatch/internal/middleware"
	"github.com/jwalitptl/notification-dispatch/internal/router"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

func parseCommandLine() string {
	var configPath string

	opt := getoptions.New()
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&configPath, "config", "",
		opt.Alias("c"),
		opt.Description("the path to the configuration file"))

	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}
	return configPath
}

func main() {
	cfg, err := config.Load(parseCommandLine())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		JSON:       cfg.Log.JSON,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "failed to initialize")
	}
	defer a.Close()

	if cfg.Auth.CronSecret == "" {
		log.Warn(nil, "no cron secret configured, scan triggers are unauthenticated")
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.CronSecret),
		router.Handlers{
			Health: health.NewHandler(a.DB),
			Cron: []router.Handler{
				reminderHandler.NewHandler(a.Scanner, log),
			},
			User: []router.Handler{
				subscriptionHandler.NewHandler(a.Subscriptions, a.VAPIDPublicKey),
				preferenceHandler.NewHandler(a.Preferences),
				notificationHandler.NewHandler(a.Notifications),
			},
		},
		a.Metrics,
		log,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit: middleware.RateLimiterConfig{
				RPS:   cfg.RateLimit.RequestsPerSecond,
				Burst: cfg.RateLimit.Burst,
			},
			CORSConfig: middleware.DefaultCORSConfig(),
			SizeLimit:  middleware.DefaultSizeLimitConfig(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}
