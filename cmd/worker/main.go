package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DavidGamba/go-getoptions"

	"github.com/jwalitptl/notification-dispatch/config"
	"github.com/jwalitptl/notification-dispatch/internal/app"
	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/worker"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
	"github.com/jwalitptl/notification-dispatch/pkg/webpush"
)

type commandLineOptions struct {
	Config            string
	Kind              string
	Once              bool
	GenerateVAPIDKeys bool
}

func parseCommandLine() *commandLineOptions {
	optionValues := &commandLineOptions{}
	opt := getoptions.New()

	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.Config, "config", "",
		opt.Alias("c"),
		opt.Description("the path to the configuration file"))
	opt.BoolVar(&optionValues.Once, "once", false,
		opt.Description("run the scans once, print the summaries and exit"))
	opt.StringVar(&optionValues.Kind, "kind", "",
		opt.ValidValues(string(model.ScanKindTasks), string(model.ScanKindHearings)),
		opt.Description("limit --once to one scan kind"))
	opt.BoolVar(&optionValues.GenerateVAPIDKeys, "generate-vapid-keys", false,
		opt.Description("print a new VAPID key pair and exit"))

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
	return optionValues
}

func main() {
	options := parseCommandLine()

	if options.GenerateVAPIDKeys {
		public, private, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate VAPID keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s_VAPID_PUBLIC_KEY=%s\n%s_VAPID_PRIVATE_KEY=%s\n", config.EnvPrefix, public, config.EnvPrefix, private)
		return
	}

	cfg, err := config.Load(options.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		JSON:       cfg.Log.JSON,
		Output:     os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "failed to initialize")
	}
	defer a.Close()

	if options.Once {
		if err := runOnce(ctx, a, options.Kind); err != nil {
			a.Close()
			os.Exit(1)
		}
		return
	}

	hour, minute, err := cfg.Scan.RunAtClock()
	if err != nil {
		log.Fatal(err, "invalid scan run time")
	}
	loc, err := cfg.Scan.Location()
	if err != nil {
		log.Fatal(err, "invalid scan timezone")
	}

	worker.NewScheduler(a.Scanner, worker.SchedulerConfig{
		Location: loc,
		Hour:     hour,
		Minute:   minute,
	}, log).Start(ctx)
}

// runOnce prints one JSON summary per kind on stdout. The summary is
// printed even when the run failed.
func runOnce(ctx context.Context, a *app.App, kind string) error {
	kinds := []model.ScanKind{model.ScanKindTasks, model.ScanKindHearings}
	if kind != "" {
		kinds = []model.ScanKind{model.ScanKind(kind)}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	var failed error
	for _, k := range kinds {
		summary, err := a.Scanner.Run(ctx, k)
		if encErr := enc.Encode(summary); encErr != nil && failed == nil {
			failed = encErr
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s scan failed: %v\n", k, err)
			if failed == nil {
				failed = err
			}
		}
	}
	return failed
}
