// Command postgang turns Norwegian mailbox delivery dates into an
// iCalendar feed.
//
// One-shot mode fetches the dates for a single postal code (from the
// Bring API or a local JSON file) and writes the calendar to a file or
// stdout. Serve mode publishes calendars for the codes in a YAML config
// over HTTP, refreshed on a cron schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postgang/internal/bring"
	"postgang/internal/config"
	"postgang/internal/ical"
	appLog "postgang/internal/log"
	"postgang/internal/postal"
	"postgang/internal/web"
)

const (
	envAPIUID = "POSTGANG_API_UID"
	envAPIKey = "POSTGANG_API_KEY"
)

type flagConfig struct {
	configPath string
	code       string
	input      string
	output     string
	created    string
	serve      bool
	verbose    bool
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/postgang/config.yaml", "Path to config file (serve mode)")
	flag.StringVar(&cfg.code, "code", "", "Postal code to fetch delivery dates for")
	flag.StringVar(&cfg.input, "input", "", "Read delivery dates from this JSON file instead of the Bring API")
	flag.StringVar(&cfg.output, "output", "", "Write the calendar to this file instead of stdout")
	flag.StringVar(&cfg.created, "created", "", "Fixed DTSTAMP instant (RFC 3339) for reproducible output")
	flag.BoolVar(&cfg.serve, "serve", false, "Run the HTTP server instead of a one-shot export")
	flag.BoolVar(&cfg.verbose, "v", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if flags.serve {
		err = runServe(ctx, flags)
	} else {
		err = runOnce(ctx, flags)
	}
	if err != nil {
		appLog.Error("postgang failed", err)
		os.Exit(1)
	}
}

// runOnce exports a single calendar and exits.
func runOnce(ctx context.Context, flags flagConfig) error {
	if flags.code == "" {
		return errors.New("missing required flag: -code")
	}
	code, err := postal.ParseCode(flags.code)
	if err != nil {
		return err
	}

	var created *time.Time
	if flags.created != "" {
		t, err := time.Parse(time.RFC3339, flags.created)
		if err != nil {
			return fmt.Errorf("invalid -created value %q: %w", flags.created, err)
		}
		t = t.UTC()
		created = &t
	}

	var source bring.Source
	if flags.input != "" {
		source = bring.FileSource{Path: flags.input}
	} else {
		source, err = apiClientFromEnv()
		if err != nil {
			return err
		}
	}

	// Create the output file before touching the network, so a bad path
	// fails fast.
	out := os.Stdout
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	dates, err := source.DeliveryDates(ctx, code)
	if err != nil {
		return err
	}
	appLog.Debug("delivery dates fetched", "code", code, "date_count", len(dates))

	return ical.New(dates, created).Render(out)
}

// runServe loads the YAML config and runs the HTTP server until the
// process is signalled.
func runServe(ctx context.Context, flags flagConfig) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}

	// Environment credentials take precedence over the config file.
	if uid := os.Getenv(envAPIUID); uid != "" {
		cfg.APIUID = uid
	}
	if key := os.Getenv(envAPIKey); key != "" {
		cfg.APIKey = key
	}
	if cfg.APIUID == "" || cfg.APIKey == "" {
		return fmt.Errorf("serve mode needs Bring API credentials (%s/%s or api_uid/api_key in %s)",
			envAPIUID, envAPIKey, flags.configPath)
	}

	appLog.Info("postgang serving",
		"listen", cfg.Listen,
		"refresh", cfg.Refresh,
		"code_count", len(cfg.Codes),
	)

	server, err := web.NewServer(cfg, bring.NewAPIClient(cfg.APIUID, cfg.APIKey))
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

func apiClientFromEnv() (*bring.APIClient, error) {
	uid := os.Getenv(envAPIUID)
	key := os.Getenv(envAPIKey)
	if uid == "" || key == "" {
		return nil, fmt.Errorf("%s and %s must be set when -input is not given", envAPIUID, envAPIKey)
	}
	return bring.NewAPIClient(uid, key), nil
}
