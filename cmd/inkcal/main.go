package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"inkcal/internal/agg"
	"inkcal/internal/capture"
	"inkcal/internal/config"
	"inkcal/internal/ics"
	appLog "inkcal/internal/log"
	"inkcal/internal/view"
	"inkcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	noCapture  bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides the config file if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	// Unresolvable timezone is fatal; never guess a zone.
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to resolve timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	viewKind, err := view.ParseKind(conf.View)
	if err != nil {
		appLog.Error("invalid view in config", err, "view", conf.View)
		os.Exit(1)
	}

	appLog.Info("inkcal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"view", conf.View,
		"week_start_day", conf.WeekStartDay,
		"refresh", conf.RefreshCron,
		"calendar_count", len(conf.Calendars),
		"once", flags.once,
	)

	reader := ics.NewReader(conf.CacheDir)
	aggregator := agg.New(reader)
	server := web.NewServer(conf, loc, viewKind, aggregator)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := runOnce(ctx, server, loc); err != nil {
			appLog.Error("once-mode pipeline failed", err)
			os.Exit(1)
		}
		return
	}

	runServe(ctx, conf, server, flags)
}

// runOnce resolves the window, aggregates all feeds and writes the event
// payload to stdout.
func runOnce(ctx context.Context, server *web.Server, loc *time.Location) error {
	resp, err := server.BuildEvents(ctx, time.Now().In(loc))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// runServe starts the HTTP server and the cron-driven preview refresh,
// blocking until the context is canceled.
func runServe(ctx context.Context, conf *config.Config, server *web.Server, flags flagConfig) {
	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
		}
	}()

	var c *cron.Cron
	if !flags.noCapture {
		c = cron.New()
		captureJob := func() {
			if err := runCapture(ctx, conf); err != nil {
				appLog.Error("preview capture failed", err)
			}
		}
		if _, err := c.AddFunc(conf.RefreshCron, captureJob); err != nil {
			appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		} else {
			c.Start()
			// Prime the preview once at startup instead of waiting for
			// the first cron tick.
			go captureJob()
		}
	}

	<-ctx.Done()

	if c != nil {
		<-c.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("inkcal exiting")
}

// runCapture screenshots the local /calendar page into the preview path.
func runCapture(ctx context.Context, conf *config.Config) error {
	return capture.CalendarPNG(ctx, capture.Options{
		URL:        "http://" + conf.Listen + "/calendar",
		OutputPath: conf.PreviewPath,
	})
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/inkcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Resolve the window, aggregate feeds, print JSON and exit")
	flag.BoolVar(&cfg.noCapture, "no-capture", false, "Disable the cron-driven preview capture")

	flag.Parse()

	return cfg
}
