// Command pitchwatch polls live football fixtures, derives match-pressure
// signals and raises threshold alerts.
//
// Usage:
//
//	pitchwatch serve --config config.yaml
//	pitchwatch scan-once --config config.yaml --metrics
//	pitchwatch check-config --config config.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/pitchwatch/internal/alerts"
	"github.com/obsidianstack/pitchwatch/internal/api"
	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/internal/metrics"
	"github.com/obsidianstack/pitchwatch/internal/notify"
	"github.com/obsidianstack/pitchwatch/internal/scanner"
	"github.com/obsidianstack/pitchwatch/internal/scheduler"
	sig "github.com/obsidianstack/pitchwatch/internal/signal"
	"github.com/obsidianstack/pitchwatch/internal/store"
	"github.com/obsidianstack/pitchwatch/internal/upstream"
	"github.com/obsidianstack/pitchwatch/internal/ws"
)

var logLevel = new(slog.LevelVar)

func main() {
	_ = godotenv.Load(".env")

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	var configPath string
	root := &cobra.Command{
		Use:           "pitchwatch",
		Short:         "Live fixture pressure monitor and alerting engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(scanOnceCmd(&configPath))
	root.AddCommand(checkConfigCmd(&configPath))

	if err := root.Execute(); err != nil {
		slog.Error("pitchwatch failed", "err", err)
		os.Exit(1)
	}
}

// service is every long-lived component built from one config.
type service struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	client   *upstream.Client
	fixtures *store.Fixtures
	history  *store.Alerts
	engine   *alerts.Engine
	scanner  *scanner.Scanner
	close    func()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := alerts.CheckRules(cfg.Alerts.Rules); err != nil {
		return nil, err
	}
	setLevel(cfg.Log.Level)
	return cfg, nil
}

func build(cfg *config.Config) (*service, error) {
	if cfg.Upstream.Key() == "" {
		slog.Warn("upstream api key not set; the provider will reject requests", "env", cfg.Upstream.KeyEnv)
	}

	m := metrics.New()

	client := upstream.New(cfg.Upstream)
	client.OnRequest(func(endpoint, outcome string) {
		m.ObserveUpstream(endpoint, outcome)
		if client.PausedUntil().IsZero() {
			m.CooldownActive.Set(0)
		} else {
			m.CooldownActive.Set(1)
		}
	})

	notifier, closeNotify, err := notify.Build(cfg.Alerts)
	if err != nil {
		return nil, err
	}

	fixtures := store.NewFixtures(cfg.Scan.TerminalGrace)
	history := store.NewAlerts(cfg.Alerts.HistorySize)
	engine := alerts.New(cfg.Alerts.Rules, history, notifier)
	computer := sig.NewComputer(sig.FromConfig(cfg.Signals))

	return &service{
		cfg:      cfg,
		metrics:  m,
		client:   client,
		fixtures: fixtures,
		history:  history,
		engine:   engine,
		scanner:  scanner.New(client, computer, fixtures, engine, cfg.Scan, m),
		close: func() {
			engine.Wait()
			closeNotify()
		},
	}, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and WebSocket stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			slog.Info("config loaded",
				"fixtures", len(cfg.Scan.Fixtures),
				"discover_live", cfg.Scan.DiscoverLive,
				"interval", cfg.Scan.Interval,
				"rules", len(cfg.Alerts.Rules),
				"http_port", cfg.HTTP.Port,
			)
			svc, err := build(cfg)
			if err != nil {
				return err
			}
			return serve(*configPath, svc)
		},
	}
}

func serve(configPath string, svc *service) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go svc.fixtures.Run(ctx, svc.engine.Forget)

	hub := ws.New(svc.fixtures, svc.history, svc.cfg.Stream.Interval)
	go hub.Run(ctx)

	sched := scheduler.New(svc.scanner.Scan, svc.cfg.Scan.Interval)
	sched.OnStateChange(func(state string) {
		svc.metrics.SetSchedulerState(state, scheduler.States)
		if state != scheduler.StateScanning {
			hub.Notify()
		}
	})

	go func() {
		err := config.Watch(ctx, configPath, func(updated *config.Config) {
			if err := alerts.CheckRules(updated.Alerts.Rules); err != nil {
				slog.Warn("config reload rejected, keeping previous rules", "err", err)
				return
			}
			svc.engine.SetRules(updated.Alerts.Rules)
			svc.scanner.SetFixtures(updated.Scan.Fixtures)
			setLevel(updated.Log.Level)
			slog.Info("config hot-reloaded",
				"rules", len(updated.Alerts.Rules),
				"fixtures", len(updated.Scan.Fixtures),
			)
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", svc.cfg.HTTP.Port),
		Handler: api.New(api.Options{
			Fixtures:    svc.fixtures,
			Alerts:      svc.history,
			Engine:      svc.engine,
			Scheduler:   sched,
			Metrics:     svc.metrics.Handler(),
			Stream:      hub,
			CORSOrigins: svc.cfg.HTTP.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", svc.cfg.HTTP.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	// Run returns only after the in-flight scan, if any, has finished.
	sched.Run(ctx)

	slog.Info("pitchwatch shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "err", err)
	}
	svc.close()
	return nil
}

func scanOnceCmd(configPath *string) *cobra.Command {
	var dumpMetrics bool
	var ids []int64
	cmd := &cobra.Command{
		Use:   "scan-once",
		Short: "Run a single scan and print the resulting snapshots and alerts as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				cfg.Scan.Fixtures = ids
			}
			svc, err := build(cfg)
			if err != nil {
				return err
			}
			defer svc.close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rep, scanErr := svc.scanner.Scan(ctx)
			out := struct {
				Report   scanner.Report `json:"report"`
				Fixtures any            `json:"fixtures"`
				Alerts   any            `json:"alerts"`
			}{rep, svc.fixtures.List(), svc.history.Recent(0)}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if dumpMetrics {
				if err := svc.metrics.WriteText(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			return scanErr
		},
	}
	cmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "dump pitchwatch_* metrics to stderr after the scan")
	cmd.Flags().Int64SliceVar(&ids, "fixture", nil, "fixture ids to scan instead of the configured set")
	return cmd
}

func checkConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and its alert rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "config ok: %d rules, %d fixtures, discover_live=%t\n",
				len(cfg.Alerts.Rules), len(cfg.Scan.Fixtures), cfg.Scan.DiscoverLive)
			for _, r := range cfg.Alerts.Rules {
				fmt.Fprintf(w, "  %-20s %s %s %g (%s, %s)\n",
					r.ID, r.Signal, r.Comparator, r.Threshold, r.Policy, r.Severity)
			}
			fmt.Fprintf(w, "signals: %s\n", strings.Join(alerts.Signals(), ", "))
			return nil
		},
	}
}

func setLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}
