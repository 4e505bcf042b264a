// Command calorie-report serves the profile, TDEE and forecast API and runs
// the weekly TDEE job.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banshee-data/calorie.report/internal/api"
	"github.com/banshee-data/calorie.report/internal/config"
	"github.com/banshee-data/calorie.report/internal/db"
	"github.com/banshee-data/calorie.report/internal/job"
	"github.com/banshee-data/calorie.report/internal/monitoring"
	"github.com/banshee-data/calorie.report/internal/timeutil"
	"github.com/banshee-data/calorie.report/internal/version"
)

type options struct {
	configPath  string
	dbPath      string
	listen      string
	logLevel    string
	logFormat   string
	runOnce     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("calorie-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to tuning config JSON (defaults built in)")
	fs.StringVar(&o.dbPath, "db-path", "calorie.db", "Path to the SQLite database")
	fs.StringVar(&o.listen, "listen", ":8080", "Listen address")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "console", "Log format: console or json")
	fs.BoolVar(&o.runOnce, "run-once", false, "Run the TDEE job once and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.listen == "" && !o.runOnce && !o.showVersion {
		return o, errors.New("listen address is required")
	}
	return o, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		l := monitoring.Logger()
		l.Fatal().Err(err).Msg("calorie-report exited")
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	monitoring.Init(monitoring.Config{Level: o.logLevel, Format: o.logFormat, Output: stderr})
	log := monitoring.Logger()

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}

	store, err := db.NewDB(o.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	worker := job.NewTDEEWorker(store, cfg, timeutil.RealClock{}, metrics)
	if o.runOnce {
		sum, err := worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "run %s: processed=%d updated=%d skipped=%d failed=%d\n",
			sum.RunID, sum.Processed, sum.Updated, sum.Skipped, sum.Failed)
		return nil
	}

	mux := api.NewServer(store, cfg, metrics, reg).ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return err
	}
	server := &http.Server{
		Addr:              o.listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker.Start()
	log.Info().
		Dur("interval", worker.Interval).
		Int("lookback_days", worker.LookbackDays).
		Msg("tdee worker started")

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", o.listen).Str("version", version.Version).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	log.Info().Msg("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}
	wg.Wait()

	worker.Stop()
	log.Info().Msg("Graceful shutdown complete")
	return err
}
