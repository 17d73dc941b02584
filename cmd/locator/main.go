package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/locator-project/locator/internal/locate"
	"github.com/locator-project/locator/internal/partition"
	"github.com/locator-project/locator/internal/server"
	"github.com/locator-project/locator/internal/store"
	"github.com/locator-project/locator/internal/worker"

	_ "net/http/pprof"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultBindAddr    = ":8080"
	defaultMetricsAddr = ":9090"
)

var errStorageUnreachable = errors.New("storage unreachable")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errStorageUnreachable) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, log, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", errStorageUnreachable, err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	engine, err := locate.New(&locate.Config{
		Logger: log,
		Store:  st,
		DB:     st.Pool(),
	})
	if err != nil {
		return fmt.Errorf("failed to create locate engine: %w", err)
	}

	serverCfg := server.Config{
		AuthToken: cfg.AuthToken,
	}
	handler, err := server.NewHandler(log, serverCfg, engine, st, st.Pool())
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}
	srv, err := server.New(log, serverCfg, handler)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	wrk, err := worker.New(&worker.Config{
		Logger:           log,
		Store:            st,
		BatchSize:        cfg.WorkerBatch,
		Concurrency:      cfg.WorkerConcurrency,
		GNSSMaxAccuracyM: cfg.GNSSMaxAccuracyM,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	partitions, err := partition.New(&partition.Config{
		Logger:      log,
		Store:       st,
		RetainDays:  cfg.RetainDays,
		HorizonDays: cfg.HorizonDays,
	})
	if err != nil {
		return fmt.Errorf("failed to create partition manager: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.BindAddr, err)
	}
	log.Info("listening", "address", listener.Addr().String())

	errCh := srv.Start(ctx, cancel, listener)

	runErr := make(chan error, 2)
	go func() {
		defer cancel()
		if err := partitions.Run(ctx); err != nil {
			log.Error("partition manager exited with error", "error", err)
			runErr <- err
		}
	}()
	go func() {
		defer cancel()
		if err := wrk.Run(ctx); err != nil {
			log.Error("worker exited with error", "error", err)
			runErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("context cancelled, server stopped")
		return nil
	case err := <-errCh:
		return err
	case err := <-runErr:
		return err
	}
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	MetricsAddr string

	BindAddr    string
	DatabaseURL string
	AuthToken   string

	RetainDays        int
	HorizonDays       int
	WorkerBatch       int
	WorkerConcurrency int
	GNSSMaxAccuracyM  float64
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return i, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}

func loadConfig() (Config, error) {
	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: METRICS_ADDR)")
	flag.StringVar(&cfg.BindAddr, "bind-addr", getenv("BIND_ADDR", defaultBindAddr), "address to serve the API on (env: BIND_ADDR)")
	flag.StringVar(&cfg.DatabaseURL, "database-url", getenv("DATABASE_URL", ""), "postgres connection url (env: DATABASE_URL)")
	flag.StringVar(&cfg.AuthToken, "auth-token", getenv("AUTH_TOKEN", ""), "bearer token guarding the API (env: AUTH_TOKEN)")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}

	var err error
	if cfg.RetainDays, err = getenvInt("RETAIN_DAYS", 120); err != nil {
		return Config{}, err
	}
	if cfg.HorizonDays, err = getenvInt("PARTITION_HORIZON_DAYS", 7); err != nil {
		return Config{}, err
	}
	if cfg.WorkerBatch, err = getenvInt("WORKER_BATCH", 256); err != nil {
		return Config{}, err
	}
	if cfg.WorkerConcurrency, err = getenvInt("WORKER_CONCURRENCY", 2); err != nil {
		return Config{}, err
	}
	if cfg.GNSSMaxAccuracyM, err = getenvFloat("GNSS_MAX_ACCURACY_M", 200); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url is empty (set DATABASE_URL or --database-url)")
	}
	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("auth token is empty (set AUTH_TOKEN or --auth-token)")
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
