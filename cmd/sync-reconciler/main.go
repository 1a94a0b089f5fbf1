package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/client"
	"github.com/Sternrassler/sync-reconciler/pkg/compare"
	"github.com/Sternrassler/sync-reconciler/pkg/logging"
	"github.com/Sternrassler/sync-reconciler/pkg/source"
	"github.com/Sternrassler/sync-reconciler/pkg/store"
	"github.com/Sternrassler/sync-reconciler/pkg/sweep"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.Setup(logging.Config{
		Level:   getEnv("LOG_LEVEL", "info"),
		Pretty:  getEnvBool("LOG_PRETTY", false),
		Service: "sync-reconciler",
		Output:  os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("sync-reconciler failed")
	}
}

func run(ctx context.Context) error {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	userAgent := getEnv("USER_AGENT", "sync-reconciler/0.1.0")
	legacyURL := getEnv("LEGACY_URL", "")
	modernURL := getEnv("MODERN_URL", "")
	if legacyURL == "" || modernURL == "" {
		return errors.New("LEGACY_URL and MODERN_URL are required")
	}

	sweepCfg := sweep.DefaultConfig()
	sweepCfg.Interval = getEnvDuration("SWEEP_INTERVAL", sweepCfg.Interval)
	sweepCfg.Engine.Name = getEnv("SWEEP_NAME", "records")
	sweepCfg.Engine.ThreadCount = getEnvInt("THREAD_COUNT", sweepCfg.Engine.ThreadCount)
	sweepCfg.Engine.PageSize = getEnvInt("PAGE_SIZE", sweepCfg.Engine.PageSize)
	sweepCfg.Engine.MaxPageErrors = getEnvInt("MAX_PAGE_ERRORS", sweepCfg.Engine.MaxPageErrors)

	compareCfg := compare.DefaultConfig()
	compareCfg.Fields = splitList(getEnv("COMPARE_FIELDS", ""))

	// Setup Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", redisURL, err)
	}
	log.Info().Str("addr", redisURL).Msg("Connected to Redis")

	// Upstream clients
	legacy, err := newUpstream("legacy", legacyURL, userAgent, redisClient)
	if err != nil {
		return err
	}
	defer legacy.Close()

	modern, err := newUpstream("modern", modernURL, userAgent, redisClient)
	if err != nil {
		return err
	}
	defer modern.Close()

	pagerCfg := source.DefaultConfig()
	pagerCfg.PageSize = sweepCfg.Engine.PageSize
	pager := source.NewHTTPPager(legacy, pagerCfg)
	comparator := compare.NewComparator(legacy, modern, compareCfg)
	reports := store.NewStore(redisClient, store.DefaultConfig())

	runner, err := sweep.New(sweepCfg, pager.NextPageFunc(), comparator.CheckMatch(), reports)
	if err != nil {
		return fmt.Errorf("create sweep runner: %w", err)
	}

	// HTTP Server
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           newMux(redisClient, reports),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("user_agent", userAgent).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	<-runnerDone

	log.Info().Msg("sync-reconciler stopped")
	return nil
}

func newUpstream(system, baseURL, userAgent string, redisClient *redis.Client) (*client.Client, error) {
	cfg := client.DefaultConfig(system, baseURL, userAgent)
	cfg.Redis = redisClient
	c, err := client.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", system, err)
	}
	return c, nil
}

// reportReader is the read side of the report store.
type reportReader interface {
	Latest(ctx context.Context, sweep string) (*store.Report, error)
}

func newMux(redisClient *redis.Client, reports reportReader) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.HandleFunc("/reports/latest", latestReportHandler(reports))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// latestReportHandler serves the most recent stored report for ?sweep=name.
// It only reads; sweeps are started by the runner schedule.
func latestReportHandler(reports reportReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("sweep")
		if name == "" {
			http.Error(w, "sweep query parameter is required", http.StatusBadRequest)
			return
		}

		report, err := reports.Latest(r.Context(), name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "no report for sweep", http.StatusNotFound)
				return
			}
			log.Warn().Err(err).Str("sweep", name).Msg("Failed to load report")
			http.Error(w, "failed to load report", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(report)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

// splitList parses a comma separated list, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
