package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/diaz3618/mcp-sentinel/internal/adapter/inbound/api"
	"github.com/diaz3618/mcp-sentinel/internal/config"
	"github.com/diaz3618/mcp-sentinel/internal/gateway"
)

var devMode bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway and its management API",
	Long: `Start the aggregation gateway: connect every configured backend,
publish the aggregated capability route map, and serve the management
REST API on server.http_addr.

Examples:
  mcp-sentinel run
  mcp-sentinel --config /path/to/mcp-sentinel.yaml run
  mcp-sentinel run --dev`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (anonymous auth, allow-by-default authz)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := gracefulContext()
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gw, err := gateway.New(ctx, cfg, logger, reg)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}
	gw.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", api.NewRouter(gw))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting management API", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("management API server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during management API shutdown", "error", err)
	}
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("error during gateway shutdown", "error", err)
	}

	logger.Info("mcp-sentinel stopped")
	return nil
}

// gracefulContext returns a context cancelled on the platform's graceful
// shutdown signals. A second signal after cancellation falls through to
// the process's default handling (immediate exit).
func gracefulContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	return ctx, stop
}

// parseLogLevel converts a string log level to slog.Level. Returns
// slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
