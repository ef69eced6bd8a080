// Command browser-mcp-bridge runs the MCP-to-browser-extension bridge
// server: it exposes browser introspection primitives as MCP tools over
// POST /mcp while driving a fleet of browser-extension connections over
// GET /ws.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/config"
	"github.com/gasoline-mcp/browser-bridge/internal/dispatch"
	"github.com/gasoline-mcp/browser-bridge/internal/httpserver"
	"github.com/gasoline-mcp/browser-bridge/internal/logging"
	"github.com/gasoline-mcp/browser-bridge/internal/mcprpc"
	"github.com/gasoline-mcp/browser-bridge/internal/metrics"
	"github.com/gasoline-mcp/browser-bridge/internal/pending"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
	"github.com/gasoline-mcp/browser-bridge/internal/transport"
)

var (
	flagConfigPath    string
	flagPort          int
	flagHost          string
	flagLogLevel      string
	flagEnableMetrics bool
	flagMetricsPort   int
)

var rootCmd = &cobra.Command{
	Use:   "browser-mcp-bridge",
	Short: "Bridge server between MCP tool calls and browser-extension connections",
	Long: `browser-mcp-bridge exposes browser introspection primitives (page
content, DOM snapshots, JavaScript evaluation, console logs, network
traces, screenshots, performance, accessibility, tab enumeration,
debugger attach/detach) as MCP tools and resources, while driving one or
more browser extensions over persistent WebSocket connections on the
same port.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "bind port (overrides config/env)")
	rootCmd.Flags().StringVar(&flagHost, "host", "", "bind host (overrides config/env)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log filter: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&flagEnableMetrics, "enable-metrics", false, "serve GET /metrics on a separate port")
	rootCmd.Flags().IntVar(&flagMetricsPort, "metrics-port", 0, "metrics port (overrides config/env)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(&cfg, cmd)

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	reg := registry.New()
	pend := pending.New()
	c := cache.New()
	rec := metrics.New("browser_bridge")
	rec.RegisterComponentGauges("browser_bridge", reg, c)

	dispatcher := dispatch.New(reg, pend, c)
	dispatcher.RequestTimeout = cfg.RequestTimeout
	dispatcher.Recorder = rec

	rpc := mcprpc.New(dispatcher, c)
	ts := transport.New(reg, pend, c, logger)
	ts.MaxConnections = cfg.MaxConnections
	srv := httpserver.New(rpc, ts, reg, c, rec, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Router}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopMaintenance := startMaintenanceLoop(ctx, c, reg, cfg, logger)
	// Cancel before stopping: on the server-error return path the loop would
	// otherwise never see ctx.Done and stopMaintenance would block forever.
	defer func() {
		cancel()
		stopMaintenance()
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridge server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var metricsSrv *http.Server
	if cfg.EnableMetrics {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort)
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: httpserver.MetricsRouter(rec)}
		go func() {
			logger.Info("metrics server listening", zap.String("addr", metricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-sigCh:
		logger.Info("shutdown signal received")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	pend.Sweep(pending.ErrConnectionClosed)
	srv.Shutdown(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// applyFlagOverrides layers CLI flags on top of the already-resolved
// defaults < file < env cascade; flags are the outermost layer.
func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = flagHost
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if cmd.Flags().Changed("enable-metrics") {
		cfg.EnableMetrics = flagEnableMetrics
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.MetricsPort = flagMetricsPort
	}
}

// startMaintenanceLoop runs the cache's periodic cleanup on a ticker until
// ctx is cancelled, dropping registry tab bindings for every tab
// CleanupStaleData evicts.
func startMaintenanceLoop(ctx context.Context, c *cache.Cache, reg *registry.Registry, cfg config.Config, logger *zap.Logger) func() {
	interval := time.Duration(cfg.CleanupIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	idleThreshold := time.Duration(cfg.IdleThresholdSecs) * time.Second

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed := c.CleanupStaleData(now, cache.MaintenanceConfig{
					DataTTL:        time.Duration(cfg.DataTTLSecs) * time.Second,
					MaxCacheSize:   cfg.MaxCacheSize,
					MaxMemoryBytes: int64(cfg.CacheSizeMB) * 1024 * 1024,
				})
				for _, tabID := range removed {
					reg.DropTabBinding(tabID)
				}
				if n := reg.ReapStale(now, idleThreshold); n > 0 {
					logger.Debug("reaped stale connections", zap.Int("count", n))
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		<-done
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
