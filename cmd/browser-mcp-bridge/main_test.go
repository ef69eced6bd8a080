package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/gasoline-mcp/browser-bridge/internal/config"
)

func TestApplyFlagOverridesOnlyTouchesChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&flagPort, "port", 0, "")
	cmd.Flags().StringVar(&flagHost, "host", "", "")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "")
	cmd.Flags().BoolVar(&flagEnableMetrics, "enable-metrics", false, "")
	cmd.Flags().IntVar(&flagMetricsPort, "metrics-port", 0, "")

	require.NoError(t, cmd.ParseFlags([]string{"--port=7777"}))

	cfg := config.Defaults()
	originalHost := cfg.Host
	applyFlagOverrides(&cfg, cmd)

	require.Equal(t, 7777, cfg.Port)
	require.Equal(t, originalHost, cfg.Host)
}
