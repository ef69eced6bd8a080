package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
)

func TestObserveToolCallAccumulatesSnapshot(t *testing.T) {
	m := New("test")
	m.ObserveToolCall("get_page_content", 10*time.Millisecond, nil)
	m.ObserveToolCall("get_page_content", 30*time.Millisecond, errors.New("boom"))

	snap := m.Collect()
	require.Equal(t, float64(2), snap.TotalCalls)
	require.Equal(t, float64(1), snap.TotalErrors)
	require.EqualValues(t, 2, snap.ObservedCount)
	require.InDelta(t, 0.040, snap.TotalSeconds, 0.001)
}

type fakeSocket struct{}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error { return nil }
func (f *fakeSocket) Close() error                                    { return nil }

func TestRegisterComponentGaugesReflectsLiveState(t *testing.T) {
	reg := registry.New()
	c := cache.New()

	conn := reg.Accept(&fakeSocket{}, "127.0.0.1:1")
	reg.BindTab(conn.ID, 7)
	c.GetTabData(7) // miss: nothing cached yet for tab 7

	m := New("test3")
	m.RegisterComponentGauges("test3", reg, c)

	mfs, err := m.Gatherer().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			values[mf.GetName()] = metric.GetGauge().GetValue()
		}
	}

	require.Equal(t, float64(1), values["test3_connections_active"])
	require.Equal(t, float64(1), values["test3_connections_total"])
	require.Equal(t, float64(1), values["test3_cache_misses_total"])
}

func TestBuildHealthStatusDerivesRates(t *testing.T) {
	m := New("test2")
	m.ObserveToolCall("get_console_messages", 100*time.Millisecond, nil)
	m.ObserveToolCall("get_console_messages", 300*time.Millisecond, errors.New("fail"))

	status := BuildHealthStatus(HealthInputs{
		StartedAt:         time.Now().Add(-2 * time.Second),
		Version:           "1.0.0",
		ActiveConnections: 3,
		CachedTabs:        5,
		MemoryUsageBytes:  2 * 1024 * 1024,
		CacheHitRate:      0.75,
		ToolSnapshot:      m.Collect(),
	})

	require.Equal(t, "ok", status.Status)
	require.Equal(t, int64(3), status.ActiveConnections)
	require.Equal(t, 5, status.CachedTabs)
	require.InDelta(t, 2.0, status.MemoryUsageMb, 0.01)
	require.InDelta(t, 0.5, status.PerformanceStats.ErrorRate, 0.001)
	require.InDelta(t, 200, status.PerformanceStats.AverageResponseTimeMs, 1)
	require.Equal(t, 0.75, status.PerformanceStats.CacheHitRate)
}
