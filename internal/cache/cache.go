// cache.go — tab-data cache: readers, writers, maintenance, broadcast.
package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gasoline-mcp/browser-bridge/internal/codec"
)

// DataUpdateEvent kinds.
const (
	EventPageContentUpdated        = "PageContentUpdated"
	EventDomSnapshotUpdated        = "DomSnapshotUpdated"
	EventConsoleMessageAdded       = "ConsoleMessageAdded"
	EventNetworkRequestAdded       = "NetworkRequestAdded"
	EventPerformanceMetricsUpdated = "PerformanceMetricsUpdated"
	EventAccessibilityTreeUpdated  = "AccessibilityTreeUpdated"
	EventScreenshotCaptured        = "ScreenshotCaptured"
)

// DataUpdateEvent is emitted on every mutation of a tab's data.
type DataUpdateEvent struct {
	TabID     uint32
	Kind      string
	Timestamp time.Time
}

// broadcastCapacity is the fixed capacity of the lossy change-notification
// channel.
const broadcastCapacity = 1000

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	entries map[uint32]*Entry
}

// Cache holds per-tab browser data keyed by tab id.
type Cache struct {
	shards [shardCount]*shard

	broadcastMu sync.Mutex
	subscribers []chan DataUpdateEvent

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// New creates an empty tab-data cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[uint32]*Entry)}
	}
	return c
}

func (c *Cache) shardFor(tabID uint32) *shard {
	return c.shards[tabID%shardCount]
}

// entryFor returns the entry for tabID, creating it on first write.
func (c *Cache) entryFor(tabID uint32) *Entry {
	sh := c.shardFor(tabID)
	sh.mu.RLock()
	e, ok := sh.entries[tabID]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[tabID]; ok {
		return e
	}
	e = newEntry(tabID)
	sh.entries[tabID] = e
	return e
}

// lookup returns the entry for tabID without creating it, for readers.
func (c *Cache) lookup(tabID uint32) (*Entry, bool) {
	sh := c.shardFor(tabID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[tabID]
	return e, ok
}

// ---- Readers ----
// Only GetTabData counts toward the top-level hit-rate metric; the other
// readers report presence without touching the counters.

// GetTabData returns the tab's current view, counted for the hit-rate metric.
func (c *Cache) GetTabData(tabID uint32) (View, bool) {
	e, ok := c.lookup(tabID)
	if !ok {
		c.cacheMisses.Add(1)
		return View{}, false
	}
	c.cacheHits.Add(1)
	return e.View(), true
}

// GetPageContent returns the tab's page content, if any.
func (c *Cache) GetPageContent(tabID uint32) (*codec.PageContent, bool) {
	e, ok := c.lookup(tabID)
	if !ok {
		return nil, false
	}
	v := e.View()
	if v.PageContent == nil {
		return nil, false
	}
	return v.PageContent, true
}

// GetDomSnapshot returns the tab's DOM snapshot, if any.
func (c *Cache) GetDomSnapshot(tabID uint32) (*codec.DomSnapshot, bool) {
	e, ok := c.lookup(tabID)
	if !ok {
		return nil, false
	}
	v := e.View()
	if v.DomSnapshot == nil {
		return nil, false
	}
	return v.DomSnapshot, true
}

// GetConsoleLogs materialises a copy of the bounded console-message sequence.
func (c *Cache) GetConsoleLogs(tabID uint32) ([]codec.ConsoleMessage, bool) {
	e, ok := c.lookup(tabID)
	if !ok {
		return nil, false
	}
	return e.ConsoleLog.Snapshot(), true
}

// GetNetworkRequests materialises a copy of the bounded network-request
// sequence.
func (c *Cache) GetNetworkRequests(tabID uint32) ([]codec.NetworkRequest, bool) {
	e, ok := c.lookup(tabID)
	if !ok {
		return nil, false
	}
	return e.NetworkLog.Snapshot(), true
}

// GetAllTabs returns a snapshot View for every populated tab.
func (c *Cache) GetAllTabs() []View {
	var out []View
	for _, sh := range c.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			out = append(out, e.View())
		}
		sh.mu.RUnlock()
	}
	return out
}

// CacheStats is a point-in-time read of the hit/miss counters.
type CacheStats struct {
	Hits     int64
	Misses   int64
	HitRate  float64
	TabCount int
}

// GetCacheStats returns the current cache-hit statistics.
func (c *Cache) GetCacheStats() CacheStats {
	hits := c.cacheHits.Load()
	misses := c.cacheMisses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	count := 0
	for _, sh := range c.shards {
		sh.mu.RLock()
		count += len(sh.entries)
		sh.mu.RUnlock()
	}
	return CacheStats{Hits: hits, Misses: misses, HitRate: rate, TabCount: count}
}

// GetMemoryUsage returns a coarse byte estimate — good enough for the
// /health memory_usage_mb field, not a precise accounting.
func (c *Cache) GetMemoryUsage() int64 {
	var total int64
	for _, sh := range c.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			total += int64(e.ConsoleLog.Len()) * 256
			total += int64(e.NetworkLog.Len()) * 512
			v := e.View()
			if v.PageContent != nil {
				total += int64(len(v.PageContent.Text)) + int64(len(v.PageContent.HTML))
			}
			if v.Screenshot != nil {
				total += int64(len(v.Screenshot.Data))
			}
		}
		sh.mu.RUnlock()
	}
	return total
}

// ---- Writers ----

func (c *Cache) publish(tabID uint32, kind string) {
	c.broadcastMu.Lock()
	subs := append([]chan DataUpdateEvent(nil), c.subscribers...)
	c.broadcastMu.Unlock()

	ev := DataUpdateEvent{TabID: tabID, Kind: kind, Timestamp: time.Now()}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Lossy: a stalled subscriber skips this event.
		}
	}
}

// UpdatePageContent replaces page_content, updates last_updated, and emits
// PageContentUpdated.
func (c *Cache) UpdatePageContent(tabID uint32, content *codec.PageContent) {
	c.entryFor(tabID).setPageContent(content)
	c.publish(tabID, EventPageContentUpdated)
}

// UpdateDomSnapshot replaces dom_snapshot and emits DomSnapshotUpdated.
func (c *Cache) UpdateDomSnapshot(tabID uint32, snap *codec.DomSnapshot) {
	c.entryFor(tabID).setDomSnapshot(snap)
	c.publish(tabID, EventDomSnapshotUpdated)
}

// UpdatePerformanceMetrics replaces perf_metrics and emits PerformanceMetricsUpdated.
func (c *Cache) UpdatePerformanceMetrics(tabID uint32, m *codec.PerformanceMetrics) {
	c.entryFor(tabID).setPerfMetrics(m)
	c.publish(tabID, EventPerformanceMetricsUpdated)
}

// UpdateAccessibilityTree replaces a11y_tree and emits AccessibilityTreeUpdated.
func (c *Cache) UpdateAccessibilityTree(tabID uint32, tree *codec.AccessibilityTree) {
	c.entryFor(tabID).setA11yTree(tree)
	c.publish(tabID, EventAccessibilityTreeUpdated)
}

// UpdateScreenshot replaces screenshot and emits ScreenshotCaptured.
func (c *Cache) UpdateScreenshot(tabID uint32, s *codec.Screenshot) {
	c.entryFor(tabID).setScreenshot(s)
	c.publish(tabID, EventScreenshotCaptured)
}

// AddConsoleMessage appends msg, dropping the oldest while length > 1000.
func (c *Cache) AddConsoleMessage(tabID uint32, msg codec.ConsoleMessage) {
	e := c.entryFor(tabID)
	e.ConsoleLog.Append(msg)
	c.publish(tabID, EventConsoleMessageAdded)
}

// AddNetworkRequest appends req, dropping the oldest while length > 500.
func (c *Cache) AddNetworkRequest(tabID uint32, req codec.NetworkRequest) {
	e := c.entryFor(tabID)
	e.NetworkLog.Append(req)
	c.publish(tabID, EventNetworkRequestAdded)
}

// SetDebuggerAttached sets the debugger flag. No event is emitted.
func (c *Cache) SetDebuggerAttached(tabID uint32, attached bool) {
	c.entryFor(tabID).setDebuggerAttached(attached)
}

// ---- Maintenance ----

// MaintenanceConfig parameterises CleanupStaleData.
type MaintenanceConfig struct {
	DataTTL      time.Duration
	MaxCacheSize int
	// MaxMemoryBytes bounds the coarse GetMemoryUsage estimate; 0 disables
	// the memory sweep.
	MaxMemoryBytes int64
}

// CleanupStaleData is invoked periodically at cleanup_interval_secs.
//  1. TTL sweep: any tab whose now-last_updated > DataTTL is removed.
//  2. LRU sweep: if the surviving tab count exceeds MaxCacheSize, remove the
//     oldest (by last_updated) until it fits.
//  3. Memory sweep: while the usage estimate exceeds MaxMemoryBytes, keep
//     removing the oldest surviving tabs.
//
// On removal, the caller is responsible for dropping registry bindings (see
// the maintenance loop in cmd/browser-mcp-bridge) — the cache itself has no
// notion of connections.
func (c *Cache) CleanupStaleData(now time.Time, cfg MaintenanceConfig) []uint32 {
	var removed []uint32

	type aged struct {
		tabID       uint32
		lastUpdated time.Time
	}
	var surviving []aged

	for _, sh := range c.shards {
		sh.mu.Lock()
		for tabID, e := range sh.entries {
			if now.Sub(e.LastUpdated()) > cfg.DataTTL {
				delete(sh.entries, tabID)
				removed = append(removed, tabID)
				continue
			}
			surviving = append(surviving, aged{tabID, e.LastUpdated()})
		}
		sh.mu.Unlock()
	}

	sort.Slice(surviving, func(i, j int) bool {
		if surviving[i].lastUpdated.Equal(surviving[j].lastUpdated) {
			return surviving[i].tabID < surviving[j].tabID // stable tie-break
		}
		return surviving[i].lastUpdated.Before(surviving[j].lastUpdated)
	})

	evictOldest := func(n int) {
		for _, a := range surviving[:n] {
			c.Remove(a.tabID)
			removed = append(removed, a.tabID)
		}
		surviving = surviving[n:]
	}

	if cfg.MaxCacheSize > 0 && len(surviving) > cfg.MaxCacheSize {
		evictOldest(len(surviving) - cfg.MaxCacheSize)
	}

	if cfg.MaxMemoryBytes > 0 {
		for len(surviving) > 0 && c.GetMemoryUsage() > cfg.MaxMemoryBytes {
			evictOldest(1)
		}
	}

	return removed
}

// Remove explicitly evicts a single tab's data.
func (c *Cache) Remove(tabID uint32) {
	sh := c.shardFor(tabID)
	sh.mu.Lock()
	delete(sh.entries, tabID)
	sh.mu.Unlock()
}

// Subscribe returns a fresh receiver for DataUpdateEvents. Delivery is
// best-effort: a subscriber that falls behind the broadcastCapacity loses
// intermediate events but never receives corrupted ones.
func (c *Cache) Subscribe() <-chan DataUpdateEvent {
	ch := make(chan DataUpdateEvent, broadcastCapacity)
	c.broadcastMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.broadcastMu.Unlock()
	return ch
}
