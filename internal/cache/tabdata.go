// tabdata.go — the per-tab record and its atomic-replace snapshot.
//
// Each tab's scalar fields live behind an atomic.Pointer: a writer publishes
// a whole new snapshot in one atomic store, so readers never see a torn read
// across fields. The two bounded histories are separate RingBuffer instances
// since they mutate in place independently of the scalar snapshot.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/gasoline-mcp/browser-bridge/internal/codec"
)

const (
	consoleLogCapacity = 1000
	networkLogCapacity = 500
)

// snapshot is the atomically-replaced composite of a tab's scalar fields.
type snapshot struct {
	pageContent      *codec.PageContent
	domSnapshot      *codec.DomSnapshot
	perfMetrics      *codec.PerformanceMetrics
	a11yTree         *codec.AccessibilityTree
	screenshot       *codec.Screenshot
	debuggerAttached bool
	lastUpdated      time.Time
}

// Entry is the per-tab record held by the cache. Created on first mutation
// for a tab (see Cache.entryFor); the two log buffers have empty but
// allocated ring buffers from the start.
type Entry struct {
	TabID      uint32
	ConsoleLog *RingBuffer[codec.ConsoleMessage]
	NetworkLog *RingBuffer[codec.NetworkRequest]

	snap atomic.Pointer[snapshot]
}

func newEntry(tabID uint32) *Entry {
	e := &Entry{
		TabID:      tabID,
		ConsoleLog: NewRingBuffer[codec.ConsoleMessage](consoleLogCapacity),
		NetworkLog: NewRingBuffer[codec.NetworkRequest](networkLogCapacity),
	}
	e.snap.Store(&snapshot{lastUpdated: time.Now()})
	return e
}

// View is a consistent, immutable point-in-time read of a tab's scalar
// fields — readers retain this reference and see no torn state even while
// a writer concurrently publishes a new snapshot.
type View struct {
	TabID            uint32
	PageContent      *codec.PageContent
	DomSnapshot      *codec.DomSnapshot
	PerfMetrics      *codec.PerformanceMetrics
	A11yTree         *codec.AccessibilityTree
	Screenshot       *codec.Screenshot
	DebuggerAttached bool
	LastUpdated      time.Time
}

// View returns a consistent snapshot of the entry's scalar fields.
func (e *Entry) View() View {
	s := e.snap.Load()
	return View{
		TabID:            e.TabID,
		PageContent:      s.pageContent,
		DomSnapshot:      s.domSnapshot,
		PerfMetrics:      s.perfMetrics,
		A11yTree:         s.a11yTree,
		Screenshot:       s.screenshot,
		DebuggerAttached: s.debuggerAttached,
		LastUpdated:      s.lastUpdated,
	}
}

// LastUpdated is used by maintenance's TTL/LRU sweep without building a
// full View.
func (e *Entry) LastUpdated() time.Time {
	return e.snap.Load().lastUpdated
}

// IsFresh reports whether this entry's last update is within maxAge of now.
// A timestamp in the future (clock skew) is never fresh and is not
// normalised.
func (e *Entry) IsFresh(now time.Time, maxAge time.Duration) bool {
	last := e.LastUpdated()
	if now.Before(last) {
		return false
	}
	return now.Sub(last) <= maxAge
}

// mutate publishes a new snapshot derived from the current one via fn,
// bumping last_updated. The whole operation is a single atomic store, so
// concurrent readers never observe a partially-updated composite.
func (e *Entry) mutate(fn func(s snapshot) snapshot) {
	cur := *e.snap.Load()
	next := fn(cur)
	next.lastUpdated = time.Now()
	e.snap.Store(&next)
}

func (e *Entry) setPageContent(c *codec.PageContent) {
	e.mutate(func(s snapshot) snapshot { s.pageContent = c; return s })
}

func (e *Entry) setDomSnapshot(d *codec.DomSnapshot) {
	e.mutate(func(s snapshot) snapshot { s.domSnapshot = d; return s })
}

func (e *Entry) setPerfMetrics(p *codec.PerformanceMetrics) {
	e.mutate(func(s snapshot) snapshot { s.perfMetrics = p; return s })
}

func (e *Entry) setA11yTree(a *codec.AccessibilityTree) {
	e.mutate(func(s snapshot) snapshot { s.a11yTree = a; return s })
}

func (e *Entry) setScreenshot(sc *codec.Screenshot) {
	e.mutate(func(s snapshot) snapshot { s.screenshot = sc; return s })
}

// setDebuggerAttached updates the debugger flag without emitting a
// DataUpdateEvent.
func (e *Entry) setDebuggerAttached(attached bool) {
	e.mutate(func(s snapshot) snapshot { s.debuggerAttached = attached; return s })
}
