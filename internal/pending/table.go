// table.go — pending-request table: maps a request id to a single-shot
// completion slot with a deadline. Models a lightweight in-memory RPC.
// The slot is a buffered channel: exactly one writer and one reader per
// request, no polling loop.
package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gasoline-mcp/browser-bridge/internal/codec"
)

// DefaultTimeout is the fixed deadline applied to outbound requests.
const DefaultTimeout = 30 * time.Second

// Result is what is delivered into a slot: a Response, an ExtensionErr, a
// timeout (TimedOut set, with Err = ErrTimeout), or another Err.
type Result struct {
	Response     *codec.BrowserResponse
	ExtensionErr string // non-empty when the extension replied with {Err: "..."}
	TimedOut     bool
	Err          error // ConnectionClosed / shutdown sweep / context cancellation
}

// ErrTimeout is the sentinel the dispatcher surfaces as a request timeout.
var ErrTimeout = fmt.Errorf("request timeout")

// ErrConnectionClosed is delivered to awaiters swept at shutdown.
var ErrConnectionClosed = fmt.Errorf("connection closed")

type slot struct {
	ch       chan Result
	deadline time.Time
	once     sync.Once
}

func (s *slot) fulfill(r Result) {
	s.once.Do(func() {
		s.ch <- r
		close(s.ch)
	})
}

// Table maps in-flight request ids to their completion slots. Safe for
// concurrent insertion, lookup and removal from multiple goroutines.
type Table struct {
	mu      sync.Mutex
	entries map[string]*slot
}

// New creates an empty pending-request table.
func New() *Table {
	return &Table{entries: make(map[string]*slot)}
}

// Register mints a completion slot for requestID with the given deadline and
// inserts it into the table. The deadline is enforced by Await, and the slot
// accepts at most one delivery; later ones are dropped.
func (t *Table) Register(requestID string, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[requestID] = &slot{ch: make(chan Result, 1), deadline: deadline}
}

// Deliver routes an inbound response into the slot for requestID and removes
// the entry. If no entry exists (late response, duplicate, or already timed
// out) the response is silently dropped.
func (t *Table) Deliver(requestID string, r Result) {
	t.mu.Lock()
	s, ok := t.entries[requestID]
	if ok {
		delete(t.entries, requestID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	s.fulfill(r)
}

// Forget removes requestID without fulfilling the slot — used by the
// dispatcher when a registered request could not be encoded or enqueued, so
// it is never awaited. An Await already in progress for requestID still
// ends at its deadline.
func (t *Table) Forget(requestID string) {
	t.mu.Lock()
	delete(t.entries, requestID)
	t.mu.Unlock()
}

// Await blocks until requestID's slot is fulfilled, the deadline in Register
// passes, or ctx is cancelled. It always removes the entry before returning,
// so caller cancellation leaks nothing.
func (t *Table) Await(ctx context.Context, requestID string) Result {
	t.mu.Lock()
	s, ok := t.entries[requestID]
	t.mu.Unlock()
	if !ok {
		return Result{Err: fmt.Errorf("pending: no such request %s", requestID)}
	}

	timer := time.NewTimer(time.Until(s.deadline))
	defer timer.Stop()

	select {
	case r := <-s.ch:
		return r
	case <-timer.C:
		t.mu.Lock()
		delete(t.entries, requestID)
		t.mu.Unlock()
		s.fulfill(Result{TimedOut: true, Err: ErrTimeout})
		return Result{TimedOut: true, Err: ErrTimeout}
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.entries, requestID)
		t.mu.Unlock()
		return Result{Err: ctx.Err()}
	}
}

// Len reports the number of outstanding requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep fulfils and removes every outstanding entry with err, used on
// server shutdown: awaiters observe the error immediately rather than
// hanging until timeout.
func (t *Table) Sweep(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*slot)
	t.mu.Unlock()

	for _, s := range entries {
		s.fulfill(Result{Err: err})
	}
}
