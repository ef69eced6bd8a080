package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/codec"
	"github.com/gasoline-mcp/browser-bridge/internal/pending"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
)

// fakeSocket is a Socket test double that records writes instead of hitting
// a real network connection.
type fakeSocket struct {
	mu      sync.Mutex
	written [][]byte
}

func newFakeSocket() *fakeSocket { return &fakeSocket{} }

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeSocket) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func (f *fakeSocket) Close() error { return nil }

func newHarness() (*Dispatcher, *registry.Registry) {
	reg := registry.New()
	tbl := pending.New()
	c := cache.New()
	d := New(reg, tbl, c)
	return d, reg
}

func TestDispatchFastPathCacheHit(t *testing.T) {
	d, reg := newHarness()
	sock := newFakeSocket()
	conn := reg.Accept(sock, "127.0.0.1:1")
	reg.BindTab(conn.ID, 7)

	d.Cache.UpdatePageContent(7, &codec.PageContent{URL: "https://cached", Title: "cached", Text: "body"})

	res, err := d.Dispatch(context.Background(), ToolGetPageContent, Args{"tabId": float64(7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pc, ok := res.(PageContentResult)
	if !ok || !pc.Cached {
		t.Fatalf("expected cached page content result, got %+v", res)
	}
	if len(sock.snapshot()) != 0 {
		t.Fatalf("fast path must not send any outbound frame")
	}
}

func TestDispatchSlowPathCorrelation(t *testing.T) {
	d, reg := newHarness()
	sock := newFakeSocket()
	conn := reg.Accept(sock, "127.0.0.1:1")
	reg.BindTab(conn.ID, 9)

	done := make(chan struct{})
	var dispatchResult any
	var dispatchErr error
	go func() {
		dispatchResult, dispatchErr = d.Dispatch(context.Background(), ToolGetPageContent, Args{"tabId": float64(9)})
		close(done)
	}()

	var requestID string
	for i := 0; i < 200; i++ {
		frames := sock.snapshot()
		if len(frames) == 1 {
			res, err := codec.ParseFrame(frames[0])
			if err != nil || res.Envelope == nil {
				t.Fatalf("expected a strict request envelope: %v", err)
			}
			requestID = res.Envelope.RequestID
			break
		}
		time.Sleep(time.Millisecond)
	}
	if requestID == "" {
		t.Fatalf("expected exactly one outbound request frame")
	}

	d.Pending.Deliver(requestID, pending.Result{Response: &codec.BrowserResponse{
		Type:        codec.RespPageContent,
		PageContent: &codec.PageContent{URL: "https://live", Title: "live", Text: "live body"},
	}})

	<-done
	if dispatchErr != nil {
		t.Fatalf("unexpected error: %v", dispatchErr)
	}
	pc, ok := dispatchResult.(PageContentResult)
	if !ok || pc.Cached || pc.URL != "https://live" {
		t.Fatalf("unexpected slow-path result: %+v", dispatchResult)
	}

	cached, ok := d.Cache.GetPageContent(9)
	if !ok || cached.URL != "https://live" {
		t.Fatalf("expected cache write-back after slow path, got %+v", cached)
	}
}

func TestDispatchNoConnectionIsImmediateError(t *testing.T) {
	d, _ := newHarness()
	_, err := d.Dispatch(context.Background(), ToolGetPageContent, Args{"tabId": float64(42)})
	de, ok := err.(*Error)
	if !ok || de.Code != CodeConnectionNotAvailable {
		t.Fatalf("expected ConnectionNotAvailable, got %+v", err)
	}
}

func TestDispatchTimesOutWhenNoResponse(t *testing.T) {
	d, reg := newHarness()
	d.RequestTimeout = 20 * time.Millisecond
	sock := newFakeSocket()
	conn := reg.Accept(sock, "127.0.0.1:1")
	reg.BindTab(conn.ID, 42)

	_, err := d.Dispatch(context.Background(), ToolGetPageContent, Args{"tabId": float64(42)})
	de, ok := err.(*Error)
	if !ok || de.Code != CodeRequestTimeout {
		t.Fatalf("expected RequestTimeout, got %+v", err)
	}
}

func TestZeroTabIDIsTabNotFound(t *testing.T) {
	d, _ := newHarness()
	_, err := d.Dispatch(context.Background(), ToolGetPageContent, Args{"tabId": float64(0)})
	de, ok := err.(*Error)
	if !ok || de.Code != CodeTabNotFound {
		t.Fatalf("expected TabNotFound for zero tab id, got %+v", err)
	}
}

func TestAttachDebuggerRequiresExplicitTabID(t *testing.T) {
	d, _ := newHarness()
	_, err := d.Dispatch(context.Background(), ToolAttachDebugger, Args{})
	de, ok := err.(*Error)
	if !ok || de.Code != CodeInvalidParameters {
		t.Fatalf("expected InvalidParameters without tabId, got %+v", err)
	}
}

func TestExecuteJavascriptRequiresCode(t *testing.T) {
	d, reg := newHarness()
	sock := newFakeSocket()
	conn := reg.Accept(sock, "127.0.0.1:1")
	reg.BindTab(conn.ID, 5)

	_, err := d.Dispatch(context.Background(), ToolExecuteJavascript, Args{"tabId": float64(5)})
	de, ok := err.(*Error)
	if !ok || de.Code != CodeInvalidParameters {
		t.Fatalf("expected InvalidParameters without code, got %+v", err)
	}
}

func TestResourceContentNotFound(t *testing.T) {
	d, _ := newHarness()
	_, err := d.ResourceContent("browser://tab/3/content")
	de, ok := err.(*Error)
	if !ok || de.Code != CodeResourceNotFound {
		t.Fatalf("expected ResourceNotFound, got %+v", err)
	}
}

func TestResourceContentServesCachedPageContent(t *testing.T) {
	d, _ := newHarness()
	d.Cache.UpdatePageContent(3, &codec.PageContent{URL: "https://r", Title: "r", Text: "body"})

	got, err := d.ResourceContent("browser://tab/3/content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pc, ok := got.(*codec.PageContent)
	if !ok || pc.URL != "https://r" {
		t.Fatalf("unexpected resource content: %+v", got)
	}
}
