package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gasoline-mcp/browser-bridge/internal/codec"
)

var errConnectionClosed = errors.New("connection closed")

func TestDeliverFulfillsExactlyOnce(t *testing.T) {
	tbl := New()
	tbl.Register("req-1", time.Now().Add(DefaultTimeout))

	resp := &codec.BrowserResponse{Type: codec.RespPageContent}
	tbl.Deliver("req-1", Result{Response: resp})
	// A second delivery for the same (already-removed) id must be a no-op.
	tbl.Deliver("req-1", Result{Err: context.Canceled})

	got := tbl.Await(context.Background(), "req-1")
	if got.Err == nil {
		t.Fatalf("expected no-such-request error on repeat Await, got %+v", got)
	}
}

func TestAwaitReturnsDeliveredResponse(t *testing.T) {
	tbl := New()
	tbl.Register("req-2", time.Now().Add(DefaultTimeout))

	go func() {
		time.Sleep(5 * time.Millisecond)
		tbl.Deliver("req-2", Result{Response: &codec.BrowserResponse{Type: codec.RespConsoleMessages}})
	}()

	got := tbl.Await(context.Background(), "req-2")
	if got.Err != nil || got.Response == nil || got.Response.Type != codec.RespConsoleMessages {
		t.Fatalf("unexpected result: %+v", got)
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected entry removed after completion, Len=%d", tbl.Len())
	}
}

func TestAwaitTimesOut(t *testing.T) {
	tbl := New()
	tbl.Register("req-3", time.Now().Add(10*time.Millisecond))

	got := tbl.Await(context.Background(), "req-3")
	if !got.TimedOut || got.Err != ErrTimeout {
		t.Fatalf("expected timeout result, got %+v", got)
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected entry removed after timeout, Len=%d", tbl.Len())
	}
}

func TestSweepFulfillsAllOutstanding(t *testing.T) {
	tbl := New()
	tbl.Register("a", time.Now().Add(DefaultTimeout))
	tbl.Register("b", time.Now().Add(DefaultTimeout))

	done := make(chan Result, 2)
	go func() { done <- tbl.Await(context.Background(), "a") }()
	go func() { done <- tbl.Await(context.Background(), "b") }()

	time.Sleep(5 * time.Millisecond)
	tbl.Sweep(errConnectionClosed)

	for i := 0; i < 2; i++ {
		r := <-done
		if r.Err != errConnectionClosed {
			t.Fatalf("expected ConnectionClosed, got %+v", r)
		}
	}
}
