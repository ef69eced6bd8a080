package registry

import (
	"testing"
	"time"
)

// fakeSocket is a Socket test double that records writes instead of hitting
// a real network connection.
type fakeSocket struct {
	written [][]byte
	closed  bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{}
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.written = append(f.written, data)
	return nil
}

func (f *fakeSocket) Close() error {
	f.closed = true
	return nil
}

func TestAcceptIncrementsCounters(t *testing.T) {
	r := New()
	conn := r.Accept(newFakeSocket(), "127.0.0.1:1234")
	defer r.RemoveConnection(conn.ID)

	stats := r.Stats()
	if stats.TotalConnections != 1 || stats.ActiveConnections != 1 {
		t.Fatalf("unexpected stats after accept: %+v", stats)
	}
}

func TestBindAndFindConnectionForTab(t *testing.T) {
	r := New()
	conn := r.Accept(newFakeSocket(), "127.0.0.1:1")
	defer r.RemoveConnection(conn.ID)

	r.BindTab(conn.ID, 42)
	found, ok := r.FindConnectionForTab(42)
	if !ok || found.ID != conn.ID {
		t.Fatalf("expected to find bound connection, ok=%v found=%+v", ok, found)
	}

	r.UnbindTab(conn.ID, 42)
	if _, ok := r.FindConnectionForTab(42); ok {
		t.Fatalf("expected tab unbound")
	}
}

func TestConnectionsForTabListsBoundConnection(t *testing.T) {
	r := New()
	conn := r.Accept(newFakeSocket(), "127.0.0.1:1")
	defer r.RemoveConnection(conn.ID)
	r.BindTab(conn.ID, 5)

	ids := r.ConnectionsForTab(5)
	if len(ids) != 1 || ids[0] != conn.ID {
		t.Fatalf("expected the bound connection listed, got %v", ids)
	}
	if ids := r.ConnectionsForTab(6); ids != nil {
		t.Fatalf("expected no connections for an unbound tab, got %v", ids)
	}
}

func TestRemoveConnectionClearsBindings(t *testing.T) {
	r := New()
	conn := r.Accept(newFakeSocket(), "127.0.0.1:1")
	r.BindTab(conn.ID, 7)

	r.RemoveConnection(conn.ID)

	if _, ok := r.FindConnectionForTab(7); ok {
		t.Fatalf("expected binding removed along with connection")
	}
	stats := r.Stats()
	if stats.ActiveConnections != 0 {
		t.Fatalf("expected active_connections back to 0, got %d", stats.ActiveConnections)
	}
}

func TestReapStaleRemovesIdleConnections(t *testing.T) {
	r := New()
	conn := r.Accept(newFakeSocket(), "127.0.0.1:1")

	// Let last_activity age past the threshold before reaping.
	time.Sleep(5 * time.Millisecond)
	n := r.ReapStale(time.Now(), time.Millisecond)
	if n != 1 {
		t.Fatalf("expected 1 stale connection reaped, got %d", n)
	}
	if _, ok := r.get(conn.ID); ok {
		t.Fatalf("expected connection removed by reaper")
	}
}

// blockedSocket never completes a write, simulating a wedged extension.
type blockedSocket struct {
	release chan struct{}
}

func (b *blockedSocket) WriteMessage(messageType int, data []byte) error {
	<-b.release
	return nil
}

func (b *blockedSocket) Close() error { return nil }

func TestEnqueueNeverBlocksOnWedgedSocket(t *testing.T) {
	r := New()
	sock := &blockedSocket{release: make(chan struct{})}
	conn := r.Accept(sock, "127.0.0.1:1")
	defer func() {
		close(sock.release)
		r.RemoveConnection(conn.ID)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			if !conn.Enqueue(Frame(`{"type":"heartbeat"}`)) {
				t.Errorf("Enqueue returned false on an open connection")
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Enqueue blocked behind a wedged socket")
	}
}

func TestBroadcastToTabCountsSent(t *testing.T) {
	r := New()
	conn := r.Accept(newFakeSocket(), "127.0.0.1:1")
	defer r.RemoveConnection(conn.ID)
	r.BindTab(conn.ID, 3)

	sent := r.BroadcastToTab(3, Frame(`{"type":"heartbeat"}`))
	if sent != 1 {
		t.Fatalf("expected 1 recipient, got %d", sent)
	}

	sent = r.BroadcastToTab(999, Frame(`{"type":"heartbeat"}`))
	if sent != 0 {
		t.Fatalf("expected 0 recipients for unbound tab, got %d", sent)
	}
}
