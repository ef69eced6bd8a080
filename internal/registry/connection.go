// connection.go — the Connection entity owned by the registry: one live
// extension socket, its outbound queue, and its tab binding.
package registry

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionID is an opaque unique identifier minted on accept, stable for
// the connection's lifetime.
type ConnectionID string

// Frame is anything that can be enqueued on a connection's outbound queue.
// The registry never interprets the bytes; internal/codec owns encoding.
type Frame []byte

// Socket is the minimal transport surface the registry depends on, so that
// internal/transport's *websocket.Conn can be swapped for a test double.
// The registry still imports gorilla/websocket for its message-type
// constants.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection is a single live extension connection. The outbound queue is
// unbounded: a single wedged extension can grow memory but cannot block
// other producers.
type Connection struct {
	ID          ConnectionID
	RemoteAddr  string
	ConnectedAt time.Time

	socket    Socket
	closed    chan struct{}
	closeOnce sync.Once

	qmu    sync.Mutex
	queue  []Frame
	notify chan struct{}

	mu           sync.RWMutex
	boundTab     *uint32
	lastActivity time.Time
}

func newConnection(id ConnectionID, remoteAddr string, socket Socket) *Connection {
	now := time.Now()
	c := &Connection{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		socket:      socket,
		closed:      make(chan struct{}),
		notify:      make(chan struct{}, 1),
	}
	c.lastActivity = now
	return c
}

// Enqueue submits a frame for delivery without blocking. Returns false if the
// connection is already closed.
func (c *Connection) Enqueue(f Frame) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	c.qmu.Lock()
	c.queue = append(c.queue, f)
	c.qmu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// QueueLen reports the number of frames awaiting the sender goroutine.
func (c *Connection) QueueLen() int {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return len(c.queue)
}

// BoundTab returns the tab currently bound to this connection, if any.
func (c *Connection) BoundTab() (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.boundTab == nil {
		return 0, false
	}
	return *c.boundTab, true
}

// bindTab sets the bound tab. At most one bound tab at a time.
func (c *Connection) bindTab(tabID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := tabID
	c.boundTab = &t
}

func (c *Connection) unbindTab(tabID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boundTab != nil && *c.boundTab == tabID {
		c.boundTab = nil
	}
}

// touch records inbound activity for the reaper.
func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the last inbound-activity timestamp.
func (c *Connection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// sendLoop drains the outbound queue into the socket. One goroutine per
// connection, started by Accept.
func (c *Connection) sendLoop() {
	for {
		select {
		case <-c.notify:
		case <-c.closed:
			return
		}
		for {
			c.qmu.Lock()
			if len(c.queue) == 0 {
				c.qmu.Unlock()
				break
			}
			f := c.queue[0]
			c.queue = c.queue[1:]
			c.qmu.Unlock()

			if err := c.socket.WriteMessage(websocket.TextMessage, f); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close tears down the connection exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.socket.Close()
	})
}

// Done is closed once the connection is torn down.
func (c *Connection) Done() <-chan struct{} { return c.closed }
