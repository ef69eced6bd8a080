// registry.go — connection registry: tracks live extension connections,
// tab<->connection bindings, and drives the reaper.
//
// The connection table is a sharded hash map with per-shard mutex: readers
// may concurrently inspect distinct keys, and no shard lock is held across
// a blocking operation.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const shardCount = 16

type shard struct {
	mu          sync.RWMutex
	connections map[ConnectionID]*Connection
}

// Registry tracks every live extension connection and its tab binding.
type Registry struct {
	shards [shardCount]*shard

	tabMu      sync.RWMutex
	tabToConn  map[uint32]ConnectionID // bound_tab -> connection; the most recent BindTab wins
	connToTabs map[ConnectionID]map[uint32]struct{}

	totalConnections  atomic.Int64
	activeConnections atomic.Int64
	messagesSent      atomic.Int64
	messagesReceived  atomic.Int64
	connectionErrors  atomic.Int64
}

// New creates an empty connection registry.
func New() *Registry {
	r := &Registry{
		tabToConn:  make(map[uint32]ConnectionID),
		connToTabs: make(map[ConnectionID]map[uint32]struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{connections: make(map[ConnectionID]*Connection)}
	}
	return r
}

func (r *Registry) shardFor(id ConnectionID) *shard {
	h := uint32(2166136261)
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return r.shards[h%shardCount]
}

// Accept splits socket into a tracked Connection, inserts it keyed by a
// fresh ConnectionID, increments counters, and starts its sender goroutine.
// The caller owns reading inbound frames (see transport.Server.ServeWS) and must
// call RemoveConnection when the receive loop exits.
func (r *Registry) Accept(socket Socket, remoteAddr string) *Connection {
	id := ConnectionID(uuid.NewString())
	conn := newConnection(id, remoteAddr, socket)

	sh := r.shardFor(id)
	sh.mu.Lock()
	sh.connections[id] = conn
	sh.mu.Unlock()

	r.totalConnections.Add(1)
	r.activeConnections.Add(1)

	go conn.sendLoop()
	return conn
}

// Touch marks the connection as recently active.
func (r *Registry) Touch(id ConnectionID) {
	if c, ok := r.get(id); ok {
		c.touch()
	}
}

func (r *Registry) get(id ConnectionID) (*Connection, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.connections[id]
	return c, ok
}

// BindTab sets bound_tab for id to tabID, recording the tab->connection
// mapping. A tab may only ever be bound to one connection; a later bind
// for the same tab from a different connection supersedes the former.
func (r *Registry) BindTab(id ConnectionID, tabID uint32) {
	c, ok := r.get(id)
	if !ok {
		return
	}
	c.bindTab(tabID)

	r.tabMu.Lock()
	r.tabToConn[tabID] = id
	if r.connToTabs[id] == nil {
		r.connToTabs[id] = make(map[uint32]struct{})
	}
	r.connToTabs[id][tabID] = struct{}{}
	r.tabMu.Unlock()
}

// UnbindTab clears bound_tab for id when it currently matches tabID.
func (r *Registry) UnbindTab(id ConnectionID, tabID uint32) {
	c, ok := r.get(id)
	if !ok {
		return
	}
	c.unbindTab(tabID)

	r.tabMu.Lock()
	if bound, ok := r.tabToConn[tabID]; ok && bound == id {
		delete(r.tabToConn, tabID)
	}
	delete(r.connToTabs[id], tabID)
	r.tabMu.Unlock()
}

// DropTabBinding clears tabID's binding regardless of which connection
// holds it — used by the cache maintenance sweep when a tab's data is
// evicted and no specific connection id is at hand.
func (r *Registry) DropTabBinding(tabID uint32) {
	r.tabMu.Lock()
	id, ok := r.tabToConn[tabID]
	if ok {
		delete(r.tabToConn, tabID)
		delete(r.connToTabs[id], tabID)
	}
	r.tabMu.Unlock()

	if ok {
		if c, found := r.get(id); found {
			c.unbindTab(tabID)
		}
	}
}

// FindConnectionForTab returns the connection bound to tabID. When several
// connections have bound the same tab, the most recent BindTab wins.
func (r *Registry) FindConnectionForTab(tabID uint32) (*Connection, bool) {
	r.tabMu.RLock()
	id, ok := r.tabToConn[tabID]
	r.tabMu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.get(id)
}

// AnyConnection returns an arbitrary live connection — used by
// get_browser_tabs, which is a global operation dispatched via any active
// connection (documented limitation: see DESIGN.md).
func (r *Registry) AnyConnection() (*Connection, bool) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, c := range sh.connections {
			sh.mu.RUnlock()
			return c, true
		}
		sh.mu.RUnlock()
	}
	return nil, false
}

// BroadcastToTab enqueues a copy of message on the connection bound to tabID
// (the registry holds one binding per tab) and returns the number of
// connections that accepted it: 1, or 0 when the tab is unbound or the
// connection is closed. A failed enqueue is not recorded in any counter.
func (r *Registry) BroadcastToTab(tabID uint32, message Frame) int {
	conn, ok := r.FindConnectionForTab(tabID)
	if !ok {
		return 0
	}
	clone := make(Frame, len(message))
	copy(clone, message)
	if conn.Enqueue(clone) {
		r.messagesSent.Add(1)
		return 1
	}
	return 0
}

// RemoveConnection removes id, decrements the active-connection counter,
// drops its tab bindings, and closes the connection. Pending requests owned
// by this connection are not actively cancelled here — they are left to
// expire via timeout.
func (r *Registry) RemoveConnection(id ConnectionID) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	c, ok := sh.connections[id]
	if ok {
		delete(sh.connections, id)
	}
	sh.mu.Unlock()
	if !ok {
		return
	}

	r.tabMu.Lock()
	for tabID := range r.connToTabs[id] {
		if bound, ok := r.tabToConn[tabID]; ok && bound == id {
			delete(r.tabToConn, tabID)
		}
	}
	delete(r.connToTabs, id)
	r.tabMu.Unlock()

	r.activeConnections.Add(-1)
	c.Close()
}

// ReapStale removes every connection whose last activity is older than
// idleThreshold relative to now.
func (r *Registry) ReapStale(now time.Time, idleThreshold time.Duration) int {
	var stale []ConnectionID
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, c := range sh.connections {
			if now.Sub(c.LastActivity()) > idleThreshold {
				stale = append(stale, id)
			}
		}
		sh.mu.RUnlock()
	}
	for _, id := range stale {
		r.RemoveConnection(id)
	}
	return len(stale)
}

// Stats is a point-in-time snapshot of the registry's counters.
type Stats struct {
	TotalConnections  int64
	ActiveConnections int64
	MessagesSent      int64
	MessagesReceived  int64
	ConnectionErrors  int64
}

func (r *Registry) Stats() Stats {
	return Stats{
		TotalConnections:  r.totalConnections.Load(),
		ActiveConnections: r.activeConnections.Load(),
		MessagesSent:      r.messagesSent.Load(),
		MessagesReceived:  r.messagesReceived.Load(),
		ConnectionErrors:  r.connectionErrors.Load(),
	}
}

// ConnectionsForTab returns the ids of every connection currently bound to
// tabID (at most one under the single-binding invariant, but callers treat
// it as a list).
func (r *Registry) ConnectionsForTab(tabID uint32) []ConnectionID {
	r.tabMu.RLock()
	defer r.tabMu.RUnlock()
	if id, ok := r.tabToConn[tabID]; ok {
		return []ConnectionID{id}
	}
	return nil
}

// RecordSent increments the messages_sent counter — called by the dispatcher
// after a frame is accepted onto a connection's outbound queue.
func (r *Registry) RecordSent() { r.messagesSent.Add(1) }

// RecordReceived increments the messages_received counter — called by the
// transport layer for every inbound frame read, before it is decoded.
func (r *Registry) RecordReceived() { r.messagesReceived.Add(1) }

// RecordConnectionError increments the connection_errors counter.
func (r *Registry) RecordConnectionError() { r.connectionErrors.Add(1) }

// Shutdown closes every tracked connection, used on server shutdown.
func (r *Registry) Shutdown() {
	var ids []ConnectionID
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id := range sh.connections {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	for _, id := range ids {
		r.RemoveConnection(id)
	}
}
