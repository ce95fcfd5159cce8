package curop

import (
	"sync"
	"sync/atomic"
)

// Registry is the process-global set of live clients, protected by one
// mutex. Membership tracks client lifetime: a connection registers on
// accept and unregisters on close.
type Registry struct {
	mu        sync.RWMutex
	clients   map[uint64]*Client
	nextID    uint64
	nextOpID  uint64
	fsyncLock atomic.Bool
}

// NextOpID allocates a process-wide unique operation id.
func (r *Registry) NextOpID() uint64 {
	return atomic.AddUint64(&r.nextOpID, 1)
}

// NewRegistry constructs an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint64]*Client)}
}

// NewClient allocates a fresh client id, registers the client, and returns
// it.
func (r *Registry) NewClient(remote string) *Client {
	id := atomic.AddUint64(&r.nextID, 1)
	c := NewClient(id, remote)

	r.mu.Lock()
	r.clients[id] = c
	r.mu.Unlock()

	return c
}

// Remove unregisters a client, typically on connection close.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// OpInfo is the serialized view of a client's active operation, as returned
// by ListInProgress.
type OpInfo struct {
	ClientID  uint64
	OpID      uint64
	Remote    string
	Opcode    string
	Namespace string
	Active    bool
}

// Filter selects which operations ListInProgress returns. A nil or
// zero-value Filter matches everything.
type Filter struct {
	Namespace string // prefix match against OpInfo.Namespace, empty matches all
}

func (f Filter) matches(info OpInfo) bool {
	if f.Namespace == "" {
		return true
	}
	ns := info.Namespace
	if len(ns) < len(f.Namespace) {
		return false
	}
	return ns[:len(f.Namespace)] == f.Namespace
}

// ListInProgress snapshots, under the registry mutex, the top current-op of
// each client, applies filter, and returns the matches plus whether the
// server is presently fsync-locked.
func (r *Registry) ListInProgress(filter Filter) (ops []OpInfo, fsyncLocked bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		op := c.ActiveOp()
		if op == nil {
			continue
		}
		info := OpInfo{
			ClientID:  c.ID,
			OpID:      op.ID,
			Remote:    op.Remote,
			Opcode:    op.Opcode,
			Namespace: op.Namespace,
			Active:    !op.Done(),
		}
		if filter.matches(info) {
			ops = append(ops, info)
		}
	}
	return ops, r.fsyncLock.Load()
}

// Kill locates the operation with the given id across all clients and sets
// its interrupted flag. It reports whether a matching op was found.
func (r *Registry) Kill(opID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		c.mu.Lock()
		for _, op := range c.stack {
			if op.ID == opID {
				op.Interrupt()
				c.mu.Unlock()
				return true
			}
		}
		c.mu.Unlock()
	}
	return false
}

// SetFsyncLocked records whether the server is presently under an
// administrative fsync lock, surfaced by ListInProgress.
func (r *Registry) SetFsyncLocked(locked bool) {
	r.fsyncLock.Store(locked)
}

// FsyncLocked reports the current fsync-lock state.
func (r *Registry) FsyncLocked() bool {
	return r.fsyncLock.Load()
}

// Count returns the number of currently registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
