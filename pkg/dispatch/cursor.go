package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/docdb/docdbd/pkg/storage"
)

// CursorRegistry tracks open cursors created by a find that returned more
// documents than fit in one batch. It is the minimal cursor-lifetime model
// get-more and kill-cursors need; it does not implement query evaluation,
// which is an external collaborator per scope.
type CursorRegistry struct {
	mu      sync.Mutex
	cursors map[int64]*cursorState
	nextID  int64
}

type cursorState struct {
	namespace string
	docs      []storage.Document
	pos       int
	exhaust   bool
}

// NewCursorRegistry constructs an empty registry.
func NewCursorRegistry() *CursorRegistry {
	return &CursorRegistry{cursors: make(map[int64]*cursorState)}
}

// Open stores the remaining documents of a batch and returns a cursor id, or
// 0 if docs is empty (nothing left to iterate). exhaust remembers whether the
// find that opened this cursor carried QueryFlagExhaust, so later get-mores
// against this cursor know to keep requesting the implicit continuation.
func (r *CursorRegistry) Open(namespace string, docs []storage.Document, exhaust bool) int64 {
	if len(docs) == 0 {
		return 0
	}
	id := atomic.AddInt64(&r.nextID, 1)
	r.mu.Lock()
	r.cursors[id] = &cursorState{namespace: namespace, docs: docs, exhaust: exhaust}
	r.mu.Unlock()
	return id
}

// Next returns up to n documents from cursor id, the cursor id to report
// back (0 if now exhausted), whether the cursor was found at all, and
// whether the cursor was opened in exhaust mode.
func (r *CursorRegistry) Next(id int64, n int32) ([]storage.Document, int64, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.cursors[id]
	if !ok {
		return nil, 0, false, false
	}

	remaining := cs.docs[cs.pos:]
	batch := remaining
	if n > 0 && int(n) < len(remaining) {
		batch = remaining[:n]
	}
	cs.pos += len(batch)

	if cs.pos >= len(cs.docs) {
		delete(r.cursors, id)
		return batch, 0, true, cs.exhaust
	}
	return batch, id, true, cs.exhaust
}

// Erase removes the given cursor ids and returns how many were actually
// found and removed.
func (r *CursorRegistry) Erase(ids []int64) (found int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, ok := r.cursors[id]; ok {
			delete(r.cursors, id)
			found++
		}
	}
	return found
}

// Count returns the number of presently open cursors.
func (r *CursorRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cursors)
}
