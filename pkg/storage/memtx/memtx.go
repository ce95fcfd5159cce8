// Package memtx is an in-memory storage.Engine used by unit tests that need
// a Transactor without standing up Badger's on-disk files.
package memtx

import (
	"context"
	"sync"

	"github.com/docdb/docdbd/pkg/storage"
)

// Engine is a sync.Mutex-guarded, map-based storage.Engine. Every
// WithTransaction call takes the engine's single write lock, which is
// sufficient to give callers the serializable-transaction illusion the
// production Badger engine actually provides.
type Engine struct {
	mu          sync.Mutex
	collections map[string]*collection
}

// New constructs an empty in-memory engine.
func New() *Engine {
	return &Engine{collections: make(map[string]*collection)}
}

func (e *Engine) WithTransaction(_ context.Context, fn func(tx storage.Transaction) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	saved := make(map[string]*collection, len(e.collections))
	for ns, c := range e.collections {
		cp := &collection{seq: c.seq}
		for _, d := range c.docs {
			_ = cp.Insert(d)
		}
		saved[ns] = cp
	}

	tx := &txn{engine: e}
	if err := fn(tx); err != nil {
		e.collections = saved
		return err
	}
	return nil
}

func (e *Engine) Healthcheck(context.Context) error { return nil }

func (e *Engine) Close() error { return nil }

type txn struct {
	engine *Engine
}

func (t *txn) Collection(namespace string) storage.Collection {
	c, ok := t.engine.collections[namespace]
	if !ok {
		c = &collection{}
		t.engine.collections[namespace] = c
	}
	return c
}

type collection struct {
	docs []storage.Document
	seq  uint64
}

func matches(doc, selector storage.Document) bool {
	for k, v := range selector {
		dv, ok := doc[k]
		if !ok || dv != v {
			return false
		}
	}
	return true
}

func (c *collection) Insert(doc storage.Document) error {
	cp := storage.Document{}
	for k, v := range doc {
		cp[k] = v
	}
	c.docs = append(c.docs, cp)
	return nil
}

func (c *collection) FindOne(selector storage.Document) (storage.Document, bool, error) {
	for _, d := range c.docs {
		if matches(d, selector) {
			return d, true, nil
		}
	}
	return nil, false, nil
}

func (c *collection) FindAll(selector storage.Document) ([]storage.Document, error) {
	var out []storage.Document
	for _, d := range c.docs {
		if matches(d, selector) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *collection) Update(selector, update storage.Document, upsert, multi bool) (matched, modified int, err error) {
	for i, d := range c.docs {
		if !matches(d, selector) {
			continue
		}
		matched++
		for k, v := range update {
			c.docs[i][k] = v
		}
		modified++
		if !multi {
			return matched, modified, nil
		}
	}
	if matched == 0 && upsert {
		doc := storage.Document{}
		for k, v := range selector {
			doc[k] = v
		}
		for k, v := range update {
			doc[k] = v
		}
		c.docs = append(c.docs, doc)
		matched = 1
		modified = 1
	}
	return matched, modified, nil
}

func (c *collection) Delete(selector storage.Document, justOne bool) (removed int, err error) {
	kept := c.docs[:0]
	for _, d := range c.docs {
		if matches(d, selector) && (justOne && removed == 0 || !justOne) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return removed, nil
}

func (c *collection) Append(doc storage.Document) (uint64, error) {
	c.seq++
	cp := storage.Document{"_seq": c.seq}
	for k, v := range doc {
		cp[k] = v
	}
	c.docs = append(c.docs, cp)
	return c.seq, nil
}

func (c *collection) Count() (int, error) {
	return len(c.docs), nil
}
