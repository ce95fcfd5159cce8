// Package badger implements storage.Engine on top of
// github.com/dgraph-io/badger/v4, whose db.Update transactions already
// provide the serializable, snapshot-isolated semantics the dispatch core's
// transaction-bracket contract requires.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/pkg/storage"
)

// Engine adapts a *badger.DB to storage.Engine.
type Engine struct {
	db       *badger.DB
	seqByColl map[string]*badger.Sequence
}

// Options configures Open.
type Options struct {
	Path     string
	InMemory bool
}

// Open creates or opens a Badger-backed storage engine at opts.Path, or an
// ephemeral in-memory instance when opts.InMemory is set (used by tests that
// want Badger's real transaction semantics without touching disk).
func Open(opts Options) (*Engine, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	badgerOpts = badgerOpts.WithLogger(badgerLoggerAdapter{})
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", opts.Path, err)
	}

	return &Engine{db: db, seqByColl: make(map[string]*badger.Sequence)}, nil
}

func (e *Engine) WithTransaction(_ context.Context, fn func(tx storage.Transaction) error) error {
	return e.db.Update(func(btxn *badger.Txn) error {
		tx := &txn{engine: e, btxn: btxn}
		return fn(tx)
	})
}

func (e *Engine) Healthcheck(context.Context) error {
	return nil
}

func (e *Engine) Close() error {
	for _, s := range e.seqByColl {
		_ = s.Release()
	}
	return e.db.Close()
}

type txn struct {
	engine *Engine
	btxn   *badger.Txn
}

func (t *txn) Collection(namespace string) storage.Collection {
	return &collection{engine: t.engine, btxn: t.btxn, ns: namespace}
}

type collection struct {
	engine *Engine
	btxn   *badger.Txn
	ns     string
}

func (c *collection) key(docKey string) []byte {
	return []byte(c.ns + "\x00" + docKey)
}

func (c *collection) prefix() []byte {
	return []byte(c.ns + "\x00")
}

func (c *collection) Insert(doc storage.Document) error {
	id, ok := doc["_id"].(string)
	if !ok || id == "" {
		id = fmt.Sprintf("%d", docID.Add(1))
		doc["_id"] = id
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return storage.NewInvalidArgumentError(err.Error())
	}
	if err := c.btxn.Set(c.key(id), buf); err != nil {
		return storage.NewIOError(err.Error())
	}
	return nil
}

// docID is a process-wide fallback id generator for documents that arrive
// without a caller-supplied _id.
var docID atomic.Uint64

func (c *collection) scan(fn func(doc storage.Document) (stop bool, err error)) error {
	it := c.btxn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(c.prefix()); it.ValidForPrefix(c.prefix()); it.Next() {
		item := it.Item()
		var doc storage.Document
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
		if err != nil {
			return storage.NewIOError(err.Error())
		}
		stop, err := fn(doc)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func matches(doc, selector storage.Document) bool {
	for k, v := range selector {
		dv, ok := doc[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", dv) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func (c *collection) FindOne(selector storage.Document) (storage.Document, bool, error) {
	var found storage.Document
	err := c.scan(func(doc storage.Document) (bool, error) {
		if matches(doc, selector) {
			found = doc
			return true, nil
		}
		return false, nil
	})
	return found, found != nil, err
}

func (c *collection) FindAll(selector storage.Document) ([]storage.Document, error) {
	var out []storage.Document
	err := c.scan(func(doc storage.Document) (bool, error) {
		if matches(doc, selector) {
			out = append(out, doc)
		}
		return false, nil
	})
	return out, err
}

func (c *collection) Update(selector, update storage.Document, upsert, multi bool) (matched, modified int, err error) {
	err = c.scan(func(doc storage.Document) (bool, error) {
		if !matches(doc, selector) {
			return false, nil
		}
		matched++
		for k, v := range update {
			doc[k] = v
		}
		buf, merr := json.Marshal(doc)
		if merr != nil {
			return true, storage.NewInvalidArgumentError(merr.Error())
		}
		id, _ := doc["_id"].(string)
		if serr := c.btxn.Set(c.key(id), buf); serr != nil {
			return true, storage.NewIOError(serr.Error())
		}
		modified++
		return !multi, nil
	})
	if err != nil {
		return matched, modified, err
	}
	if matched == 0 && upsert {
		doc := storage.Document{}
		for k, v := range selector {
			doc[k] = v
		}
		for k, v := range update {
			doc[k] = v
		}
		if ierr := c.Insert(doc); ierr != nil {
			return matched, modified, ierr
		}
		matched, modified = 1, 1
	}
	return matched, modified, nil
}

func (c *collection) Delete(selector storage.Document, justOne bool) (removed int, err error) {
	var toDelete [][]byte
	err = c.scan(func(doc storage.Document) (bool, error) {
		if !matches(doc, selector) {
			return false, nil
		}
		id, _ := doc["_id"].(string)
		toDelete = append(toDelete, c.key(id))
		if justOne {
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range toDelete {
		if err := c.btxn.Delete(k); err != nil {
			return removed, storage.NewIOError(err.Error())
		}
		removed++
	}
	return removed, nil
}

func (c *collection) Append(doc storage.Document) (uint64, error) {
	seq, err := c.nextSeq()
	if err != nil {
		return 0, storage.NewIOError(err.Error())
	}
	doc["_seq"] = seq
	if err := c.Insert(doc); err != nil {
		return 0, err
	}
	return seq, nil
}

func (c *collection) nextSeq() (uint64, error) {
	s, ok := c.engine.seqByColl[c.ns]
	if !ok {
		var err error
		s, err = c.engine.db.GetSequence([]byte("seq\x00"+c.ns), 100)
		if err != nil {
			return 0, err
		}
		c.engine.seqByColl[c.ns] = s
	}
	return s.Next()
}

func (c *collection) Count() (int, error) {
	n := 0
	err := c.scan(func(storage.Document) (bool, error) {
		n++
		return false, nil
	})
	return n, err
}

// badgerLoggerAdapter routes Badger's internal logging through this
// module's structured logger instead of Badger's own stdout logger.
type badgerLoggerAdapter struct{}

func (badgerLoggerAdapter) Errorf(format string, args ...any)   { logger.Errorf(format, args...) }
func (badgerLoggerAdapter) Warningf(format string, args ...any) { logger.Warnf(format, args...) }
func (badgerLoggerAdapter) Infof(format string, args ...any)    { logger.Infof(format, args...) }
func (badgerLoggerAdapter) Debugf(format string, args ...any)   { logger.Debugf(format, args...) }
