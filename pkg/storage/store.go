// Package storage specifies the transaction-bracket contract the dispatch
// core imposes on the underlying storage engine. The engine itself
// (transactional KV with snapshot isolation and serializable transactions)
// is an external collaborator; this package only fixes the shape of that
// contract, plus two concrete implementations (memtx for tests,
// storage/badger for production).
package storage

import "context"

// Document is a schemaless record. The dispatch core never interprets its
// contents beyond what a handler's own executor requires.
type Document map[string]any

// Collection is the per-namespace view of document storage inside a single
// transaction.
type Collection interface {
	Insert(doc Document) error
	FindOne(selector Document) (Document, bool, error)
	FindAll(selector Document) ([]Document, error)

	// Update applies update to every document matching selector (or just the
	// first, if multi is false), inserting one new document if upsert is
	// true and nothing matched. It returns the number matched and modified.
	Update(selector, update Document, upsert, multi bool) (matched, modified int, err error)

	// Delete removes every document matching selector, or just the first if
	// justOne is true, and returns the count removed.
	Delete(selector Document, justOne bool) (removed int, err error)

	// Append is used by the oplog collection: a pure append, bypassing
	// selector matching, returning the sequence id assigned.
	Append(doc Document) (seq uint64, err error)

	// Count returns the number of documents presently in the collection.
	Count() (int, error)
}

// Transaction is the view of storage visible inside a single handler
// invocation; it is scoped to that invocation and committed or aborted
// before the handler returns.
type Transaction interface {
	Collection(namespace string) Collection
}

// Transactor brackets a unit of work in a serializable transaction. fn's
// error (if any) aborts the transaction; otherwise it commits. Transactor
// implementations guarantee "transaction balance": exactly one commit or
// abort per call.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx Transaction) error) error
}

// Engine is the full storage-engine contract consumed by the dispatch core.
type Engine interface {
	Transactor
	Healthcheck(ctx context.Context) error
	Close() error
}
