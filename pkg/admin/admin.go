// Package admin implements the admin sub-dispatcher: the three synthetic
// command namespaces the dispatch core short-circuits before taking any
// lock, grounded on the teacher's controlplane admin surface (requests are
// decoded, authorized, and served directly against shared state rather than
// through the normal storage path).
package admin

import (
	"context"
	"strconv"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/wire"
)

// FsyncLock is the narrow seam the admin dispatcher needs into the
// dispatch core's fsync-locked flag, without importing pkg/dispatch (which
// already imports this package's Dispatch method via the AdminDispatcher
// interface it declares).
type FsyncLock interface {
	FsyncLocked() bool
	Unlock()
}

// Dispatcher serves list-in-progress, kill-op and unlock-fsync.
type Dispatcher struct {
	Registry *curop.Registry
	Fsync    FsyncLock
}

// New constructs an admin Dispatcher.
func New(registry *curop.Registry, fsync FsyncLock) *Dispatcher {
	return &Dispatcher{Registry: registry, Fsync: fsync}
}

// Dispatch implements pkg/dispatch.AdminDispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, namespace, verb string, query map[string]any, client *curop.Client) []byte {
	if !client.Identity.Admin {
		return wire.EncodeDocument(map[string]any{"err": "unauthorized", "ok": float64(1)})
	}

	switch verb {
	case wire.AdminVerbInProg:
		return d.listInProgress(query)
	case wire.AdminVerbKillOp:
		return d.killOp(query)
	case wire.AdminVerbUnlock:
		return d.unlockFsync(namespace)
	default:
		logger.Warn("admin sub-dispatcher received unknown verb", "verb", verb)
		return wire.EncodeDocument(map[string]any{"ok": float64(0), "errmsg": "no such admin command"})
	}
}

func (d *Dispatcher) listInProgress(query map[string]any) []byte {
	filter := curop.Filter{}
	if ns, ok := query["ns"].(string); ok {
		filter.Namespace = ns
	}

	ops, fsyncLocked := d.Registry.ListInProgress(filter)
	infos := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		infos = append(infos, map[string]any{
			"opid":   float64(op.OpID),
			"client": float64(op.ClientID),
			"active": op.Active,
			"op":     op.Opcode,
			"ns":     op.Namespace,
			"remote": op.Remote,
		})
	}

	doc := map[string]any{"inprog": infos}
	if fsyncLocked {
		doc["fsyncLock"] = true
		doc["info"] = "use db.fsyncUnlock() to terminate the fsync write/snapshot lock"
	}
	return wire.EncodeDocument(doc)
}

func (d *Dispatcher) killOp(query map[string]any) []byte {
	opID, ok := numericField(query, "op")
	if !ok {
		return wire.EncodeDocument(map[string]any{"ok": float64(0), "errmsg": "no op number field specified?"})
	}

	d.Registry.Kill(uint64(opID))
	return wire.EncodeDocument(map[string]any{"info": "attempting to kill op", "ok": float64(1)})
}

func (d *Dispatcher) unlockFsync(namespace string) []byte {
	if !isAdminNamespace(namespace) {
		return wire.EncodeDocument(map[string]any{"ok": float64(0), "errmsg": "unauthorized - this command must be run against the admin DB"})
	}

	if d.Fsync == nil || !d.Fsync.FsyncLocked() {
		return wire.EncodeDocument(map[string]any{"ok": float64(0), "errmsg": "not locked"})
	}

	d.Fsync.Unlock()
	return wire.EncodeDocument(map[string]any{"ok": float64(1)})
}

func isAdminNamespace(ns string) bool {
	return wire.Namespace(ns).Database() == "admin"
}

func numericField(query map[string]any, key string) (int64, bool) {
	v, ok := query[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
