package dispatch

import (
	"context"

	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/storage"
	"github.com/docdb/docdbd/pkg/wire"
)

// handleWrite is the common contract for INSERT/UPDATE/DELETE per §4.4.
// Writes never produce a reply message; outcome is reported through the
// last-error slot.
func (d *Dispatcher) handleWrite(ctx context.Context, msg *wire.Message, client *curop.Client, op *curop.Op) (DbResponse, bool) {
	var namespace string
	var broadcastable bool
	var body func(mode lockmgr.Mode) error

	switch msg.Header.Opcode {
	case wire.OpInsert:
		ins, err := wire.DecodeInsert(msg.Payload)
		if err != nil {
			client.SetLastError(curop.LastError{Code: 10307, Message: "malformed insert: " + err.Error()})
			return DbResponse{}, false
		}
		namespace = ins.Namespace
		op.SetDebug("documents", len(ins.Documents))
		body = func(mode lockmgr.Mode) error { return d.lockedInsert(ctx, ins, namespace, mode, client) }

	case wire.OpUpdate:
		upd, err := wire.DecodeUpdate(msg.Payload)
		if err != nil {
			client.SetLastError(curop.LastError{Code: 10055, Message: "malformed update: " + err.Error()})
			return DbResponse{}, false
		}
		namespace = upd.Namespace
		broadcastable = upd.Flags&wire.UpdateFlagBroadcast != 0
		op.SetDebug("selector", upd.Selector)
		body = func(mode lockmgr.Mode) error { return d.lockedUpdate(ctx, upd, mode, client) }

	case wire.OpDelete:
		del, err := wire.DecodeDelete(msg.Payload)
		if err != nil {
			client.SetLastError(curop.LastError{Code: 10056, Message: "malformed delete: " + err.Error()})
			return DbResponse{}, false
		}
		namespace = del.Namespace
		broadcastable = del.Flags&wire.DeleteFlagBroadcast != 0
		op.SetDebug("selector", del.Selector)
		body = func(mode lockmgr.Mode) error { return d.lockedDelete(ctx, del, mode, client) }
	}

	op.Namespace = namespace

	ns := wire.Namespace(namespace)
	if !ns.Valid() {
		client.SetLastError(curop.LastError{Code: 16257, Message: "invalid namespace"})
		return DbResponse{}, false
	}

	client.SetOpSettings(curop.OpSettings{CursorMode: curop.WriteLockCursor})

	db := ns.Database()
	if !d.Topology.IsPrimaryForNamespace(db) {
		client.SetLastError(curop.LastError{Code: 10054, Message: "not master"})
		return DbResponse{}, false
	}

	if broadcastable {
		decision, err := d.Router.MaybeRedirectOrReject(ctx, namespace, msg.Header.Opcode.String())
		if err == nil && decision.ShouldRedirect() {
			// A redirect on a write still reports through last-error, since
			// writes never produce a reply message.
			client.SetLastError(curop.LastError{Code: 0, Message: "redirected", N: 0})
			return DbResponse{}, false
		}
	}

	if err := d.Locks.WithDBLock(db, body); err != nil {
		if derr, ok := err.(*DispatchError); ok {
			client.SetLastError(curop.LastError{Code: derr.Code, Message: derr.Message})
		} else {
			client.SetLastError(curop.LastError{Code: 8, Message: err.Error()})
		}
	}

	return DbResponse{}, false
}

func (d *Dispatcher) lockedInsert(ctx context.Context, ins wire.InsertPayload, namespace string, mode lockmgr.Mode, client *curop.Client) error {
	return d.Storage.WithTransaction(ctx, func(tx storage.Transaction) error {
		coll := tx.Collection(namespace)
		inserted := 0
		for _, doc := range ins.Documents {
			if len(wire.EncodeDocument(doc)) > d.Config.MaxUpdateObjectBytes {
				if ins.Flags&wire.InsertFlagContinueOnError != 0 {
					continue
				}
				return NewAssertionError(12523, "object to insert too large")
			}
			if err := coll.Insert(storage.Document(doc)); err != nil {
				if ins.Flags&wire.InsertFlagContinueOnError != 0 {
					continue
				}
				return err
			}
			inserted++
		}
		client.SetLastError(curop.LastError{N: inserted})
		return nil
	})
}

func (d *Dispatcher) lockedUpdate(ctx context.Context, upd wire.UpdatePayload, mode lockmgr.Mode, client *curop.Client) error {
	if len(wire.EncodeDocument(upd.Update)) > d.Config.MaxUpdateObjectBytes {
		return NewAssertionError(10058, "update object too large")
	}
	return d.Storage.WithTransaction(ctx, func(tx storage.Transaction) error {
		coll := tx.Collection(upd.Namespace)
		matched, _, err := coll.Update(
			storage.Document(upd.Selector),
			storage.Document(upd.Update),
			upd.Flags&wire.UpdateFlagUpsert != 0,
			upd.Flags&wire.UpdateFlagMulti != 0,
		)
		if err != nil {
			return err
		}
		client.SetLastError(curop.LastError{N: matched})
		return nil
	})
}

func (d *Dispatcher) lockedDelete(ctx context.Context, del wire.DeletePayload, mode lockmgr.Mode, client *curop.Client) error {
	return d.Storage.WithTransaction(ctx, func(tx storage.Transaction) error {
		coll := tx.Collection(del.Namespace)
		removed, err := coll.Delete(storage.Document(del.Selector), del.Flags&wire.DeleteFlagJustOne != 0)
		if err != nil {
			return err
		}
		client.SetLastError(curop.LastError{N: removed})
		return nil
	})
}
