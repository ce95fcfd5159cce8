package dispatch

import (
	"context"

	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/storage"
	"github.com/docdb/docdbd/pkg/wire"
)

// handleQuery implements dispatcher step 7's QUERY branch: consult the
// sharding hook, then either serve a command (including getLastError, the
// only command this package itself implements — the query planner and the
// count command are external collaborators) or run a plain find.
func (d *Dispatcher) handleQuery(ctx context.Context, msg *wire.Message, client *curop.Client, op *curop.Op) (DbResponse, bool) {
	q, err := wire.DecodeQuery(msg.Payload)
	if err != nil {
		client.SetLastError(curop.LastError{Code: 16257, Message: "malformed query: " + err.Error()})
		return DbResponse{}, false
	}

	op.Namespace = q.Namespace
	op.Query = msg.Payload
	op.SetDebug("query", q.Query)

	ns := wire.Namespace(q.Namespace)
	if !ns.Valid() {
		return errorReply(msg.Header.RequestID, NewInvalidNamespaceError(16257, "invalid namespace")), false
	}

	decision, err := d.Router.MaybeRedirectOrReject(ctx, q.Namespace, "QUERY")
	if err != nil {
		return errorReply(msg.Header.RequestID, NewAssertionError(9001, err.Error())), false
	}
	if decision.ShouldRedirect() {
		flags := int32(0)
		if decision.StaleConfig {
			flags |= wire.ReplyFlagShardConfigStale
		}
		return DbResponse{
			Payload:    wire.ReplyPayload{ResponseFlags: flags, Documents: [][]byte{decision.Redirect}}.Encode(),
			ResponseTo: msg.Header.RequestID,
		}, false
	}

	if ns.IsCommand() {
		return d.handleCommand(ctx, msg, q, client, op)
	}

	return d.handleFind(ctx, msg, q, op)
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg *wire.Message, q wire.QueryPayload, client *curop.Client, op *curop.Op) (DbResponse, bool) {
	if _, ok := q.Query["getLastError"]; ok {
		le := client.LastError()
		doc := map[string]any{"ok": float64(1), "n": float64(le.N)}
		if le.Code != 0 {
			doc["err"] = le.Message
			doc["code"] = float64(le.Code)
		} else {
			doc["err"] = nil
		}
		return DbResponse{
			Payload:    wire.ReplyPayload{Documents: [][]byte{wire.EncodeDocument(doc)}}.Encode(),
			ResponseTo: msg.Header.RequestID,
		}, false
	}

	doc := map[string]any{"ok": float64(0), "errmsg": "no such command"}
	return DbResponse{
		Payload:    wire.ReplyPayload{ResponseFlags: wire.ReplyFlagErrSet, Documents: [][]byte{wire.EncodeDocument(doc)}}.Encode(),
		ResponseTo: msg.Header.RequestID,
	}, false
}

func (d *Dispatcher) handleFind(ctx context.Context, msg *wire.Message, q wire.QueryPayload, op *curop.Op) (DbResponse, bool) {
	selector := storage.Document(q.Query)
	var found []storage.Document

	err := d.Locks.WithDBLock(dbNameOf(q.Namespace), func(mode lockmgr.Mode) error {
		return d.Storage.WithTransaction(ctx, func(tx storage.Transaction) error {
			var err error
			found, err = tx.Collection(q.Namespace).FindAll(selector)
			return err
		})
	})
	if err != nil {
		return errorReply(msg.Header.RequestID, NewAssertionError(9001, err.Error())), false
	}

	skip := int(q.NToSkip)
	if skip > len(found) {
		skip = len(found)
	}
	found = found[skip:]

	exhaustRequested := q.Flags&wire.QueryFlagExhaust != 0

	batch := found
	cursorID := int64(0)
	if q.NToReturn > 0 && int(q.NToReturn) < len(found) {
		batch = found[:q.NToReturn]
		cursorID = d.Cursors.Open(q.Namespace, found[q.NToReturn:], exhaustRequested)
	}

	docs := make([][]byte, 0, len(batch))
	for _, f := range batch {
		docs = append(docs, wire.EncodeDocument(map[string]any(f)))
	}

	exhaustNS := ""
	if exhaustRequested && cursorID != 0 {
		exhaustNS = q.Namespace
	}

	return DbResponse{
		Payload:          wire.ReplyPayload{CursorID: cursorID, Documents: docs}.Encode(),
		ResponseTo:       msg.Header.RequestID,
		ExhaustNamespace: exhaustNS,
	}, false
}

func errorReply(requestID int32, derr *DispatchError) DbResponse {
	doc := map[string]any{"ok": float64(0), "errmsg": derr.Message, "code": float64(derr.Code)}
	return DbResponse{
		Payload:    wire.ReplyPayload{ResponseFlags: wire.ReplyFlagErrSet, Documents: [][]byte{wire.EncodeDocument(doc)}}.Encode(),
		ResponseTo: requestID,
	}
}
