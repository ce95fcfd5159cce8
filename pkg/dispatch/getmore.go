package dispatch

import (
	"context"
	"time"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/replication"
	"github.com/docdb/docdbd/pkg/storage"
	"github.com/docdb/docdbd/pkg/wire"
)

const (
	oplogNamespace    = "local.oplog.rs"
	oplogWaitTimeout  = 4 * time.Second
	nonOplogTimeout   = 4 * time.Second
	nonOplogSleep     = 2 * time.Millisecond
	nonOplogDebugWait = 20 * time.Millisecond
)

// handleGetMore implements §4.5: the cursor-continuation handler, with the
// two-pass long-poll algorithm for tailing the oplog.
func (d *Dispatcher) handleGetMore(ctx context.Context, msg *wire.Message, client *curop.Client, op *curop.Op) (DbResponse, bool) {
	gm, err := wire.DecodeGetMore(msg.Payload)
	if err != nil {
		client.SetLastError(curop.LastError{Code: 10160, Message: "malformed getmore: " + err.Error()})
		return DbResponse{}, false
	}
	op.Namespace = gm.Namespace
	op.SetDebug("cursor_id", gm.CursorID)

	isOplog := gm.Namespace == oplogNamespace && d.oplogTailingActive()

	var tailBase replication.CommitID
	if isOplog {
		tailBase = d.Topology.MinimumLiveCommitID(ctx)
	}

	pass := 0
	start := time.Now()
	forcedLog := false

	for {
		if d.ShuttingDown() {
			return errorReply(msg.Header.RequestID, &DispatchError{Kind: KindShuttingDown, Code: 11600, Message: "server is shutting down"}), true
		}

		if isOplog && pass > 0 {
			// The wait must happen without a read lock held, to avoid
			// starving writers; the position itself can only be read under
			// the lock, so we approximate with min-live-commit-id captured
			// before the wait.
			if s, ok := d.Topology.(*replication.Standalone); ok {
				s.WaitForCommitAdvance(tailBase, oplogWaitTimeout)
			}
		}

		var batch []storage.Document
		var cursorID int64
		var found, exhaust bool

		err := d.Locks.WithDBLock(dbNameOf(gm.Namespace), func(mode lockmgr.Mode) error {
			batch, cursorID, found, exhaust = d.Cursors.Next(gm.CursorID, gm.NToReturn)
			return nil
		})
		if err != nil {
			logger.Error("get-more storage error", "op", op.ID, "error", err)
			return emptyGetMoreReply(msg.Header.RequestID, gm.CursorID, "", false), true
		}

		if op.Interrupted() {
			return errorReply(msg.Header.RequestID, NewCursorInterruptedError()), false
		}

		if !found && gm.CursorID != 0 {
			return DbResponse{
				Payload:    wire.ReplyPayload{ResponseFlags: wire.ReplyFlagCursorNotFound, CursorID: 0}.Encode(),
				ResponseTo: msg.Header.RequestID,
			}, false
		}

		if len(batch) > 0 {
			docs := make([][]byte, 0, len(batch))
			for _, d := range batch {
				docs = append(docs, wire.EncodeDocument(map[string]any(d)))
			}
			exhaustNS := ""
			if exhaust && cursorID != 0 {
				exhaustNS = gm.Namespace
			}
			return DbResponse{
				Payload:          wire.ReplyPayload{CursorID: cursorID, Documents: docs}.Encode(),
				ResponseTo:       msg.Header.RequestID,
				ExhaustNamespace: exhaustNS,
			}, forcedLog
		}

		pass++
		if !isOplog {
			if time.Since(start) >= nonOplogTimeout {
				forcedLog = true
				return emptyGetMoreReply(msg.Header.RequestID, gm.CursorID, gm.Namespace, exhaust), forcedLog
			}
			sleep := nonOplogSleep
			if d.Config.DebugMode {
				sleep = nonOplogDebugWait
			}
			time.Sleep(sleep)
		} else if pass > 1 {
			forcedLog = true
			return emptyGetMoreReply(msg.Header.RequestID, gm.CursorID, gm.Namespace, exhaust), forcedLog
		}
	}
}

func (d *Dispatcher) oplogTailingActive() bool {
	return d.Topology != nil
}

func emptyGetMoreReply(requestID int32, cursorID int64, namespace string, exhaust bool) DbResponse {
	exhaustNS := ""
	if exhaust && cursorID != 0 {
		exhaustNS = namespace
	}
	return DbResponse{
		Payload:          wire.ReplyPayload{CursorID: cursorID}.Encode(),
		ResponseTo:       requestID,
		ExhaustNamespace: exhaustNS,
	}
}
