// Package dispatch implements the request-dispatch core: assemble_response
// classifies a framed wire message, routes it through locking,
// authorization, and transactional scaffolding, and assembles a reply.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/internal/telemetry"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/diaglog"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/metrics"
	"github.com/docdb/docdbd/pkg/replication"
	"github.com/docdb/docdbd/pkg/sharding"
	"github.com/docdb/docdbd/pkg/storage"
	"github.com/docdb/docdbd/pkg/wire"
)

// KillCursorsSlowMS is the reduced slow-op threshold used for KILL_CURSORS,
// per dispatcher step 7.
const KillCursorsSlowMS = 10

// Config holds tunables for the dispatch core.
type Config struct {
	SlowMS              int64
	DebugMode           bool
	ProfileSampleRate    float64
	MaxUpdateObjectBytes int
}

// DefaultConfig returns the tunables used when none are supplied.
func DefaultConfig() Config {
	return Config{
		SlowMS:               100,
		ProfileSampleRate:     1.0,
		MaxUpdateObjectBytes: 16 * 1024 * 1024,
	}
}

// ProfilingNamespaces reports whether a namespace is flagged for profile
// sampling. A nil predicate disables profiling entirely.
type ProfilingNamespaces func(namespace string) bool

// Dispatcher is the entry point: AssembleResponse(msg, remote) -> DbResponse.
type Dispatcher struct {
	Registry  *curop.Registry
	Locks     *lockmgr.Manager
	Storage   storage.Engine
	Topology  replication.Topology
	Router    sharding.Router
	Admin     AdminDispatcher
	Diag      *diaglog.Log
	Metrics   *metrics.Recorder
	Config    Config
	Profiling ProfilingNamespaces
	Cursors   *CursorRegistry

	shuttingDown atomic.Bool
	fsyncLocked  atomic.Bool
}

// New constructs a Dispatcher. All fields of deps must be non-nil except
// Diag, Metrics and Profiling, which degrade to no-ops.
func New(deps Dispatcher) *Dispatcher {
	d := deps
	if d.Config == (Config{}) {
		d.Config = DefaultConfig()
	}
	if d.Cursors == nil {
		d.Cursors = NewCursorRegistry()
	}
	return &d
}

// SetShuttingDown flips the process-wide in-shutdown flag probed by
// long-poll handlers.
func (d *Dispatcher) SetShuttingDown(v bool) {
	d.shuttingDown.Store(v)
}

// ShuttingDown reports the current in-shutdown flag.
func (d *Dispatcher) ShuttingDown() bool {
	return d.shuttingDown.Load()
}

// FsyncLocked reports whether the server is presently under an
// administrative fsync lock. It satisfies pkg/admin.FsyncLock.
func (d *Dispatcher) FsyncLocked() bool {
	return d.fsyncLocked.Load()
}

// Unlock releases the administrative fsync lock.
func (d *Dispatcher) Unlock() {
	d.fsyncLocked.Store(false)
}

// AssembleResponse never throws: all caller-induced errors are serialized
// into the reply or the last-error slot.
func (d *Dispatcher) AssembleResponse(ctx context.Context, msg *wire.Message, client *curop.Client) DbResponse {
	opcode := msg.Header.Opcode

	ctx, span := telemetry.StartDispatchSpan(ctx, opcode.String(), client.Remote, telemetry.RequestID(msg.Header.RequestID))
	defer span.End()

	// Step 1: diag-log side channel, best-effort.
	d.recordDiag(opcode, msg.Payload)

	// Step 2: admin pseudo-command short-circuit, no locks, no current-op.
	if opcode == wire.OpQuery {
		if reply, handled := d.tryAdminShortCircuit(ctx, msg, client); handled {
			return reply
		}
	}

	// Step 3: counters.
	d.Metrics.IncOpcode(classifyCounterName(opcode))

	// Step 4: auth epoch.
	signalAuthEpoch(client)

	// Step 5: op-settings reset.
	client.ResetOpSettings()
	client.ResetLastError()

	// Step 6: current-op setup.
	op := &curop.Op{
		ID:        d.Registry.NextOpID(),
		Remote:    client.Remote,
		Opcode:    opcode.String(),
		StartedAt: time.Now(),
	}
	client.PushOp(op)
	defer func() {
		op.MarkDone()
		client.PopOp()
	}()

	forcedLog := false
	var resp DbResponse

	func() {
		defer func() {
			if r := recover(); r != nil {
				forcedLog = true
				d.handlePanic(ctx, op, r)
			}
		}()
		resp, forcedLog = d.route(ctx, msg, client, op)
	}()

	if op.Namespace != "" {
		telemetry.SetAttributes(ctx, telemetry.Namespace(op.Namespace))
	}

	// Step 9: finalization + slow-op logging.
	d.finalize(op, forcedLog)

	// Step 10: profiling sample.
	d.maybeProfile(ctx, op, client)

	return resp
}

func classifyCounterName(opcode wire.Opcode) string {
	switch opcode {
	case wire.OpQuery, wire.OpGetMore, wire.OpInsert, wire.OpUpdate, wire.OpDelete, wire.OpKillCursors, wire.OpMsg:
		return opcode.String()
	default:
		return "unknown"
	}
}

func signalAuthEpoch(client *curop.Client) {
	// Placeholder seam for an auth subsystem that tracks request epochs;
	// the dispatch core's own auth model is just curop.Identity on Client.
	_ = client
}

func (d *Dispatcher) recordDiag(opcode wire.Opcode, payload []byte) {
	if d.Diag == nil {
		return
	}
	isRead := opcode == wire.OpGetMore
	if opcode == wire.OpQuery {
		if q, err := wire.DecodeQuery(payload); err == nil && !wire.Namespace(q.Namespace).IsCommand() {
			isRead = true
		}
	}
	if isRead {
		d.Diag.RecordRead(payload)
	} else {
		d.Diag.RecordWrite(payload)
	}
}

func (d *Dispatcher) tryAdminShortCircuit(ctx context.Context, msg *wire.Message, client *curop.Client) (DbResponse, bool) {
	q, err := wire.DecodeQuery(msg.Payload)
	if err != nil {
		return DbResponse{}, false
	}
	verb, ok := wire.Namespace(q.Namespace).IsAdminPseudoCommand()
	if !ok {
		return DbResponse{}, false
	}
	telemetry.SetAttributes(ctx, telemetry.Namespace(q.Namespace))
	reply := d.Admin.Dispatch(ctx, q.Namespace, verb, q.Query, client)
	return DbResponse{Payload: reply, ResponseTo: msg.Header.RequestID}, true
}

// route performs step 7: classify opcode and invoke the appropriate handler.
// It returns the response plus whether a forced-log flag was raised.
func (d *Dispatcher) route(ctx context.Context, msg *wire.Message, client *curop.Client, op *curop.Op) (DbResponse, bool) {
	switch msg.Header.Opcode {
	case wire.OpQuery:
		return d.handleQuery(ctx, msg, client, op)
	case wire.OpGetMore:
		return d.handleGetMore(ctx, msg, client, op)
	case wire.OpMsg:
		return DbResponse{
			Payload:    wire.ReplyPayload{Documents: [][]byte{wire.EncodeDocument(map[string]any{"note": "OP_MSG is deprecated"})}}.Encode(),
			ResponseTo: msg.Header.RequestID,
		}, false
	case wire.OpKillCursors:
		op.LatencyBudget = KillCursorsSlowMS * time.Millisecond
		d.handleKillCursors(msg, op)
		return DbResponse{}, false
	case wire.OpInsert, wire.OpUpdate, wire.OpDelete:
		return d.handleWrite(ctx, msg, client, op)
	default:
		logger.Warn("unrecognized opcode", "opcode", int32(msg.Header.Opcode))
		op.MarkDone()
		return DbResponse{}, true
	}
}

func (d *Dispatcher) handlePanic(ctx context.Context, op *curop.Op, r any) {
	if derr, ok := r.(*DispatchError); ok {
		op.SetDebug("exception", derr.Error())
		telemetry.RecordError(ctx, derr)
		if derr.Kind == KindAssertion {
			logger.Error("assertion during request", "op", op.ID, "code", derr.Code, "message", derr.Message)
		}
		return
	}
	op.SetDebug("exception", fmt.Sprintf("%v", r))
	telemetry.RecordError(ctx, fmt.Errorf("panic: %v", r))
	logger.Error("unhandled panic during request", "op", op.ID, "panic", r)
}

func (d *Dispatcher) finalize(op *curop.Op, forcedLog bool) {
	op.MarkDone()
	elapsed := op.ElapsedSince(time.Now())
	threshold := time.Duration(d.Config.SlowMS) * time.Millisecond
	if op.LatencyBudget > 0 {
		threshold = op.LatencyBudget
	}
	if elapsed >= threshold || forcedLog {
		logger.Info("slow operation",
			"op", op.ID,
			"opcode", op.Opcode,
			"namespace", op.Namespace,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}

func (d *Dispatcher) maybeProfile(ctx context.Context, op *curop.Op, client *curop.Client) {
	if d.Profiling == nil || op.Namespace == "" || !d.Profiling(op.Namespace) {
		return
	}
	if d.fsyncLocked.Load() {
		return
	}
	if client.StackDepth() > 1 {
		// This op is nested inside another still-active operation that may
		// itself hold a write lock; skip rather than risk a self-deadlock
		// acquiring it again.
		return
	}

	h := d.Locks.LockDB(dbNameOf(op.Namespace), lockmgr.WriteLock)
	defer h.Unlock()

	err := d.Storage.WithTransaction(ctx, func(tx storage.Transaction) error {
		coll := tx.Collection(dbNameOf(op.Namespace) + ".system.profile")
		return coll.Insert(storage.Document{
			"op":       op.Opcode,
			"ns":       op.Namespace,
			"millis":   op.ElapsedSince(time.Now()).Milliseconds(),
			"ts":       time.Now().Unix(),
		})
	})
	if err != nil {
		logger.Warn("profile sample failed", "op", op.ID, "error", err)
	}
}

func dbNameOf(namespace string) string {
	for i, c := range namespace {
		if c == '.' {
			return namespace[:i]
		}
	}
	return namespace
}
