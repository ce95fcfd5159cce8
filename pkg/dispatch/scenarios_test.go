package dispatch

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/docdb/docdbd/pkg/admin"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/metrics"
	"github.com/docdb/docdbd/pkg/replication"
	"github.com/docdb/docdbd/pkg/sharding"
	"github.com/docdb/docdbd/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// encodeUpdate builds the wire-format body of an OpUpdate message; there is
// no exported UpdatePayload.Encode, so this mirrors DecodeUpdate's layout
// the way encodeKillCursors mirrors DecodeKillCursors in killcursors_test.go.
func encodeUpdate(namespace string, flags int32, selector, update map[string]any) []byte {
	buf := appendInt32Test(nil, 0)
	buf = appendCStringTest(buf, namespace)
	buf = appendInt32Test(buf, flags)
	buf = append(buf, wire.EncodeDocument(selector)...)
	buf = append(buf, wire.EncodeDocument(update)...)
	return buf
}

func encodeInsert(namespace string, flags int32, docs ...map[string]any) []byte {
	buf := appendInt32Test(nil, flags)
	buf = appendCStringTest(buf, namespace)
	for _, d := range docs {
		buf = append(buf, wire.EncodeDocument(d)...)
	}
	return buf
}

func appendCStringTest(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func appendInt32Test(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func newScenarioDispatcher(t *testing.T, topology replication.Topology) *Dispatcher {
	t.Helper()
	return New(Dispatcher{
		Registry: curop.NewRegistry(),
		Locks:    lockmgr.New(),
		Topology: topology,
		Router:   sharding.NoOpRouter{},
		Metrics:  metrics.NewRecorder(prometheus.NewRegistry()),
		Cursors:  NewCursorRegistry(),
	})
}

// S1: an UPDATE sent to a secondary produces no reply and records "not
// master" in the last-error slot.
func TestScenarioUpdateOnSecondaryRecordsNotMaster(t *testing.T) {
	topology := replication.NewStandalone()
	topology.StepDown(context.Background())
	d := newScenarioDispatcher(t, topology)
	d.Admin = noAdmin{}

	client := curop.NewClient(1, "127.0.0.1:9")
	msg := &wire.Message{
		Header:  wire.Header{Opcode: wire.OpUpdate, RequestID: 7},
		Payload: encodeUpdate("test.coll", 0, map[string]any{"a": float64(1)}, map[string]any{"$set": map[string]any{"b": float64(2)}}),
	}

	resp := d.AssembleResponse(context.Background(), msg, client)

	require.False(t, resp.HasPayload())
	le := client.LastError()
	require.Equal(t, 10054, le.Code)
	require.Equal(t, "not master", le.Message)
}

// S3: an INSERT to the empty namespace is rejected before any storage call,
// with the invalid-namespace assertion code in the last-error slot.
func TestScenarioInsertToEmptyNamespaceRejected(t *testing.T) {
	d := newScenarioDispatcher(t, replication.NewStandalone())
	d.Admin = noAdmin{}

	client := curop.NewClient(1, "127.0.0.1:9")
	msg := &wire.Message{
		Header:  wire.Header{Opcode: wire.OpInsert, RequestID: 1},
		Payload: encodeInsert("", 0, map[string]any{"a": float64(1)}),
	}

	resp := d.AssembleResponse(context.Background(), msg, client)

	require.False(t, resp.HasPayload())
	le := client.LastError()
	require.Equal(t, 16257, le.Code)
}

// S4: a non-admin client querying $cmd.sys.inprog gets a single
// {err:"unauthorized"} document back, never the real listing.
func TestScenarioInProgAsNonAdminIsUnauthorized(t *testing.T) {
	d := newScenarioDispatcher(t, replication.NewStandalone())
	d.Admin = admin.New(d.Registry, d)

	client := curop.NewClient(1, "127.0.0.1:9")
	client.Identity.Admin = false

	query := wire.QueryPayload{Namespace: "foo.$cmd.sys.inprog", Query: map[string]any{}}
	body, err := query.Encode()
	require.NoError(t, err)

	msg := &wire.Message{Header: wire.Header{Opcode: wire.OpQuery, RequestID: 3}, Payload: body}
	resp := d.AssembleResponse(context.Background(), msg, client)

	require.True(t, resp.HasPayload())
	docs, err := wire.DecodeReplyDocuments(resp.Payload)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "unauthorized", docs[0]["err"])
}

// S5: client B, acting as admin, kills client A's in-flight operation; A
// observes the interruption at its next checkpoint.
func TestScenarioKillOpInterruptsTargetOperation(t *testing.T) {
	d := newScenarioDispatcher(t, replication.NewStandalone())
	d.Admin = admin.New(d.Registry, d)

	clientA := d.Registry.NewClient("10.0.0.1:1")
	opA := &curop.Op{ID: d.Registry.NextOpID(), Remote: clientA.Remote}
	clientA.PushOp(opA)
	t.Cleanup(func() { clientA.PopOp() })

	clientB := curop.NewClient(2, "10.0.0.2:2")
	clientB.Identity.Admin = true

	query := wire.QueryPayload{
		Namespace: "admin.$cmd.sys.killop",
		Query:     map[string]any{"op": float64(opA.ID)},
	}
	body, err := query.Encode()
	require.NoError(t, err)

	msg := &wire.Message{Header: wire.Header{Opcode: wire.OpQuery, RequestID: 9}, Payload: body}
	resp := d.AssembleResponse(context.Background(), msg, clientB)

	require.True(t, resp.HasPayload())
	docs, err := wire.DecodeReplyDocuments(resp.Payload)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "attempting to kill op", docs[0]["info"])

	require.True(t, opA.Interrupted())
}

// S6: a GET_MORE against the oplog with no new writes blocks on the commit
// condition variable rather than spinning, and returns an empty batch with
// the same cursor id once the wait deadline elapses.
func TestScenarioOplogTailTimesOutAfterCommitWait(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the real 4s oplog tail timeout")
	}

	d := newScenarioDispatcher(t, replication.NewStandalone())
	d.Admin = noAdmin{}

	client := curop.NewClient(1, "127.0.0.1:9")
	msg := &wire.Message{
		Header:  wire.Header{Opcode: wire.OpGetMore, RequestID: 5},
		Payload: wire.EncodeGetMore(wire.GetMorePayload{Namespace: "local.oplog.rs", CursorID: 0, NToReturn: 10}),
	}

	start := time.Now()
	resp := d.AssembleResponse(context.Background(), msg, client)
	elapsed := time.Since(start)

	require.True(t, resp.HasPayload())
	require.GreaterOrEqual(t, elapsed, oplogWaitTimeout)
	require.Less(t, elapsed, oplogWaitTimeout+2*time.Second)

	cursorID := int64(binary.LittleEndian.Uint64(resp.Payload[4:12]))
	require.Zero(t, cursorID)
}

// noAdmin is a no-op AdminDispatcher for scenarios that never hit the admin
// short-circuit (OpUpdate/OpInsert never route through it).
type noAdmin struct{}

func (noAdmin) Dispatch(context.Context, string, string, map[string]any, *curop.Client) []byte {
	return nil
}
