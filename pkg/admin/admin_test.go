package admin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/wire"
	"github.com/stretchr/testify/require"
)

type fakeFsync struct {
	locked   bool
	unlocked bool
}

func (f *fakeFsync) FsyncLocked() bool { return f.locked }
func (f *fakeFsync) Unlock()           { f.unlocked = true }

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	off := 4
	var out map[string]any
	require.NoError(t, json.Unmarshal(b[off:], &out))
	return out
}

func TestDispatchRejectsNonAdminClient(t *testing.T) {
	d := New(curop.NewRegistry(), &fakeFsync{})
	client := curop.NewClient(1, "127.0.0.1:1")

	reply := d.Dispatch(context.Background(), "admin.$cmd.sys.inprog", wire.AdminVerbInProg, nil, client)
	doc := decode(t, reply)
	require.Equal(t, "unauthorized", doc["err"])
}

func TestListInProgressReturnsActiveOps(t *testing.T) {
	reg := curop.NewRegistry()
	d := New(reg, &fakeFsync{})

	client := reg.NewClient("127.0.0.1:2")
	client.Identity.Admin = true
	client.PushOp(&curop.Op{ID: 42, Opcode: "QUERY", Namespace: "test.coll"})

	reply := d.Dispatch(context.Background(), "admin.$cmd.sys.inprog", wire.AdminVerbInProg, map[string]any{}, client)
	doc := decode(t, reply)
	ops := doc["inprog"].([]any)
	require.Len(t, ops, 1)
}

func TestKillOpRequiresNumericField(t *testing.T) {
	reg := curop.NewRegistry()
	d := New(reg, &fakeFsync{})
	client := reg.NewClient("127.0.0.1:3")
	client.Identity.Admin = true

	reply := d.Dispatch(context.Background(), "admin.$cmd.sys.killop", wire.AdminVerbKillOp, map[string]any{}, client)
	doc := decode(t, reply)
	require.Equal(t, float64(0), doc["ok"])
}

func TestKillOpInterruptsMatchingOp(t *testing.T) {
	reg := curop.NewRegistry()
	d := New(reg, &fakeFsync{})
	client := reg.NewClient("127.0.0.1:4")
	client.Identity.Admin = true
	op := &curop.Op{ID: 7}
	client.PushOp(op)

	reply := d.Dispatch(context.Background(), "admin.$cmd.sys.killop", wire.AdminVerbKillOp, map[string]any{"op": float64(7)}, client)
	doc := decode(t, reply)
	require.Equal(t, float64(1), doc["ok"])
	require.True(t, op.Interrupted())
}

func TestUnlockFsyncRequiresAdminNamespace(t *testing.T) {
	reg := curop.NewRegistry()
	fsync := &fakeFsync{locked: true}
	d := New(reg, fsync)
	client := reg.NewClient("127.0.0.1:5")
	client.Identity.Admin = true

	reply := d.Dispatch(context.Background(), "admin.$cmd.sys.unlock", wire.AdminVerbUnlock, map[string]any{}, client)
	doc := decode(t, reply)
	require.Equal(t, float64(1), doc["ok"])
	require.True(t, fsync.unlocked)
}

func TestUnlockFsyncRejectsNonAdminNamespace(t *testing.T) {
	reg := curop.NewRegistry()
	fsync := &fakeFsync{locked: true}
	d := New(reg, fsync)
	client := reg.NewClient("127.0.0.1:7")
	client.Identity.Admin = true

	reply := d.Dispatch(context.Background(), "foo.$cmd.sys.unlock", wire.AdminVerbUnlock, map[string]any{}, client)
	doc := decode(t, reply)
	require.Equal(t, float64(0), doc["ok"])
	require.Equal(t, "unauthorized - this command must be run against the admin DB", doc["errmsg"])
	require.False(t, fsync.unlocked)
}

func TestUnlockFsyncRejectsEmptyNamespace(t *testing.T) {
	reg := curop.NewRegistry()
	fsync := &fakeFsync{locked: true}
	d := New(reg, fsync)
	client := reg.NewClient("127.0.0.1:8")
	client.Identity.Admin = true

	reply := d.Dispatch(context.Background(), "", wire.AdminVerbUnlock, map[string]any{}, client)
	doc := decode(t, reply)
	require.Equal(t, float64(0), doc["ok"])
	require.False(t, fsync.unlocked)
}

func TestUnlockFsyncReportsNotLocked(t *testing.T) {
	reg := curop.NewRegistry()
	d := New(reg, &fakeFsync{locked: false})
	client := reg.NewClient("127.0.0.1:6")
	client.Identity.Admin = true

	reply := d.Dispatch(context.Background(), "admin.$cmd.sys.unlock", wire.AdminVerbUnlock, map[string]any{}, client)
	doc := decode(t, reply)
	require.Equal(t, "not locked", doc["errmsg"])
}
