package netlistener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/dispatch"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/replication"
	"github.com/docdb/docdbd/pkg/sharding"
	"github.com/docdb/docdbd/pkg/storage"
	"github.com/docdb/docdbd/pkg/storage/memtx"
	"github.com/docdb/docdbd/pkg/wire"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*dispatch.Dispatcher, *curop.Registry) {
	t.Helper()
	registry := curop.NewRegistry()
	d := dispatch.New(dispatch.Dispatcher{
		Registry: registry,
		Locks:    lockmgr.New(),
		Storage:  memtx.New(),
		Topology: replication.NewStandalone(),
		Router:   sharding.NoOpRouter{},
	})
	return d, registry
}

func startTestListener(t *testing.T) (*Listener, string) {
	t.Helper()
	d, registry := newTestDispatcher(t)

	err := d.Storage.WithTransaction(context.Background(), func(tx storage.Transaction) error {
		return tx.Collection("test.coll").Insert(storage.Document{"name": "alpha"})
	})
	require.NoError(t, err)

	l := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, d, registry)

	ready := make(chan string, 1)
	go func() {
		for {
			l.mu.RLock()
			ln := l.listener
			l.mu.RUnlock()
			if ln != nil {
				ready <- ln.Addr().String()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = l.Serve(ctx) }()

	addr := <-ready
	return l, addr
}

func TestServeAcceptsConnectionAndRoundTripsQuery(t *testing.T) {
	_, addr := startTestListener(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	query := wire.QueryPayload{Namespace: "test.coll", NToReturn: 10}
	body, err := query.Encode()
	require.NoError(t, err)

	require.NoError(t, wire.WriteMessage(conn, 1, 0, wire.OpQuery, body))

	reply, err := wire.ReadMessage(conn)
	require.NoError(t, err)
	require.Equal(t, wire.OpReply, reply.Header.Opcode)

	docs, err := wire.DecodeReplyDocuments(reply.Payload)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "alpha", docs[0]["name"])
}

func TestCloseStopsAcceptLoop(t *testing.T) {
	l, addr := startTestListener(t)

	require.NoError(t, l.Close())

	// give the accept loop a moment to unwind after listener close
	time.Sleep(50 * time.Millisecond)

	_, err := net.Dial("tcp", addr)
	require.Error(t, err)
}
