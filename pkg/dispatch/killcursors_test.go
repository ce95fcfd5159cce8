package dispatch

import (
	"testing"

	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/storage"
	"github.com/docdb/docdbd/pkg/wire"
	"github.com/stretchr/testify/require"
)

func encodeKillCursors(ids []int64) []byte {
	buf := make([]byte, 0, 8+len(ids)*8)
	var tmp [4]byte
	putI32 := func(v int32) {
		tmp[0] = byte(v)
		tmp[1] = byte(v >> 8)
		tmp[2] = byte(v >> 16)
		tmp[3] = byte(v >> 24)
		buf = append(buf, tmp[:]...)
	}
	putI32(0)
	putI32(int32(len(ids)))
	for _, id := range ids {
		var tmp8 [8]byte
		for i := 0; i < 8; i++ {
			tmp8[i] = byte(id >> (8 * i))
		}
		buf = append(buf, tmp8[:]...)
	}
	return buf
}

func TestHandleKillCursorsErasesOpenCursors(t *testing.T) {
	d := New(Dispatcher{Cursors: NewCursorRegistry()})

	id := d.Cursors.Open("test.coll", []storage.Document{{"a": 1}, {"b": 2}}, false)
	require.NotZero(t, id)

	msg := &wire.Message{Payload: encodeKillCursors([]int64{id})}
	op := &curop.Op{ID: 1}

	d.handleKillCursors(msg, op)

	require.Equal(t, 0, d.Cursors.Count())
}

func TestHandleKillCursorsToleratesMissingIDs(t *testing.T) {
	d := New(Dispatcher{Cursors: NewCursorRegistry()})

	msg := &wire.Message{Payload: encodeKillCursors([]int64{999})}
	op := &curop.Op{ID: 1}

	require.NotPanics(t, func() {
		d.handleKillCursors(msg, op)
	})
}

func TestHandleKillCursorsRejectsOversizePayload(t *testing.T) {
	d := New(Dispatcher{Cursors: NewCursorRegistry()})

	ids := make([]int64, 30001)
	msg := &wire.Message{Payload: encodeKillCursors(ids)}
	op := &curop.Op{ID: 1}

	require.NotPanics(t, func() {
		d.handleKillCursors(msg, op)
	})

	require.Equal(t, 0, d.Cursors.Count())
}

func TestHandleKillCursorsRejectsZeroCount(t *testing.T) {
	d := New(Dispatcher{Cursors: NewCursorRegistry()})

	id := d.Cursors.Open("test.coll", []storage.Document{{"a": 1}}, false)
	msg := &wire.Message{Payload: encodeKillCursors(nil)}
	op := &curop.Op{ID: 1}

	d.handleKillCursors(msg, op)

	require.Equal(t, 1, d.Cursors.Count())
	_ = id
}
