package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildQueryPayload(ns string, query map[string]any) []byte {
	var buf []byte
	flags := make([]byte, 4)
	buf = append(buf, flags...)
	buf = append(buf, []byte(ns)...)
	buf = append(buf, 0)
	buf = append(buf, make([]byte, 8)...) // skip, return
	buf = append(buf, EncodeDocument(query)...)
	return buf
}

func TestDecodeQuery(t *testing.T) {
	payload := buildQueryPayload("test.$cmd.sys.inprog", map[string]any{"a": float64(1)})
	q, err := DecodeQuery(payload)
	require.NoError(t, err)
	require.Equal(t, "test.$cmd.sys.inprog", q.Namespace)
	require.Equal(t, float64(1), q.Query["a"])
}

func TestDecodeUpdate(t *testing.T) {
	var buf []byte
	buf = append(buf, make([]byte, 4)...)
	buf = append(buf, []byte("test.users")...)
	buf = append(buf, 0)
	flags := make([]byte, 4)
	binary.LittleEndian.PutUint32(flags, uint32(UpdateFlagUpsert|UpdateFlagMulti))
	buf = append(buf, flags...)
	buf = append(buf, EncodeDocument(map[string]any{"a": float64(1)})...)
	buf = append(buf, EncodeDocument(map[string]any{"$set": map[string]any{"b": float64(2)}})...)

	u, err := DecodeUpdate(buf)
	require.NoError(t, err)
	require.Equal(t, "test.users", u.Namespace)
	require.Equal(t, UpdateFlagUpsert|UpdateFlagMulti, u.Flags)
	require.Equal(t, float64(1), u.Selector["a"])
}

func TestDecodeKillCursorsRoundTrip(t *testing.T) {
	var buf []byte
	buf = append(buf, make([]byte, 4)...)
	n := make([]byte, 4)
	binary.LittleEndian.PutUint32(n, 2)
	buf = append(buf, n...)
	for _, id := range []int64{10, 20} {
		idBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(idBuf, uint64(id))
		buf = append(buf, idBuf...)
	}

	k, err := DecodeKillCursors(buf)
	require.NoError(t, err)
	require.Equal(t, int32(2), k.N)
	require.Equal(t, []int64{10, 20}, k.IDs)
}

func TestDecodeInsertMultipleDocuments(t *testing.T) {
	var buf []byte
	buf = append(buf, make([]byte, 4)...)
	buf = append(buf, []byte("test.users")...)
	buf = append(buf, 0)
	buf = append(buf, EncodeDocument(map[string]any{"a": float64(1)})...)
	buf = append(buf, EncodeDocument(map[string]any{"a": float64(2)})...)

	ins, err := DecodeInsert(buf)
	require.NoError(t, err)
	require.Len(t, ins.Documents, 2)
}
