package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Document payloads are carried as length-prefixed JSON. The wire-protocol
// shapes below fix field order and framing (cstring namespace, length-
// prefixed flags/counts) per §6; documents themselves are represented as
// JSON rather than a full BSON codec, since no document-serialization
// library is part of this module's dependency surface.

func readCString(buf []byte, off int) (string, int, error) {
	for i := off; i < len(buf); i++ {
		if buf[i] == 0 {
			return string(buf[off:i]), i + 1, nil
		}
	}
	return "", off, fmt.Errorf("wire: unterminated cstring")
}

func readInt32(buf []byte, off int) (int32, int, error) {
	if off+4 > len(buf) {
		return 0, off, fmt.Errorf("wire: truncated int32 at offset %d", off)
	}
	return int32(binary.LittleEndian.Uint32(buf[off : off+4])), off + 4, nil
}

func readInt64(buf []byte, off int) (int64, int, error) {
	if off+8 > len(buf) {
		return 0, off, fmt.Errorf("wire: truncated int64 at offset %d", off)
	}
	return int64(binary.LittleEndian.Uint64(buf[off : off+8])), off + 8, nil
}

func readDocument(buf []byte, off int) (map[string]any, int, error) {
	length, next, err := readInt32(buf, off)
	if err != nil {
		return nil, off, err
	}
	if length < 0 || int(length) > len(buf)-next+4 {
		return nil, off, fmt.Errorf("wire: invalid document length %d", length)
	}
	end := next - 4 + int(length)
	if end > len(buf) {
		return nil, off, fmt.Errorf("wire: truncated document")
	}
	var doc map[string]any
	if err := json.Unmarshal(buf[next-4:end], &doc); err != nil {
		return nil, off, fmt.Errorf("wire: invalid document encoding: %w", err)
	}
	return doc, end, nil
}

func encodeDocument(doc map[string]any) []byte {
	body, _ := json.Marshal(doc)
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)+4))
	copy(out[4:], body)
	return out
}

// QueryPayload is the decoded body of an OpQuery message.
type QueryPayload struct {
	Flags        int32
	Namespace    string
	NToSkip      int32
	NToReturn    int32
	Query        map[string]any
	ReturnFields map[string]any
}

const QueryFlagExhaust int32 = 1 << 6

func DecodeQuery(payload []byte) (QueryPayload, error) {
	var q QueryPayload
	off := 0
	var err error
	if q.Flags, off, err = readInt32(payload, off); err != nil {
		return q, err
	}
	if q.Namespace, off, err = readCString(payload, off); err != nil {
		return q, err
	}
	if q.NToSkip, off, err = readInt32(payload, off); err != nil {
		return q, err
	}
	if q.NToReturn, off, err = readInt32(payload, off); err != nil {
		return q, err
	}
	if q.Query, off, err = readDocument(payload, off); err != nil {
		return q, err
	}
	if off < len(payload) {
		q.ReturnFields, _, _ = readDocument(payload, off)
	}
	return q, nil
}

// UpdatePayload is the decoded body of an OpUpdate message.
type UpdatePayload struct {
	Namespace string
	Flags     int32
	Selector  map[string]any
	Update    map[string]any
}

const (
	UpdateFlagUpsert    int32 = 1
	UpdateFlagMulti     int32 = 2
	UpdateFlagBroadcast int32 = 4
)

func DecodeUpdate(payload []byte) (UpdatePayload, error) {
	var u UpdatePayload
	off := 0
	var err error
	if _, off, err = readInt32(payload, off); err != nil { // reserved
		return u, err
	}
	if u.Namespace, off, err = readCString(payload, off); err != nil {
		return u, err
	}
	if u.Flags, off, err = readInt32(payload, off); err != nil {
		return u, err
	}
	if u.Selector, off, err = readDocument(payload, off); err != nil {
		return u, err
	}
	if u.Update, _, err = readDocument(payload, off); err != nil {
		return u, err
	}
	return u, nil
}

// DeletePayload is the decoded body of an OpDelete message.
type DeletePayload struct {
	Namespace string
	Flags     int32
	Selector  map[string]any
}

const (
	DeleteFlagJustOne   int32 = 1
	DeleteFlagBroadcast int32 = 4
)

func DecodeDelete(payload []byte) (DeletePayload, error) {
	var d DeletePayload
	off := 0
	var err error
	if _, off, err = readInt32(payload, off); err != nil {
		return d, err
	}
	if d.Namespace, off, err = readCString(payload, off); err != nil {
		return d, err
	}
	if d.Flags, off, err = readInt32(payload, off); err != nil {
		return d, err
	}
	if d.Selector, _, err = readDocument(payload, off); err != nil {
		return d, err
	}
	return d, nil
}

// InsertPayload is the decoded body of an OpInsert message.
type InsertPayload struct {
	Flags     int32
	Namespace string
	Documents []map[string]any
}

const InsertFlagContinueOnError int32 = 1

func DecodeInsert(payload []byte) (InsertPayload, error) {
	var ins InsertPayload
	off := 0
	var err error
	if ins.Flags, off, err = readInt32(payload, off); err != nil {
		return ins, err
	}
	if ins.Namespace, off, err = readCString(payload, off); err != nil {
		return ins, err
	}
	for off < len(payload) {
		var doc map[string]any
		doc, off, err = readDocument(payload, off)
		if err != nil {
			return ins, err
		}
		ins.Documents = append(ins.Documents, doc)
	}
	return ins, nil
}

// GetMorePayload is the decoded body of an OpGetMore message.
type GetMorePayload struct {
	Namespace string
	NToReturn int32
	CursorID  int64
}

func DecodeGetMore(payload []byte) (GetMorePayload, error) {
	var g GetMorePayload
	off := 0
	var err error
	if _, off, err = readInt32(payload, off); err != nil {
		return g, err
	}
	if g.Namespace, off, err = readCString(payload, off); err != nil {
		return g, err
	}
	if g.NToReturn, off, err = readInt32(payload, off); err != nil {
		return g, err
	}
	if g.CursorID, _, err = readInt64(payload, off); err != nil {
		return g, err
	}
	return g, nil
}

// KillCursorsPayload is the decoded body of an OpKillCursors message.
type KillCursorsPayload struct {
	N   int32
	IDs []int64
}

func DecodeKillCursors(payload []byte) (KillCursorsPayload, error) {
	var k KillCursorsPayload
	off := 0
	var err error
	if _, off, err = readInt32(payload, off); err != nil {
		return k, err
	}
	if k.N, off, err = readInt32(payload, off); err != nil {
		return k, err
	}
	if k.N < 0 {
		return k, fmt.Errorf("wire: negative cursor count %d", k.N)
	}
	for i := int32(0); i < k.N; i++ {
		var id int64
		id, off, err = readInt64(payload, off)
		if err != nil {
			return k, err
		}
		k.IDs = append(k.IDs, id)
	}
	return k, nil
}

// EncodeDocument exposes the document encoder for packages composing
// replies and test fixtures outside this package.
func EncodeDocument(doc map[string]any) []byte {
	return encodeDocument(doc)
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

// Encode serializes a QueryPayload into its wire-format body, the inverse of
// DecodeQuery. Used by callers that originate requests in-process, such as
// the direct client.
func (q QueryPayload) Encode() ([]byte, error) {
	buf := appendInt32(nil, q.Flags)
	buf = appendCString(buf, q.Namespace)
	buf = appendInt32(buf, q.NToSkip)
	buf = appendInt32(buf, q.NToReturn)
	buf = append(buf, encodeDocument(q.Query)...)
	if q.ReturnFields != nil {
		buf = append(buf, encodeDocument(q.ReturnFields)...)
	}
	return buf, nil
}

// EncodeGetMore serializes a GetMorePayload into its wire-format body.
func EncodeGetMore(g GetMorePayload) []byte {
	buf := appendInt32(nil, 0)
	buf = appendCString(buf, g.Namespace)
	buf = appendInt32(buf, g.NToReturn)
	buf = appendInt64(buf, g.CursorID)
	return buf
}

// EncodeKillCursors serializes a cursor id list into its wire-format body.
func EncodeKillCursors(ids []int64) []byte {
	buf := appendInt32(nil, 0)
	buf = appendInt32(buf, int32(len(ids)))
	for _, id := range ids {
		buf = appendInt64(buf, id)
	}
	return buf
}

// DecodeReplyDocuments parses a REPLY payload and returns its documents.
func DecodeReplyDocuments(payload []byte) ([]map[string]any, error) {
	if len(payload) < 20 {
		return nil, fmt.Errorf("wire: truncated reply payload")
	}
	nReturned, _, err := readInt32(payload, 16)
	if err != nil {
		return nil, err
	}
	off := 20
	docs := make([]map[string]any, 0, nReturned)
	for off < len(payload) {
		var doc map[string]any
		doc, off, err = readDocument(payload, off)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
