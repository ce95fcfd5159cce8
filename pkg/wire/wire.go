// Package wire implements the framed binary message format exchanged between
// a client and the dispatch core: a fixed header followed by an
// opcode-specific payload.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Opcode identifies the kind of operation carried by a Message.
type Opcode int32

const (
	OpReply       Opcode = 1
	OpUpdate      Opcode = 2001
	OpInsert      Opcode = 2002
	OpQuery       Opcode = 2004
	OpGetMore     Opcode = 2005
	OpDelete      Opcode = 2006
	OpKillCursors Opcode = 2007
	OpMsg         Opcode = 1000
)

func (o Opcode) String() string {
	switch o {
	case OpReply:
		return "REPLY"
	case OpUpdate:
		return "UPDATE"
	case OpInsert:
		return "INSERT"
	case OpQuery:
		return "QUERY"
	case OpGetMore:
		return "GET_MORE"
	case OpDelete:
		return "DELETE"
	case OpKillCursors:
		return "KILL_CURSORS"
	case OpMsg:
		return "MSG"
	default:
		return fmt.Sprintf("OPCODE(%d)", int32(o))
	}
}

// HeaderSize is the on-wire size of Header in bytes.
const HeaderSize = 16

// MaxMessageSize bounds total_length to guard against runaway allocations
// from a corrupt or hostile peer.
const MaxMessageSize = 48 * 1024 * 1024

// Header is the fixed-size preamble of every wire Message.
type Header struct {
	TotalLength int32
	RequestID   int32
	ResponseTo  int32
	Opcode      Opcode
}

// Message is a framed unit: a parsed header plus its payload bytes (the
// payload does not include the header itself).
type Message struct {
	Header  Header
	Payload []byte
}

// ReadMessage reads one framed message from r, validating the header before
// allocating a payload buffer sized to it.
func ReadMessage(r io.Reader) (*Message, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("wire: read header: %w", err)
	}

	h := Header{
		TotalLength: int32(binary.LittleEndian.Uint32(hdr[0:4])),
		RequestID:   int32(binary.LittleEndian.Uint32(hdr[4:8])),
		ResponseTo:  int32(binary.LittleEndian.Uint32(hdr[8:12])),
		Opcode:      Opcode(binary.LittleEndian.Uint32(hdr[12:16])),
	}

	if h.TotalLength < HeaderSize {
		return nil, fmt.Errorf("wire: total_length %d smaller than header", h.TotalLength)
	}
	if int(h.TotalLength) > MaxMessageSize {
		return nil, fmt.Errorf("wire: total_length %d exceeds max %d", h.TotalLength, MaxMessageSize)
	}

	payloadLen := int(h.TotalLength) - HeaderSize
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: read payload: %w", err)
		}
	}

	return &Message{Header: h, Payload: payload}, nil
}

// WriteMessage serializes a header for the given opcode/responseTo plus the
// raw payload, and writes both to w.
func WriteMessage(w io.Writer, requestID, responseTo int32, opcode Opcode, payload []byte) error {
	total := HeaderSize + len(payload)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(requestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(responseTo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(opcode))
	copy(buf[HeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// Reply response flag bits, see spec §6.
const (
	ReplyFlagCursorNotFound  int32 = 1
	ReplyFlagErrSet          int32 = 2
	ReplyFlagShardConfigStale int32 = 4
)

// ReplyPayload is the structured form of an OpReply body.
type ReplyPayload struct {
	ResponseFlags int32
	CursorID      int64
	StartingFrom  int32
	Documents     [][]byte
}

// Encode serializes a ReplyPayload into its wire representation.
func (r ReplyPayload) Encode() []byte {
	size := 4 + 8 + 4 + 4
	for _, d := range r.Documents {
		size += len(d)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.ResponseFlags))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.CursorID))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.StartingFrom))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(r.Documents)))
	off := 20
	for _, d := range r.Documents {
		off += copy(buf[off:], d)
	}
	return buf
}
