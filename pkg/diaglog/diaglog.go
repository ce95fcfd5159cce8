// Package diaglog implements the diagnostic log: an append-only, binary
// trace of every request the dispatch core has seen, written before any
// locking or transactional work begins. It is grounded on pkg/wal's mmap
// persister header layout (magic, version, growing offset) but trades the
// mmap-and-grow-in-place scheme for a buffered sequential writer, since the
// diagnostic log is write-only and never replayed in place the way the WAL
// is replayed for crash recovery.
package diaglog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"time"
)

const (
	magic   = "DDLG" // docdbd diag log
	version = uint16(1)

	entryKindRead  = byte(1)
	entryKindWrite = byte(2)
)

// ErrVersionMismatch is returned by Open when an existing log file carries a
// version this build does not understand.
var ErrVersionMismatch = errors.New("diaglog: version mismatch")

// Log is an append-only recorder of request payloads, tagged read or write
// and timestamped, consulted only for offline diagnosis; nothing in the
// dispatch core reads it back at runtime.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// Open creates or appends to the diagnostic log at path. A fresh file gets a
// magic/version header; an existing file has its header validated.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() == 0 {
		hdr := make([]byte, 6)
		copy(hdr[0:4], magic)
		binary.LittleEndian.PutUint16(hdr[4:6], version)
		if _, err := f.Write(hdr); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		hdr := make([]byte, 6)
		if _, err := f.ReadAt(hdr, 0); err != nil {
			f.Close()
			return nil, err
		}
		if string(hdr[0:4]) != magic {
			f.Close()
			return nil, errors.New("diaglog: bad magic")
		}
		if binary.LittleEndian.Uint16(hdr[4:6]) != version {
			f.Close()
			return nil, ErrVersionMismatch
		}
	}

	return &Log{file: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

// RecordRead appends a read-classified payload entry.
func (l *Log) RecordRead(payload []byte) {
	l.append(entryKindRead, payload)
}

// RecordWrite appends a write-classified payload entry.
func (l *Log) RecordWrite(payload []byte) {
	l.append(entryKindWrite, payload)
}

// append writes one framed entry: kind (1 byte), unix-nano timestamp (8
// bytes), payload length (4 bytes), payload. Failures are swallowed; the
// diagnostic log is best-effort and must never affect request handling.
func (l *Log) append(kind byte, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	var hdr [13]byte
	hdr[0] = kind
	binary.LittleEndian.PutUint64(hdr[1:9], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(len(payload)))

	if _, err := l.w.Write(hdr[:]); err != nil {
		return
	}
	_, _ = l.w.Write(payload)
}

// Flush forces buffered entries out to the OS, without requiring a durable
// fsync; the diagnostic log does not need to survive a crash to be useful.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.w.Flush()
}

// Close flushes and releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
