package diaglog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesHeaderOnFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 6 {
		t.Errorf("header size = %d, want 6", info.Size())
	}
}

func TestRecordReadAndWriteAppendEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	l.RecordRead([]byte("query-payload"))
	l.RecordWrite([]byte("insert-payload"))

	if err := l.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	wantSize := int64(6 + 13 + len("query-payload") + 13 + len("insert-payload"))
	if info.Size() != wantSize {
		t.Errorf("file size = %d, want %d", info.Size(), wantSize)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestReopenValidatesExistingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	l.RecordRead([]byte("x"))
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer l2.Close()
}

func TestAppendAfterCloseIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	l.RecordRead([]byte("after-close"))

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 6 {
		t.Errorf("file size = %d, want 6 (no entry appended after close)", info.Size())
	}
}
