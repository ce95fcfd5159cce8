package lockmgr

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConcurrentReadersAllowed(t *testing.T) {
	m := New()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := m.LockDB("test", ReadLock)
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			h.Unlock()
		}()
	}
	wg.Wait()
	require.Greater(t, maxActive, int32(1), "readers should overlap")
}

func TestWriterExcludesReaders(t *testing.T) {
	m := New()
	h := m.LockDB("test", WriteLock)

	done := make(chan struct{})
	go func() {
		r := m.LockDB("test", ReadLock)
		r.Unlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("reader acquired lock while writer held it")
	case <-time.After(30 * time.Millisecond):
	}

	h.Unlock()
	<-done
}

func TestWithDBLockRetriesUnderWriteLock(t *testing.T) {
	m := New()
	attempts := 0

	err := m.WithDBLock("test", func(mode Mode) error {
		attempts++
		if mode == ReadLock {
			return ErrRetryWithWriteLock
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, uint64(1), m.Stats().Upgrades)
}

func TestWithDBLockNoRetryWhenBodySucceedsUnderReadLock(t *testing.T) {
	m := New()
	attempts := 0

	err := m.WithDBLock("test", func(mode Mode) error {
		attempts++
		require.Equal(t, ReadLock, mode)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, uint64(0), m.Stats().Upgrades)
}

func TestLockBalanceAcrossManyGoroutines(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mode := ReadLock
			if i%3 == 0 {
				mode = WriteLock
			}
			h := m.LockDB("balance", mode)
			h.Unlock()
		}(i)
	}
	wg.Wait()
	// If locks were unbalanced, a subsequent write acquisition would hang;
	// the test's own completion is the assertion.
	h := m.LockDB("balance", WriteLock)
	h.Unlock()
}
