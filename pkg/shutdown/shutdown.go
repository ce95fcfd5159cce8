// Package shutdown implements the idempotent, reentrancy-bounded teardown
// coordinator described in §4.9, grounded on the orchestration style of the
// teacher's runtime/lifecycle service: a single entry point, a call counter
// that degrades gracefully under repeated invocation, and an on-disk
// instance lock released as the very last step.
package shutdown

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/replication"
)

// ShutdownFlag is set by ExitCleanly and probed by long-poll handlers.
type ShutdownFlag interface {
	SetShuttingDown(v bool)
}

// StorageCloser is implemented by the storage engine.
type StorageCloser interface {
	Close() error
}

// ListenerCloser is implemented by every listening socket the server holds.
type ListenerCloser interface {
	Close() error
}

// DiagCloser is implemented by the diagnostic log side-channel; it is nil
// when diagnostic logging was never enabled.
type DiagCloser interface {
	Close() error
}

// Coordinator drives the shutdown sequence. Exit defaults to os.Exit; tests
// inject a recording stand-in.
type Coordinator struct {
	Flag         ShutdownFlag
	Topology     replication.Topology
	Locks        *lockmgr.Manager
	Storage      StorageCloser
	Listeners    []ListenerCloser
	Diag         DiagCloser
	InstanceLock *os.File
	Exit         func(code int)

	callCount atomic.Int32
}

// New constructs a Coordinator. Exit defaults to os.Exit if nil.
func New(deps Coordinator) *Coordinator {
	c := deps
	if c.Exit == nil {
		c.Exit = os.Exit
	}
	return &c
}

// ExitCleanly implements exit_cleanly(code): flips the shutting-down flag,
// steps down from replication, acquires the global write lock, and invokes
// Dbexit.
func (c *Coordinator) ExitCleanly(ctx context.Context, code int) {
	if c.Flag != nil {
		c.Flag.SetShuttingDown(true)
	}
	if c.Topology != nil {
		c.Topology.StepDown(ctx)
	}

	var h *lockmgr.Handle
	if c.Locks != nil {
		h = c.Locks.LockGlobal(lockmgr.WriteLock)
	}

	c.Dbexit(code, "normal shutdown")

	if h != nil {
		h.Unlock()
	}
}

// Dbexit implements the idempotent dbexit(code, why) sequence: call 1
// proceeds through the full teardown; calls 2 through 5 log and fast-exit;
// call 6 onward bypasses even logging, in case the logger itself is what is
// wedged.
func (c *Coordinator) Dbexit(code int, why string) {
	n := c.callCount.Add(1)

	switch {
	case n == 1:
		c.teardown(code, why)
	case n >= 2 && n <= 5:
		logger.Error("dbexit called again during shutdown, fast-exiting", "call", n, "why", why)
		c.Exit(code)
	default:
		c.Exit(code)
	}
}

func (c *Coordinator) teardown(code int, why string) {
	logger.Info("shutting down", "why", why)

	for _, l := range c.Listeners {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			logger.Warn("error closing listener during shutdown", "error", err)
		}
	}

	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			logger.Warn("error closing storage engine during shutdown", "error", err)
		}
	}

	if c.Diag != nil {
		if err := c.Diag.Close(); err != nil {
			logger.Warn("error flushing diagnostic log during shutdown", "error", err)
		}
	}

	c.releaseInstanceLock()

	c.Exit(code)
}

// releaseInstanceLock truncates and releases the on-disk instance lock file,
// mirroring mongod.lock's flock-then-truncate release sequence, and drops
// the OS file handle.
func (c *Coordinator) releaseInstanceLock() {
	if c.InstanceLock == nil {
		return
	}
	if err := c.InstanceLock.Truncate(0); err != nil {
		logger.Warn("error truncating instance lock", "error", err)
	}
	if err := unlockFile(c.InstanceLock); err != nil {
		logger.Warn("error unlocking instance lock", "error", err)
	}
	if err := c.InstanceLock.Close(); err != nil {
		logger.Warn("error closing instance lock handle", "error", err)
	}
	c.InstanceLock = nil
}
