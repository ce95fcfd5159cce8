package dispatch

import (
	"fmt"

	"github.com/docdb/docdbd/internal/logger"
)

// ErrorKind classifies a DispatchError per spec §7.
type ErrorKind int

const (
	KindUserError ErrorKind = iota
	KindAssertion
	KindStaleShardConfig
	KindInterrupted
	KindNotMaster
	KindUnauthorized
	KindInvalidNamespace
	KindShuttingDown
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindUserError:
		return "user-error"
	case KindAssertion:
		return "assertion"
	case KindStaleShardConfig:
		return "stale-shard-config"
	case KindInterrupted:
		return "interrupted"
	case KindNotMaster:
		return "not-master"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidNamespace:
		return "invalid-namespace"
	case KindShuttingDown:
		return "shutting-down"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DispatchError is the error type internal handlers raise; AssembleResponse
// contains every kind except KindFatal within the reply or last-error slot.
type DispatchError struct {
	Kind    ErrorKind
	Code    int
	Message string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch: %s (%d): %s", e.Kind, e.Code, e.Message)
}

func NewUserError(code int, msg string) *DispatchError {
	return &DispatchError{Kind: KindUserError, Code: code, Message: msg}
}

func NewAssertionError(code int, msg string) *DispatchError {
	return &DispatchError{Kind: KindAssertion, Code: code, Message: msg}
}

func NewNotMasterError() *DispatchError {
	return &DispatchError{Kind: KindNotMaster, Code: 10054, Message: "not master"}
}

func NewUnauthorizedError() *DispatchError {
	return &DispatchError{Kind: KindUnauthorized, Code: 13, Message: "unauthorized"}
}

func NewInvalidNamespaceError(code int, msg string) *DispatchError {
	return &DispatchError{Kind: KindInvalidNamespace, Code: code, Message: msg}
}

func NewInterruptedError() *DispatchError {
	return &DispatchError{Kind: KindInterrupted, Code: 11601, Message: "operation was interrupted"}
}

// cursorInterruptedCode is the dedicated code a get-more reply uses when a
// cursor is killed mid-iteration (§4.5).
const cursorInterruptedCode = 13436

func NewCursorInterruptedError() *DispatchError {
	return &DispatchError{Kind: KindInterrupted, Code: cursorInterruptedCode, Message: "cursor killed"}
}

// Abort raises a fatal error: log and terminate, matching the teacher's
// convention of logging fatal conditions then calling os.Exit rather than
// panicking across goroutine boundaries. exit is injected so tests can
// intercept termination instead of linking os.Exit.
func Abort(reason string, exit func(code int)) {
	logger.Error("fatal error, aborting", "reason", reason)
	exit(1)
}
