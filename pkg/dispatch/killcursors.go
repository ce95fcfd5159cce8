package dispatch

import (
	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/wire"
)

const (
	killCursorsHardLimit = 30000
	killCursorsWarnLimit = 2000
)

// handleKillCursors implements §4.6: always accepted, no namespace, no
// reply produced.
func (d *Dispatcher) handleKillCursors(msg *wire.Message, op *curop.Op) {
	kc, err := wire.DecodeKillCursors(msg.Payload)
	if err != nil {
		logger.Warn("malformed kill-cursors payload", "op", op.ID, "error", err)
		return
	}

	op.SetDebug("n", kc.N)

	if kc.N <= 0 {
		return
	}
	if int(kc.N) >= killCursorsHardLimit {
		logger.Error("kill-cursors request rejected: too many cursor ids", "op", op.ID, "n", kc.N)
		return
	}
	if int(kc.N) > killCursorsWarnLimit {
		logger.Warn("kill-cursors request carries an unusually large id list", "op", op.ID, "n", kc.N)
	}

	found := d.Cursors.Erase(kc.IDs)
	if found != len(kc.IDs) {
		logger.Info("kill-cursors found fewer cursors than requested",
			"op", op.ID, "requested", len(kc.IDs), "found", found)
	}
}
