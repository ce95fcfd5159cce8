// Package replication exposes the two predicates the dispatch core consumes
// from the replication subsystem (topology, heartbeats, election, and the
// oplog writer itself are out of scope and live elsewhere): whether this
// node is primary for a namespace, and the minimum commit id that has not
// yet become durable across the replica set.
package replication

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/docdb/docdbd/pkg/optime"
)

// CommitID is the oplog's monotonically assigned sequence number, packed
// from an optime.OpTime so commit ordering reuses the same strictly
// increasing, clock-skew-tolerant logical clock the rest of the replicated
// write path would stamp operations with.
type CommitID uint64

func packOpTime(t optime.OpTime) CommitID {
	return CommitID(uint64(t.Seconds)<<32 | uint64(t.Counter))
}

func unpackOpTime(id CommitID) optime.OpTime {
	return optime.OpTime{Seconds: uint32(id >> 32), Counter: uint32(id)}
}

// Topology is the interface the dispatch core consumes; a real
// implementation backs this with heartbeats and an election protocol.
type Topology interface {
	// IsPrimaryForNamespace reports whether this node currently accepts
	// writes for db.
	IsPrimaryForNamespace(db string) bool

	// MinimumLiveCommitID returns the lowest commit id not yet durable
	// across the replica set; used as the oplog tailing wait target.
	MinimumLiveCommitID(ctx context.Context) CommitID

	// StepDown transitions this node out of the primary role for every
	// namespace, used by the shutdown coordinator before acquiring the
	// global write lock.
	StepDown(ctx context.Context)
}

// Standalone is a Topology for a single-node deployment: always primary,
// commit id tracked locally with no cross-node coordination.
type Standalone struct {
	primary atomic.Bool
	clock   *optime.Oracle
}

// NewStandalone constructs a Topology that is primary until StepDown is
// called.
func NewStandalone() *Standalone {
	s := &Standalone{clock: optime.New()}
	s.primary.Store(true)
	return s
}

func (s *Standalone) IsPrimaryForNamespace(string) bool {
	return s.primary.Load()
}

func (s *Standalone) MinimumLiveCommitID(context.Context) CommitID {
	return packOpTime(s.clock.GetLast())
}

func (s *Standalone) StepDown(context.Context) {
	s.primary.Store(false)
}

// Advance records that a write committed, assigning it the next logical
// clock tick and waking anyone blocked in WaitForCommitAdvance.
func (s *Standalone) Advance() {
	s.clock.Now()
}

// WaitForCommitAdvance blocks until the minimum-live-commit-id differs from
// base or timeout elapses, per the oplog get-more wait protocol (§4.5): the
// wait must happen without any per-database lock held.
func (s *Standalone) WaitForCommitAdvance(base CommitID, timeout time.Duration) (advanced bool) {
	outcome, _ := s.clock.WaitForAdvance(unpackOpTime(base), timeout)
	return outcome == optime.Advanced
}
