package dispatch

import (
	"context"

	"github.com/docdb/docdbd/pkg/curop"
)

// DbResponse is the outcome of AssembleResponse.
type DbResponse struct {
	Payload          []byte // an encoded OpReply body, or nil
	ResponseTo       int32
	ExhaustNamespace string // non-empty requests an implicit GET_MORE continuation
}

// HasPayload reports whether a reply message should be written back.
func (r DbResponse) HasPayload() bool { return r.Payload != nil }

// AdminDispatcher is the narrow interface the admin sub-dispatcher
// satisfies; declared here (rather than imported concretely) so pkg/admin
// can depend on pkg/dispatch's shared types without a cycle. namespace is
// the full request namespace (e.g. "admin.$cmd.sys.unlock"), passed through
// so the admin dispatcher can enforce the admin-DB-only rule itself.
type AdminDispatcher interface {
	Dispatch(ctx context.Context, namespace, verb string, query map[string]any, client *curop.Client) []byte
}

// Router, Topology and Storage mirror pkg/sharding.Router,
// pkg/replication.Topology and pkg/storage.Engine; Dispatcher depends on
// those packages directly. This file only documents the seam.
