package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for dispatch-core spans.
const (
	AttrClientAddr = "client.address"
	AttrUsername   = "user.name"
	AttrOpcode     = "dispatch.opcode"
	AttrNamespace  = "dispatch.namespace"
	AttrRequestID  = "dispatch.request_id"
)

// SpanDispatchRequest is the root span covering one AssembleResponse call.
const SpanDispatchRequest = "dispatch.request"

// ClientAddr returns an attribute for the connection's remote address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Username returns an attribute for the authenticated client's username.
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Opcode returns an attribute for the wire opcode name (e.g. "QUERY").
func Opcode(name string) attribute.KeyValue {
	return attribute.String(AttrOpcode, name)
}

// Namespace returns an attribute for the target db.collection namespace.
func Namespace(ns string) attribute.KeyValue {
	return attribute.String(AttrNamespace, ns)
}

// RequestID returns an attribute for the wire message's request id.
func RequestID(id int32) attribute.KeyValue {
	return attribute.Int64(AttrRequestID, int64(id))
}

// StartDispatchSpan starts the root span for a single dispatched request,
// tagging it with the opcode and remote address known at entry; the
// namespace is filled in once routing decodes the message body.
func StartDispatchSpan(ctx context.Context, opcode, remote string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Opcode(opcode),
		ClientAddr(remote),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanDispatchRequest, trace.WithAttributes(allAttrs...))
}
