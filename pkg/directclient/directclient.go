// Package directclient implements the in-process façade of §4.8: the same
// send/call/query/count/killCursor verbs an over-the-wire client uses,
// driving the dispatch core directly without a socket in between. Internal
// callers (admin tooling, background jobs) use this instead of opening a
// loopback connection.
package directclient

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/dispatch"
	"github.com/docdb/docdbd/pkg/wire"
)

// sentinelRemote is the fixed pseudo-address direct clients present to the
// current-op registry and logging, so in-process calls are visibly
// distinguishable from real network peers.
const sentinelRemote = "direct"

// Responder is satisfied by *dispatch.Dispatcher.
type Responder interface {
	AssembleResponse(ctx context.Context, msg *wire.Message, client *curop.Client) dispatch.DbResponse
}

// Client is the in-process façade. It masks EXHAUST from its own advertised
// query options, since there is no connection loop to self-drive a
// continuation for.
type Client struct {
	dispatcher Responder
	client     *curop.Client
	nextReqID  int32
}

// New constructs a direct client against the given dispatcher, registering
// a fresh curop.Client under the sentinel remote address.
func New(dispatcher Responder, registry *curop.Registry) *Client {
	return &Client{
		dispatcher: dispatcher,
		client:     registry.NewClient(sentinelRemote),
	}
}

func (c *Client) nextRequestID() int32 {
	c.nextReqID++
	return c.nextReqID
}

// Say sends a fire-and-forget message and discards any reply.
func (c *Client) Say(ctx context.Context, opcode wire.Opcode, payload []byte) {
	msg := &wire.Message{
		Header: wire.Header{RequestID: c.nextRequestID(), Opcode: opcode},
		Payload: payload,
	}
	c.dispatcher.AssembleResponse(ctx, msg, c.client)
}

// Call sends a message and returns the reply, following any exhaust
// continuation chain into a single contiguous buffer.
func (c *Client) Call(ctx context.Context, opcode wire.Opcode, payload []byte) ([]byte, error) {
	msg := &wire.Message{
		Header: wire.Header{RequestID: c.nextRequestID(), Opcode: opcode},
		Payload: payload,
	}

	resp := c.dispatcher.AssembleResponse(ctx, msg, c.client)
	out := append([]byte(nil), resp.Payload...)

	for resp.ExhaustNamespace != "" {
		if len(resp.Payload) < 12 {
			break
		}
		cursorID := int64(binary.LittleEndian.Uint64(resp.Payload[4:12]))
		if cursorID == 0 {
			break
		}
		gm := wire.GetMorePayload{Namespace: resp.ExhaustNamespace, NToReturn: 0, CursorID: cursorID}
		next := &wire.Message{
			Header: wire.Header{RequestID: c.nextRequestID(), Opcode: wire.OpGetMore},
			Payload: wire.EncodeGetMore(gm),
		}
		resp = c.dispatcher.AssembleResponse(ctx, next, c.client)
		out = append(out, resp.Payload...)
	}

	return out, nil
}

// Query runs a QUERY and returns the decoded reply documents.
func (c *Client) Query(ctx context.Context, namespace string, query map[string]any) ([]map[string]any, error) {
	q := wire.QueryPayload{Namespace: namespace, Query: query}
	payload, err := q.Encode()
	if err != nil {
		return nil, fmt.Errorf("directclient: encode query: %w", err)
	}

	reply, err := c.Call(ctx, wire.OpQuery, payload)
	if err != nil {
		return nil, err
	}
	return wire.DecodeReplyDocuments(reply)
}

// Count runs a QUERY with selector against namespace and returns the number
// of documents in the reply; it does not issue a count command.
func (c *Client) Count(ctx context.Context, namespace string, selector map[string]any) (int, error) {
	docs, err := c.Query(ctx, namespace, selector)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// KillCursor erases a single cursor by id.
func (c *Client) KillCursor(ctx context.Context, cursorID int64) {
	payload := wire.EncodeKillCursors([]int64{cursorID})
	c.Say(ctx, wire.OpKillCursors, payload)
}
