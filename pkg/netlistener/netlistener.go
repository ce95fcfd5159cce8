// Package netlistener runs the TCP accept loop that feeds framed wire
// messages into the dispatch core. Its lifecycle management (listener
// ownership, per-connection WaitGroup tracking, a connection semaphore,
// forced closure on shutdown timeout) is grounded on the teacher's shared
// protocol-adapter base, generalized from byte-stream NFS/SMB framing to
// the fixed 16-byte wire header this module reads.
package netlistener

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/dispatch"
	"github.com/docdb/docdbd/pkg/wire"
)

// Config controls listener bind address and shutdown behavior.
type Config struct {
	Addr            string
	MaxConnections  int
	ShutdownTimeout time.Duration
}

// Listener accepts connections and drives each through the dispatcher.
type Listener struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	registry   *curop.Registry

	mu       sync.RWMutex
	listener net.Listener

	active    sync.WaitGroup
	semaphore chan struct{}
	conns     sync.Map // remote addr -> net.Conn

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New constructs a Listener. Call Serve to start accepting.
func New(cfg Config, dispatcher *dispatch.Dispatcher, registry *curop.Registry) *Listener {
	var sem chan struct{}
	if cfg.MaxConnections > 0 {
		sem = make(chan struct{}, cfg.MaxConnections)
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Listener{
		cfg:        cfg,
		dispatcher: dispatcher,
		registry:   registry,
		semaphore:  sem,
		shutdown:   make(chan struct{}),
	}
}

// Serve binds the listener and accepts connections until ctx is cancelled
// or Close is called. It blocks until the accept loop exits.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("netlistener: listen %s: %w", l.cfg.Addr, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	logger.Info("wire listener started", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		l.initiateShutdown()
	}()

	for {
		if l.semaphore != nil {
			select {
			case l.semaphore <- struct{}{}:
			case <-l.shutdown:
				return l.drain()
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if l.semaphore != nil {
				<-l.semaphore
			}
			select {
			case <-l.shutdown:
				return l.drain()
			default:
				logger.Warn("wire listener accept error", "error", err)
				continue
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		addr := conn.RemoteAddr().String()
		l.conns.Store(addr, conn)
		l.active.Add(1)

		go func() {
			defer func() {
				l.conns.Delete(addr)
				l.active.Done()
				if l.semaphore != nil {
					<-l.semaphore
				}
			}()
			l.serveConn(ctx, conn)
		}()
	}
}

// Close satisfies pkg/shutdown.ListenerCloser.
func (l *Listener) Close() error {
	l.initiateShutdown()
	return nil
}

func (l *Listener) initiateShutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdown)
		l.mu.RLock()
		ln := l.listener
		l.mu.RUnlock()
		if ln != nil {
			_ = ln.Close()
		}
		deadline := time.Now().Add(100 * time.Millisecond)
		l.conns.Range(func(_, v any) bool {
			if c, ok := v.(net.Conn); ok {
				_ = c.SetReadDeadline(deadline)
			}
			return true
		})
	})
}

func (l *Listener) drain() error {
	done := make(chan struct{})
	go func() {
		l.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(l.cfg.ShutdownTimeout):
		l.conns.Range(func(_, v any) bool {
			if c, ok := v.(net.Conn); ok {
				_ = c.Close()
			}
			return true
		})
		return fmt.Errorf("netlistener: shutdown timeout, connections force-closed")
	}
}

// serveConn reads framed requests off conn until it errors or closes,
// dispatching each through the core and following any exhaust chain the
// reply requests before returning to reading the next client request.
func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	client := l.registry.NewClient(remote)
	defer l.registry.Remove(client.ID)

	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}

		resp := l.dispatcher.AssembleResponse(ctx, msg, client)
		if resp.HasPayload() {
			if err := wire.WriteMessage(conn, 0, resp.ResponseTo, wire.OpReply, resp.Payload); err != nil {
				return
			}
		}

		for resp.ExhaustNamespace != "" {
			cursorID, ok := replyCursorID(resp.Payload)
			if !ok || cursorID == 0 {
				break
			}
			getMore := wire.EncodeGetMore(wire.GetMorePayload{
				Namespace: resp.ExhaustNamespace,
				CursorID:  cursorID,
			})
			resp = l.dispatcher.AssembleResponse(ctx, &wire.Message{
				Header:  wire.Header{Opcode: wire.OpGetMore},
				Payload: getMore,
			}, client)
			if resp.HasPayload() {
				if err := wire.WriteMessage(conn, 0, resp.ResponseTo, wire.OpReply, resp.Payload); err != nil {
					return
				}
			}
		}
	}
}

// replyCursorID extracts the cursor id embedded at offset 4 of an encoded
// OpReply body (response_flags:4, cursor_id:8, ...), the inverse of
// wire.ReplyPayload.Encode.
func replyCursorID(payload []byte) (int64, bool) {
	if len(payload) < 12 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(payload[4:12])), true
}
