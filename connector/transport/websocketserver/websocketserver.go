// Package websocketserver implements the server-side websocket variant of
// the Transport contract (spec §4.5): a listener that accepts exactly one
// client, drives a 1s ping/pong keepalive, and forwards Text frames in
// both directions.
package websocketserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RebelTat/buttplug/connector/serializer"
	"github.com/RebelTat/buttplug/connector/transport"
)

// ErrAlreadyConnected is returned by Connect if called more than once on
// the same Transport instance.
var ErrAlreadyConnected = errors.New("websocketserver: transport already connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Transport is the websocket-server Transport. A single instance accepts
// exactly one client connection; build a new Transport for each logical
// server session.
type Transport struct {
	options *Options
	logger  *zap.Logger

	outbound chan serializer.Frame
	closeCh  chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
	conn     *websocket.Conn
}

// New constructs a Transport. Call Connect to start listening.
func New(logger *zap.Logger, opts ...Option) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		options:  NewOptions(opts...),
		logger:   logger.Named("websocketserver"),
		outbound: make(chan serializer.Frame, 16),
		closeCh:  make(chan struct{}),
	}
}

// Connect binds the listener, accepts exactly one connection, upgrades
// it, and spawns the connection loop. It returns once the upgrade has
// completed (or failed).
func (t *Transport) Connect(ctx context.Context, in chan<- transport.Incoming) error {
	t.mu.Lock()
	if t.listener != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}

	addr := t.options.address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("websocketserver: bind %s: %w", addr, err)
	}
	t.listener = &singleAcceptListener{Listener: listener}
	t.mu.Unlock()

	t.logger.Debug("listening", zap.String("address", addr))

	upgraded := make(chan *websocket.Conn, 1)
	upgradeErr := make(chan error, 1)
	srv := &http.Server{Handler: upgradeHandler(upgraded, upgradeErr)}
	if t.options.HandshakeTimeout > 0 {
		srv.ReadHeaderTimeout = t.options.HandshakeTimeout
	}
	go func() {
		// Serve returns as soon as the single-accept listener has handed
		// out its one connection and refused the next Accept call; that
		// error is expected and not reported upward.
		_ = srv.Serve(t.listener)
	}()

	select {
	case conn := <-upgraded:
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		t.logger.Info("client connected")
		go t.connectionLoop(conn, in)
		return nil
	case err := <-upgradeErr:
		listener.Close()
		return fmt.Errorf("websocketserver: upgrade: %w", err)
	case <-ctx.Done():
		listener.Close()
		return ctx.Err()
	}
}

// singleAcceptListener wraps a net.Listener so that only the first Accept
// call succeeds; every call after that fails, which causes the http.Server
// driving it to stop serving. This gives the "exactly one client at a
// time" semantics of spec §4.5 without hand-rolling the HTTP upgrade
// handshake.
type singleAcceptListener struct {
	net.Listener

	mu   sync.Mutex
	used bool
}

func (l *singleAcceptListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.used {
		l.mu.Unlock()
		return nil, fmt.Errorf("websocketserver: only one client connection is accepted")
	}
	l.used = true
	l.mu.Unlock()
	return l.Listener.Accept()
}

func upgradeHandler(upgraded chan<- *websocket.Conn, errCh chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		upgraded <- conn
	}
}

// Send enqueues an outbound frame for the connection loop. It never
// blocks the caller indefinitely: if the transport has already closed,
// Send returns an error instead of leaking a goroutine on a full channel.
func (t *Transport) Send(frame serializer.Frame) error {
	select {
	case t.outbound <- frame:
		return nil
	case <-t.closeCh:
		return errors.New("websocketserver: transport closed")
	}
}

// Disconnect fires the disconnect notifier observed by the connection
// loop. Safe to call more than once or before Connect.
func (t *Transport) Disconnect() error {
	t.closeOnce.Do(func() { close(t.closeCh) })
	return nil
}

// connectionLoop multiplexes disconnect requests, the keepalive tick,
// outbound frames and inbound reads, exactly as spec §4.5 describes. It
// owns the socket exclusively; nothing else may read or write it.
func (t *Transport) connectionLoop(conn *websocket.Conn, in chan<- transport.Incoming) {
	defer func() {
		conn.Close()
		t.closeOnce.Do(func() { close(t.closeCh) })
		t.logger.Debug("connection loop exiting")
	}()

	inboundFrames := make(chan inboundResult, 16)
	go t.readPump(conn, inboundFrames)

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	// Start at 1 so the very first tick, which fires before any pong could
	// plausibly have arrived, never kills a freshly opened connection.
	var pongsSinceTick uint32 = 1

	for {
		select {
		case <-t.closeCh:
			t.logger.Info("disconnect requested")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect"),
				time.Now().Add(time.Second))
			return

		case <-ticker.C:
			if pongsSinceTick == 0 {
				t.logger.Warn("no pong since previous tick, closing")
				in <- transport.Incoming{Kind: transport.IncomingClose, Text: "no pong since previous keepalive tick"}
				return
			}
			pongsSinceTick = 0
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				t.logger.Warn("ping send failed, closing", zap.Error(err))
				in <- transport.Incoming{Kind: transport.IncomingClose, Text: err.Error()}
				return
			}

		case frame, ok := <-t.outbound:
			if !ok {
				return
			}
			wsType := websocket.TextMessage
			if frame.Kind == serializer.Binary {
				wsType = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(wsType, frame.Data); err != nil {
				t.logger.Warn("write failed, closing", zap.Error(err))
				in <- transport.Incoming{Kind: transport.IncomingClose, Text: err.Error()}
				return
			}

		case result, ok := <-inboundFrames:
			if !ok {
				return
			}
			switch {
			case result.err != nil:
				in <- transport.Incoming{Kind: transport.IncomingClose, Text: result.err.Error()}
				return
			case result.closed:
				in <- transport.Incoming{Kind: transport.IncomingClose, Text: result.reason}
				return
			case result.pong:
				pongsSinceTick++
				if t.options.PongObserver != nil {
					t.options.PongObserver()
				}
			case result.dropped:
				t.logger.Debug("dropped non-text frame")
			default:
				in <- transport.Incoming{Kind: transport.IncomingFrame, Frame: result.frame}
			}
		}
	}
}

// inboundResult is how readPump reports what it saw on the socket back to
// the connection loop, which remains the only goroutine that writes to
// conn or touches pongsSinceTick.
type inboundResult struct {
	frame   serializer.Frame
	pong    bool
	dropped bool
	closed  bool
	reason  string
	err     error
}

// readPump is the sole reader of the socket. Ping frames are answered by
// the gorilla library automatically; Pong frames are reported upward so
// the connection loop can account for them.
func (t *Transport) readPump(conn *websocket.Conn, out chan<- inboundResult) {
	defer close(out)

	conn.SetPongHandler(func(string) error {
		out <- inboundResult{pong: true}
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				out <- inboundResult{closed: true, reason: "websocket server closed"}
				return
			}
			out <- inboundResult{err: err}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			out <- inboundResult{frame: serializer.Frame{Kind: serializer.Text, Data: data}}
		case websocket.BinaryMessage:
			// Binary is not currently part of the inbound vocabulary; log
			// and drop per spec §4.5.
			out <- inboundResult{dropped: true}
		}
	}
}

