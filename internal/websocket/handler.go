package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"parley/internal/registry"
	"parley/pkg/protocol"
)

// Dispatcher consumes inbound text frames and observes transport closes.
// Dispatch reports whether the connection should be torn down afterwards;
// Drop is the idempotent cleanup path for connections that died underneath
// their session.
type Dispatcher interface {
	Dispatch(conn registry.Conn, data []byte) (closeConn bool)
	Drop(conn registry.Conn)
}

// Options carries the transport tunables the handler and its connections
// run with.
type Options struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
}

// Handler upgrades HTTP requests on the chat endpoint and pumps frames into
// the dispatcher. Session registration happens in-protocol via the first
// frame, not at upgrade time, so the handler carries no user state.
type Handler struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
	logger     *slog.Logger
}

// NewHandler builds a handler around dispatcher. Origin checking is left
// permissive; the protocol has no cookie-based authentication to protect.
func NewHandler(dispatcher Dispatcher, opts Options, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: opts.HandshakeTimeout,
			Subprotocols:     []string{protocol.Subprotocol},
		},
		opts:   opts,
		logger: logger,
	}
}

// ServeHTTP upgrades the request and hands the socket to a per-connection
// goroutine. Clients that offer no subprotocol still connect, matching the
// original server's default-protocol behavior.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	wsConn := NewConnection(conn, h.opts.SendBuffer, h.opts.WriteTimeout)
	h.logger.Debug("connection opened", "remote", wsConn.RemoteAddr(), "subprotocol", conn.Subprotocol())

	go h.serve(wsConn)
}

// serve owns the read side of one connection: keepalive deadlines, the ping
// ticker, and the frame pump. It returns when the peer goes away or the
// dispatcher asks for teardown, and always funnels cleanup through Drop.
func (h *Handler) serve(conn *Connection) {
	defer func() {
		h.dispatcher.Drop(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.opts.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read failed", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if h.dispatcher.Dispatch(conn, data) {
				return
			}
		case websocket.BinaryMessage:
			// Text frames only on this protocol; the frame never reaches
			// the dispatcher and does not count as activity.
			h.rejectBinary(conn)
		}
	}
}

func (h *Handler) rejectBinary(conn *Connection) {
	frame, err := protocol.Encode(&protocol.Response{
		Type:    protocol.KindError,
		Sender:  protocol.SenderServer,
		Content: protocol.ErrTextBinaryFrame,
	}, time.Now())
	if err != nil {
		return
	}
	_ = conn.Send(frame)
}
