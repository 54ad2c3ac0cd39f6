package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla conn behind a single writer goroutine so that
// routing code on any goroutine can enqueue frames without racing on the
// socket. It is the transport handle sessions are indexed by.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection starts the writer goroutine for conn. buffer is the outbound
// queue depth; writeTimeout bounds both enqueueing on a full queue and the
// socket write itself.
func NewConnection(conn *websocket.Conn, buffer int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, buffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine that touches the socket for data frames.
// A failed write means the transport is gone, so the loop tears the
// connection down and lets the read pump observe the close.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send enqueues one encoded frame for delivery. It fails fast on a closed
// connection and gives a full queue writeTimeout to drain before reporting
// ErrWriteTimeout. Delivery past the queue is best-effort.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close sends a normal-closure control frame best-effort, stops the writer,
// and closes the socket. Safe to call from any goroutine, any number of
// times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer's address in textual form.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Done exposes the connection's lifetime for goroutines tied to it.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
