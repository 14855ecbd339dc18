// Package client is the interactive side of the chat protocol: it frames
// typed lines, queues them for the server, and renders what comes back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ledzpl/fchat/internal/frame"
	"github.com/ledzpl/fchat/internal/logging"
	"github.com/ledzpl/fchat/internal/outbox"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = "8080"
)

// ErrDisconnected is returned by Send once the connection is gone.
var ErrDisconnected = errors.New("client: not connected")

// Client is one connection to a chat server.
type Client struct {
	conn   net.Conn
	outbox *outbox.Outbox

	connected atomic.Bool
	closeOnce sync.Once
}

// Dial connects to host:port.
func Dial(ctx context.Context, host, port string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	c := &Client{conn: conn}
	c.connected.Store(true)
	c.outbox = outbox.New(conn, func(err error) {
		c.disconnect("write", err)
	})
	return c
}

// Connected reports whether the connection is still usable.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Send queues line for the server, truncated to the maximum body size.
func (c *Client) Send(line string) error {
	if !c.Connected() || !c.outbox.Enqueue(frame.NewText(line)) {
		return ErrDisconnected
	}
	return nil
}

// ReadLoop hands every frame from the server to handle until the connection
// ends. A server closing the connection between frames is not an error.
func (c *Client) ReadLoop(handle func(frame.Message)) error {
	r := frame.NewReader(c.conn)
	for {
		msg, err := r.Next()
		if err != nil {
			c.disconnect("read", err)
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		handle(msg)
	}
}

// Close flushes queued lines, bounded by ctx, and closes the connection.
func (c *Client) Close(ctx context.Context) error {
	err := c.outbox.Shutdown(ctx)
	c.disconnect("close", nil)
	return err
}

func (c *Client) disconnect(op string, err error) {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.outbox.Close()
		_ = c.conn.Close()
		if err != nil {
			logging.Debug("Connection lost", zap.String("op", op), zap.Error(err))
		}
	})
}
