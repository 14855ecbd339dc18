// Package tcpserver runs an accept loop that hands every TCP connection to a
// handler on its own goroutine.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ledzpl/fchat/internal/logging"
)

// Handler serves one accepted connection. It owns conn.
type Handler func(conn net.Conn)

// Server wraps the TCP listener lifecycle.
type Server struct {
	Addr string

	handlers sync.WaitGroup
}

// New creates a Server listening on addr once started.
func New(addr string) *Server {
	return &Server{Addr: addr}
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, handler Handler) error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("tcpserver: listen %q: %w", s.Addr, err)
	}
	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until ctx is cancelled, returning
// ctx.Err(). Accepting never waits on a handler.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	if handler == nil {
		return errors.New("tcpserver: connection handler required")
	}
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Warn("tcpserver: listener close error", zap.Error(err))
		}
	})
	defer stop()

	logging.Info("tcpserver: listening", zap.String("addr", listener.Addr().String()))

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			backoff = nextBackoff(backoff)
			logging.Warn("tcpserver: accept error", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		backoff = 0

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			handler(conn)
		}()
	}
}

// Wait blocks until every handler started by Serve has returned.
func (s *Server) Wait() {
	s.handlers.Wait()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}
