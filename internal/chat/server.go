package chat

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ledzpl/fchat/internal/logging"
)

// ErrServerClosed is returned by Handle once Shutdown has begun.
var ErrServerClosed = errors.New("chat: server closed")

// Server tracks every live session so they can be drained together.
type Server struct {
	room *Room
	opts []SessionOption

	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool
	wg       sync.WaitGroup
}

// NewServer returns a Server admitting sessions into room. opts apply to
// every session it creates.
func NewServer(room *Room, opts ...SessionOption) *Server {
	return &Server{
		room:     room,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Room returns the room sessions are joined to.
func (srv *Server) Room() *Room {
	return srv.room
}

// Handle runs a session over conn and blocks until it ends. The connection
// is always closed on return.
func (srv *Server) Handle(conn Conn, transport, remoteAddr string) error {
	srv.mu.Lock()
	if srv.closing {
		srv.mu.Unlock()
		_ = conn.Close()
		return ErrServerClosed
	}

	opts := append([]SessionOption{}, srv.opts...)
	opts = append(opts, WithTransport(transport, remoteAddr))
	s := NewSession(srv.room, conn, opts...)

	srv.sessions[s.ID()] = s
	srv.wg.Add(1)
	srv.mu.Unlock()

	defer func() {
		srv.mu.Lock()
		delete(srv.sessions, s.ID())
		srv.mu.Unlock()
		srv.wg.Done()
	}()

	return s.Run()
}

// Sessions returns the number of live sessions.
func (srv *Server) Sessions() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// Shutdown stops admitting sessions, closes the room, lets every session
// flush what is already queued, then waits for them to exit. Sessions still
// flushing when ctx ends are closed without finishing.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	srv.closing = true
	sessions := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()

	srv.room.Close()
	logging.Info("Draining sessions", zap.Int("sessions", len(sessions)))

	var flush sync.WaitGroup
	for _, s := range sessions {
		flush.Add(1)
		go func(s *Session) {
			defer flush.Done()
			if err := s.Shutdown(ctx); err != nil {
				logging.Warn("Session did not drain before deadline", zap.String("session", s.ID()), zap.Error(err))
			}
		}(s)
	}
	flush.Wait()

	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All sessions closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
