package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/ledzpl/fchat/internal/frame"
	"github.com/ledzpl/fchat/internal/logging"
	"github.com/ledzpl/fchat/internal/outbox"
)

// TimestampLayout is the layout of the time stamped onto every message.
const TimestampLayout = time.ANSIC

var (
	errSessionShutdown = errors.New("session shut down")
	errWriteFailed     = errors.New("write failed")
)

// Conn is the byte stream a session runs over.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock sets the time source used to stamp messages.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WithTransport labels the session for logs and metrics.
func WithTransport(transport, remoteAddr string) SessionOption {
	return func(s *Session) {
		s.transport = transport
		s.remoteAddr = remoteAddr
	}
}

// WithSessionMetrics records session lifecycle events on m.
func WithSessionMetrics(m *Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session binds one connection to the room.
type Session struct {
	id         string
	room       *Room
	conn       Conn
	transport  string
	remoteAddr string

	reader  *frame.Reader
	outbox  *outbox.Outbox
	now     func() time.Time
	metrics *Metrics

	cleanup sync.Once
	cause   error
}

// NewSession prepares a session for conn. It does not join the room until Run.
func NewSession(room *Room, conn Conn, opts ...SessionOption) *Session {
	s := &Session{
		id:        ulid.Make().String(),
		room:      room,
		conn:      conn,
		transport: "tcp",
		reader:    frame.NewReader(conn),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outbox = outbox.New(conn, s.handleWriteError)
	return s
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string {
	return s.id
}

// Deliver queues msg for this session's connection without blocking.
func (s *Session) Deliver(msg frame.Message) {
	if !s.outbox.Enqueue(msg) {
		logging.Debug("Dropping message for closed session", zap.String("session", s.id))
	}
}

// Run joins the room and reads frames until the connection fails. A peer
// closing the connection between frames is not an error.
func (s *Session) Run() error {
	s.metrics.sessionStarted(s.transport)
	logging.LogConnection(s.transport, s.remoteAddr, "session_started", zap.String("session", s.id))

	if err := s.room.Join(s); err != nil {
		s.terminate(err)
		return err
	}

	s.terminate(s.readLoop())
	return s.Err()
}

func (s *Session) readLoop() error {
	for {
		msg, err := s.reader.Next()
		if err != nil {
			return err
		}
		logging.LogRawBytes("Frame received", msg.Body(), zap.String("session", s.id))
		s.room.Deliver(Stamp(msg, s.now()))
	}
}

// Stamp decorates an inbound message with the time and sender tag, truncating
// the result to the maximum body size.
func Stamp(msg frame.Message, at time.Time) frame.Message {
	prefix := "[" + at.Format(TimestampLayout) + "] Client: "
	body := make([]byte, 0, len(prefix)+msg.Len())
	body = append(body, prefix...)
	body = append(body, msg.Body()...)
	return frame.NewMessage(body)
}

// Shutdown flushes queued messages, bounded by ctx, then ends the session.
func (s *Session) Shutdown(ctx context.Context) error {
	err := s.outbox.Shutdown(ctx)
	s.terminate(errSessionShutdown)
	return err
}

// Close ends the session immediately, discarding queued messages.
func (s *Session) Close() error {
	s.terminate(errSessionShutdown)
	return nil
}

// Err returns the error that ended the session, or nil for a clean
// disconnect or shutdown. It is only meaningful after Run returns.
func (s *Session) Err() error {
	switch disconnectReason(s.cause) {
	case "eof", "shutdown", "closed":
		return nil
	default:
		return s.cause
	}
}

func (s *Session) handleWriteError(err error) {
	s.terminate(fmt.Errorf("%w: %w", errWriteFailed, err))
}

// terminate releases the session exactly once; only the first cause is kept.
func (s *Session) terminate(cause error) {
	s.cleanup.Do(func() {
		s.cause = cause
		s.room.Leave(s.id)
		s.outbox.Close()
		_ = s.conn.Close()

		reason := disconnectReason(cause)
		s.metrics.sessionEnded(reason)

		fields := []zap.Field{zap.String("session", s.id), zap.String("reason", reason)}
		switch reason {
		case "eof", "shutdown", "closed":
			logging.LogConnection(s.transport, s.remoteAddr, "session_closed", fields...)
		default:
			logging.Warn("Session terminated", append(fields,
				zap.String("transport", s.transport),
				zap.String("remote_addr", s.remoteAddr),
				zap.Error(cause),
			)...)
		}
	})
}

func disconnectReason(err error) string {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, errSessionShutdown), errors.Is(err, ErrRoomClosed):
		return "shutdown"
	case errors.Is(err, frame.ErrFraming):
		return "framing"
	case errors.Is(err, errWriteFailed):
		return "write"
	case errors.Is(err, net.ErrClosed):
		return "closed"
	default:
		return "transport"
	}
}
