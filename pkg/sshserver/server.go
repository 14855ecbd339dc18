// Package sshserver carries chat frames over SSH session channels. Clients
// are not authenticated; the channel is treated as a plain byte stream.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/ledzpl/fchat/internal/logging"
)

// ChannelHandler serves an accepted "session" channel. It owns channel and
// blocks for as long as the channel is in use.
type ChannelHandler func(conn *ssh.ServerConn, channel ssh.Channel)

// Server wraps the SSH listener lifecycle.
type Server struct {
	Addr   string
	Config *ssh.ServerConfig

	conns sync.WaitGroup
}

// New creates a Server with the provided host signer.
func New(addr string, signer ssh.Signer) *Server {
	cfg := &ssh.ServerConfig{
		NoClientAuth: true,
	}
	cfg.AddHostKey(signer)

	return &Server{
		Addr:   addr,
		Config: cfg,
	}
}

// ListenAndServe starts the SSH server until the context is cancelled or an error occurs.
func (s *Server) ListenAndServe(ctx context.Context, handler ChannelHandler) error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("sshserver: listen %q: %w", s.Addr, err)
	}
	return s.Serve(ctx, listener, handler)
}

// Serve accepts SSH connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler ChannelHandler) error {
	if handler == nil {
		return errors.New("sshserver: channel handler required")
	}
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Warn("sshserver: listener close error", zap.Error(err))
		}
	})
	defer stop()

	logging.Info("sshserver: listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logging.Warn("sshserver: accept error", zap.Error(err))
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn, handler)
		}()
	}
}

// Wait blocks until every connection accepted by Serve has been released.
func (s *Server) Wait() {
	s.conns.Wait()
}

func (s *Server) handleConn(ctx context.Context, tcpConn net.Conn, handler ChannelHandler) {
	defer tcpConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(tcpConn, s.Config)
	if err != nil {
		logging.Warn("sshserver: handshake failed", zap.String("remote_addr", tcpConn.RemoteAddr().String()), zap.Error(err))
		return
	}

	// After ctx ends no new channels are accepted, but open ones are left to
	// their handlers; the connection closes once they return.
	var channels sync.WaitGroup
	defer func() {
		channels.Wait()
		_ = sshConn.Close()
	}()

	logging.LogConnection("ssh", sshConn.RemoteAddr().String(), "handshake_complete",
		zap.String("client_version", string(sshConn.ClientVersion())),
		zap.String("user", sshConn.User()),
	)

	go ssh.DiscardRequests(reqs)

	for {
		select {
		case <-ctx.Done():
			return
		case newChannel, ok := <-chans:
			if !ok {
				return
			}
			if newChannel.ChannelType() != "session" {
				_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
				continue
			}

			channel, requests, err := newChannel.Accept()
			if err != nil {
				logging.Warn("sshserver: channel accept failed", zap.Error(err))
				continue
			}

			go replyRequests(requests)

			channels.Add(1)
			go func() {
				defer channels.Done()
				handler(sshConn, channel)
			}()
		}
	}
}

// replyRequests acknowledges the terminal setup requests interactive clients
// send before they start writing, and refuses everything else.
func replyRequests(requests <-chan *ssh.Request) {
	for req := range requests {
		if !req.WantReply {
			continue
		}
		switch req.Type {
		case "shell", "pty-req", "env", "window-change", "signal":
			_ = req.Reply(true, nil)
		default:
			_ = req.Reply(false, nil)
		}
	}
}
