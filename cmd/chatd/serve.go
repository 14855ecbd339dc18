package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/ledzpl/fchat/internal/chat"
	"github.com/ledzpl/fchat/internal/config"
	"github.com/ledzpl/fchat/internal/logging"
	"github.com/ledzpl/fchat/pkg/sshserver"
	"github.com/ledzpl/fchat/pkg/tcpserver"
	"github.com/ledzpl/fchat/pkg/wsgateway"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "chatd [port]",
		Short: "Framed TCP broadcast chat server",
		Long: `Start the chat server.

Clients speak a simple framing protocol: a 4-byte right-justified decimal
length followed by up to 512 bytes of text. Each message is stamped with the
time and rebroadcast to every connected client; new clients first receive the
most recent messages.

The same protocol is optionally served over SSH session channels (--ssh-addr)
and WebSocket binary messages (--http-addr, which also serves /metrics and
/healthz).`,
		Example: `  # Listen on all interfaces, port 8080
  chatd

  # Custom port with debug logging
  chatd 9000 --log-level debug

  # Also accept SSH and WebSocket clients
  chatd --ssh-addr :2222 --host-key ./host_ed25519 --http-addr :8081`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags(), cfgFile)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				port, err := strconv.Atoi(args[0])
				if err != nil || port < 0 || port > 65535 {
					return fmt.Errorf("invalid port %q", args[0])
				}
				cfg.Port = port
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return err
	}
	defer logging.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := chat.NewMetrics(registry)

	room := chat.NewRoom(chat.WithBacklogSize(cfg.Backlog), chat.WithMetrics(metrics))
	srv := chat.NewServer(room, chat.WithSessionMetrics(metrics))

	// Bind everything up front so a bad address fails startup.
	tcpListener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %q: %w", cfg.ListenAddr(), err)
	}

	acceptCtx, stopAccepting := context.WithCancel(ctx)
	defer stopAccepting()

	errc := make(chan error, 3)
	running := 0

	tcp := tcpserver.New(cfg.ListenAddr())
	running++
	go func() {
		errc <- tcp.Serve(acceptCtx, tcpListener, func(conn net.Conn) {
			handle(srv, conn, "tcp", conn.RemoteAddr().String())
		})
	}()

	if cfg.SSHAddr != "" {
		signer, err := sshserver.LoadOrGenerateSigner(cfg.HostKey)
		if err != nil {
			return fmt.Errorf("prepare host key: %w", err)
		}
		sshListener, err := net.Listen("tcp", cfg.SSHAddr)
		if err != nil {
			return fmt.Errorf("listen %q: %w", cfg.SSHAddr, err)
		}
		sshSrv := sshserver.New(cfg.SSHAddr, signer)
		running++
		go func() {
			errc <- sshSrv.Serve(acceptCtx, sshListener, func(conn *ssh.ServerConn, channel ssh.Channel) {
				handle(srv, channel, "ssh", conn.RemoteAddr().String())
			})
		}()
	}

	if cfg.HTTPAddr != "" {
		httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen %q: %w", cfg.HTTPAddr, err)
		}
		gw := wsgateway.New(
			func(stream *wsgateway.Stream, remoteAddr string) {
				handle(srv, stream, "websocket", remoteAddr)
			},
			wsgateway.WithGatherer(registry),
			wsgateway.WithMembers(room.Len),
		)
		running++
		go func() {
			errc <- gw.Serve(acceptCtx, httpListener)
		}()
	}

	logging.Info("Chat server started",
		zap.String("addr", cfg.ListenAddr()),
		zap.String("ssh_addr", cfg.SSHAddr),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Int("backlog", cfg.Backlog),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping server...")
	case serveErr = <-errc:
		running--
		logging.Error("Listener stopped", zap.Error(serveErr))
	}

	stopAccepting()
	for ; running > 0; running-- {
		<-errc
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
	}
	tcp.Wait()

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

func handle(srv *chat.Server, conn chat.Conn, transport, remoteAddr string) {
	logging.LogConnection(transport, remoteAddr, "connection_accepted")
	if err := srv.Handle(conn, transport, remoteAddr); err != nil && !errors.Is(err, chat.ErrServerClosed) {
		logging.Debug("Session ended with error", zap.String("remote_addr", remoteAddr), zap.Error(err))
	}
}
