// Package wsgateway is the HTTP surface of the chat server: a WebSocket
// endpoint carrying chat frames, plus metrics and health endpoints.
package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ledzpl/fchat/internal/logging"
)

// StreamHandler serves one upgraded connection and blocks until it is done.
type StreamHandler func(stream *Stream, remoteAddr string)

// Option configures a Gateway.
type Option func(*Gateway)

// WithGatherer exposes the metrics in g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(gw *Gateway) {
		gw.gatherer = g
	}
}

// WithMembers reports the current member count on /healthz.
func WithMembers(count func() int) Option {
	return func(gw *Gateway) {
		gw.members = count
	}
}

// Gateway routes HTTP requests to the chat transport and diagnostics.
type Gateway struct {
	router   chi.Router
	upgrader websocket.Upgrader
	handler  StreamHandler
	gatherer prometheus.Gatherer
	members  func() int
}

// New builds a Gateway that hands WebSocket connections to handler.
func New(handler StreamHandler, opts ...Option) *Gateway {
	gw := &Gateway{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(gw)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", gw.serveWS)
	r.Get("/healthz", gw.serveHealth)
	if gw.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gw.gatherer, promhttp.HandlerOpts{}))
	}
	gw.router = r

	return gw
}

func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gw.router.ServeHTTP(w, r)
}

func (gw *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Warn("wsgateway: upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	stream := NewStream(conn)
	defer stream.Close()

	gw.handler(stream, r.RemoteAddr)
}

func (gw *Gateway) serveHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if gw.members != nil {
		resp["members"] = gw.members()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ListenAndServe serves the gateway on addr until ctx is cancelled.
func (gw *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("wsgateway: listen %q: %w", addr, err)
	}
	return gw.Serve(ctx, listener)
}

// Serve serves the gateway on listener until ctx is cancelled. Hijacked
// WebSocket connections are not tracked by the HTTP server; their sessions
// are drained by the chat server.
func (gw *Gateway) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("wsgateway: shutdown error", zap.Error(err))
		}
	})
	defer stop()

	logging.Info("wsgateway: listening", zap.String("addr", listener.Addr().String()))

	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
