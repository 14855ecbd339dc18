package client

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledzpl/fchat/internal/chat"
	"github.com/ledzpl/fchat/internal/frame"
	"github.com/ledzpl/fchat/pkg/tcpserver"
)

func TestClientsChatOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	srv := chat.NewServer(chat.NewRoom())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acceptor := tcpserver.New(ln.Addr().String())
	go func() {
		_ = acceptor.Serve(ctx, ln, func(conn net.Conn) {
			_ = srv.Handle(conn, "tcp", conn.RemoteAddr().String())
		})
	}()

	alice, err := Dial(ctx, host, port)
	require.NoError(t, err)
	bob, err := Dial(ctx, host, port)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Room().Len() == 2 }, time.Second, time.Millisecond)

	received := make(chan string, 2)
	go func() {
		_ = bob.ReadLoop(func(msg frame.Message) { received <- msg.String() })
	}()

	require.NoError(t, alice.Send("hello"))

	select {
	case got := <-received:
		require.True(t, strings.HasSuffix(got, "] Client: hello"), got)
		_, err := time.Parse(chat.TimestampLayout, got[1:strings.Index(got, "]")])
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received alice's message")
	}

	require.NoError(t, alice.Close(context.Background()))
	require.Eventually(t, func() bool { return srv.Room().Len() == 1 }, time.Second, time.Millisecond)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
	defer cancelShutdown()
	cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	acceptor.Wait()
	require.Eventually(t, func() bool { return !bob.Connected() }, time.Second, time.Millisecond)
}
