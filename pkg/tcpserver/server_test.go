package tcpserver

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServeHandsConnectionsToHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := New(ln.Addr().String())
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx, ln, func(conn net.Conn) {
			defer conn.Close()
			_, _ = io.Copy(conn, conn)
		})
	}()

	// A slow first client must not hold up the second.
	idle, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer idle.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	cancel()
	select {
	case err := <-served:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_ = idle.Close()
	_ = conn.Close()
	srv.Wait()
}

func TestServeRequiresHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	require.Error(t, New("").Serve(context.Background(), ln, nil))
}

func TestListenAndServeReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = New(ln.Addr().String()).ListenAndServe(context.Background(), func(net.Conn) {})
	require.ErrorContains(t, err, "tcpserver: listen")
}

func TestNextBackoffCaps(t *testing.T) {
	d := nextBackoff(0)
	require.Equal(t, 5*time.Millisecond, d)
	for i := 0; i < 20; i++ {
		d = nextBackoff(d)
	}
	require.Equal(t, time.Second, d)
}
