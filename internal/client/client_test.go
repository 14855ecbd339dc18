package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledzpl/fchat/internal/chat"
	"github.com/ledzpl/fchat/internal/frame"
)

// syncBuffer is a bytes.Buffer safe for the console and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func connectToServer(t *testing.T) (*chat.Server, *Client) {
	t.Helper()

	clock := func() time.Time { return time.Date(2024, time.March, 9, 14, 5, 7, 0, time.UTC) }
	srv := chat.NewServer(chat.NewRoom(), chat.WithClock(clock))

	serverConn, clientConn := net.Pipe()
	go func() { _ = srv.Handle(serverConn, "pipe", "pipe") }()
	require.Eventually(t, func() bool { return srv.Room().Len() == 1 }, time.Second, time.Millisecond)

	return srv, New(clientConn)
}

func TestRunRelaysLinesUntilQuit(t *testing.T) {
	_, c := connectToServer(t)

	inR, inW := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), c, inR, NewConsole(out, false)) }()

	_, err := io.WriteString(inW, "\nhello\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[Sat Mar  9 14:05:07 2024] Client: hello\n")
	}, time.Second, 5*time.Millisecond)

	_, err = io.WriteString(inW, "quit\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after quit")
	}
	require.False(t, c.Connected())
	require.ErrorIs(t, c.Send("late"), ErrDisconnected)
}

func TestRunEndsWhenServerGoesAway(t *testing.T) {
	srv, c := connectToServer(t)

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), c, inR, NewConsole(out, false)) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not notice the disconnect")
	}
	require.Contains(t, out.String(), "Disconnected from server. Exiting...")
	require.False(t, c.Connected())
}

func TestSendTruncatesLongLines(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	c := New(clientConn)

	got := make(chan frame.Message, 1)
	go func() {
		msg, err := frame.NewReader(serverConn).Next()
		if err == nil {
			got <- msg
		}
	}()

	require.NoError(t, c.Send(strings.Repeat("q", 700)))

	select {
	case msg := <-got:
		require.Equal(t, frame.MaxBodySize, msg.Len())
	case <-time.After(time.Second):
		t.Fatal("frame never arrived")
	}
	require.NoError(t, c.Close(context.Background()))
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), "127.0.0.1", port)
	require.ErrorContains(t, err, "client: connect")
}

func TestConsoleRendering(t *testing.T) {
	var plain bytes.Buffer
	console := NewConsole(&plain, false)
	require.NoError(t, console.Prompt())
	require.NoError(t, console.Message("hi"))
	require.Equal(t, "hi\n", plain.String())

	var ansi bytes.Buffer
	console = NewConsole(&ansi, true)
	require.NoError(t, console.Message("hi"))
	require.NoError(t, console.Notice("bye"))
	require.Equal(t, "\r\033[Khi\r\n> \r\033[Kbye\r\n", ansi.String())
}
