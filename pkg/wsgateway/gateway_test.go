package wsgateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, srv *httptest.Server) *Stream {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	stream := NewStream(conn)
	t.Cleanup(func() { _ = stream.Close() })
	return stream
}

func TestWebSocketStreamEcho(t *testing.T) {
	gw := New(func(stream *Stream, _ string) {
		_, _ = io.Copy(stream, stream)
	})
	srv := httptest.NewServer(gw)
	defer srv.Close()

	stream := dialStream(t, srv)
	require.NoError(t, stream.conn.SetReadDeadline(time.Now().Add(time.Second)))

	// Frames may be split across messages; the stream reassembles them.
	_, err := stream.Write([]byte("   5he"))
	require.NoError(t, err)
	_, err = stream.Write([]byte("llo"))
	require.NoError(t, err)

	buf := make([]byte, 9)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	require.Equal(t, "   5hello", string(buf))
}

func TestStreamReportsEOFOnNormalClose(t *testing.T) {
	done := make(chan error, 1)
	gw := New(func(stream *Stream, _ string) {
		_, err := stream.Read(make([]byte, 1))
		done <- err
	})
	srv := httptest.NewServer(gw)
	defer srv.Close()

	stream := dialStream(t, srv)
	require.NoError(t, stream.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("handler never saw the close")
	}
}

func TestHealthReportsMembers(t *testing.T) {
	gw := New(func(*Stream, string) {}, WithMembers(func() int { return 3 }))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 3, body["members"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fchat_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(2)

	gw := New(func(*Stream, string) {}, WithGatherer(reg))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "fchat_test_total 2")
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	gw := New(func(*Stream, string) {})

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
