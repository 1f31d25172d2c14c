package push

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"quotefeed/internal/metrics"
	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
)

type fakeSource struct {
	latest    *snapshot.Snapshot
	collected atomic.Int32
}

func (f *fakeSource) Latest() *snapshot.Snapshot { return f.latest }

func (f *fakeSource) Collect(context.Context) *snapshot.Snapshot {
	f.collected.Add(1)
	return sample("5.9000")
}

func sample(usd string) *snapshot.Snapshot {
	return snapshot.New(time.Date(2025, 3, 3, 13, 30, 5, 0, time.UTC),
		provider.NewQuotes(provider.Quote{Key: "USD-BRL", Value: decimal.RequireFromString(usd)}),
		provider.Quotes{},
		true)
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHub_InitialAndBroadcast(t *testing.T) {
	t.Parallel()

	// Arrange
	src := &fakeSource{latest: sample("5.8123")}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := NewHub(src, WithMetrics(m))
	conn := dial(t, h)

	// Act
	first := read(t, conn)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 10*time.Millisecond)
	next := sample("5.7000")
	require.NoError(t, h.Publish(t.Context(), next))
	second := read(t, conn)

	// Assert
	require.Equal(t, TypeDataUpdate, first.Type)
	require.Equal(t, src.latest.ID(), first.Data.ID())
	require.Equal(t, TypeDataUpdate, second.Type)
	require.Equal(t, next.ID(), second.Data.ID())
	require.Equal(t, 1.0, testutil.ToFloat64(m.WSClients))
}

func TestHub_TimestampIsSnapshotTime(t *testing.T) {
	t.Parallel()

	// Arrange
	src := &fakeSource{latest: sample("5.8123")}
	h := NewHub(src)
	conn := dial(t, h)

	// Act
	first := read(t, conn)

	// Assert
	require.NotNil(t, first.Timestamp)
	require.True(t, src.latest.TakenAt().Equal(*first.Timestamp), "timestamp=%s", first.Timestamp)
}

func TestHub_NoInitialMessageBeforeFirstSnapshot(t *testing.T) {
	t.Parallel()

	h := NewHub(&fakeSource{})
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 10*time.Millisecond)

	snap := sample("5.8123")
	require.NoError(t, h.Publish(t.Context(), snap))

	got := read(t, conn)
	require.Equal(t, snap.ID(), got.Data.ID())
}

func TestHub_RequestUpdate(t *testing.T) {
	t.Parallel()

	// Arrange
	src := &fakeSource{latest: sample("5.8123")}
	h := NewHub(src)
	conn := dial(t, h)
	_ = read(t, conn)

	// Act
	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypeRequestUpdate}))
	got := read(t, conn)

	// Assert
	require.Equal(t, TypeDataUpdate, got.Type)
	usd, ok := got.Data.Currency("USD-BRL")
	require.True(t, ok)
	require.Equal(t, "5.9", usd.Value.String())
	require.Equal(t, int32(1), src.collected.Load())
}

func TestHub_RequestUpdateRepliesOnlyToRequester(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	h := NewHub(src)
	a := dial(t, h)
	b := dial(t, h)
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(map[string]string{"type": TypeRequestUpdate}))
	require.Equal(t, TypeDataUpdate, read(t, a).Type)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := b.ReadMessage()
	require.Error(t, err)
}

func TestHub_BadMessages(t *testing.T) {
	t.Parallel()

	h := NewHub(&fakeSource{})
	conn := dial(t, h)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.Equal(t, Message{Type: TypeError, Message: "invalid message"}, read(t, conn))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))
	require.Equal(t, Message{Type: TypeError, Message: "unknown message type: subscribe"}, read(t, conn))
}

func TestHub_Disconnect(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := NewHub(&fakeSource{}, WithMetrics(m))
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0.0, testutil.ToFloat64(m.WSClients))
}
