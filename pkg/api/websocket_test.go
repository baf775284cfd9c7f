package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingBus struct{ topics []string }

func (b *recordingBus) Publish(_ context.Context, topic, _ string, _ any) error {
	b.topics = append(b.topics, topic)
	return nil
}

func dialStream(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(Config{}, nil, hub, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestStreamDeliversSubscribedTopics(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialStream(t, hub)

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "subscribe", Channels: []string{"ORDER_FILLED"}}))
	var ack WSAck
	readJSON(t, conn, &ack)
	assert.Equal(t, "subscribed", ack.Op)
	assert.Equal(t, []string{"ORDER_FILLED"}, ack.Channels)

	next := &recordingBus{}
	bus := hub.Tee(next)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "ORDER_STATUS", "7", map[string]string{"status": "Submitted"}))
	require.NoError(t, bus.Publish(ctx, "ORDER_FILLED", "AAPL", map[string]string{"symbol": "AAPL"}))

	// the downstream bus sees everything
	assert.Equal(t, []string{"ORDER_STATUS", "ORDER_FILLED"}, next.topics)

	var ev StreamEvent
	readJSON(t, conn, &ev)
	assert.Equal(t, "ORDER_FILLED", ev.Topic)
	assert.Equal(t, "AAPL", ev.Key)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "AAPL", payload["symbol"])
}

func TestStreamUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialStream(t, hub)

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "subscribe", Channels: []string{"OPEN_ORDERS", "ORDER_STATUS"}}))
	var ack WSAck
	readJSON(t, conn, &ack)
	require.NoError(t, conn.WriteJSON(WSRequest{Op: "unsubscribe", Channels: []string{"OPEN_ORDERS"}}))
	readJSON(t, conn, &ack)
	assert.Equal(t, "unsubscribed", ack.Op)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, "OPEN_ORDERS", "", []int{1}))
	require.NoError(t, hub.Publish(ctx, "ORDER_STATUS", "9", map[string]int{"id": 9}))

	var ev StreamEvent
	readJSON(t, conn, &ev)
	assert.Equal(t, "ORDER_STATUS", ev.Topic)
}

func TestStreamUnknownOp(t *testing.T) {
	conn := dialStream(t, NewHub(zap.NewNop()))

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "replay"}))
	var ack WSAck
	readJSON(t, conn, &ack)
	assert.Equal(t, "error", ack.Op)
}

func TestStreamClientLeaves(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialStream(t, hub)

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "subscribe", Channels: []string{"ORDER_STATUS"}}))
	var ack WSAck
	readJSON(t, conn, &ack)
	assert.Equal(t, 1, hub.clientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.clientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, hub.Publish(context.Background(), "ORDER_STATUS", "1", nil))
}
