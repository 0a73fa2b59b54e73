package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/tagflow/internal/domain"
	tflog "github.com/mmcdole/tagflow/internal/log"
)

func newTestClient(d Dialer, opts Options) *Client {
	opts.URL = "ws://test"
	opts.Dialer = d
	opts.Logger = tflog.NullLogger()
	return NewClient(opts)
}

func TestReconnectBackoffSequence(t *testing.T) {
	d := &fakeDialer{next: func(int) (Conn, error) { return nil, errors.New("refused") }}
	c := newTestClient(d, Options{MaxAttempts: 7})

	var mu sync.Mutex
	var delays []time.Duration
	c.sleep = func(ctx context.Context, delay time.Duration) bool {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
		return true
	}

	gaveUp := make(chan MaxReconnectsEvent, 1)
	c.MaxReconnects().On(func(e MaxReconnectsEvent) { gaveUp <- e })

	c.Connect(context.Background())
	c.Wait()

	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, delays)

	select {
	case e := <-gaveUp:
		assert.Equal(t, 8, e.Attempts)
		assert.EqualError(t, e.LastErr, "refused")
	default:
		t.Fatal("expected MaxReconnects")
	}
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, int32(8), d.dials.Load())
}

// recordSleeps replaces the client's sleep with one that returns at once
func recordSleeps(c *Client) func() []time.Duration {
	var mu sync.Mutex
	var delays []time.Duration
	c.sleep = func(ctx context.Context, delay time.Duration) bool {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
		return ctx.Err() == nil
	}
	return func() []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Duration(nil), delays...)
	}
}

func TestDroppedConnectionsBackOff(t *testing.T) {
	// The server accepts and hangs up straight away
	d := &fakeDialer{next: func(int) (Conn, error) {
		conn := newFakeConn()
		conn.Close()
		return conn, nil
	}}
	c := newTestClient(d, Options{MaxAttempts: 3})
	delays := recordSleeps(c)

	gaveUp := make(chan MaxReconnectsEvent, 1)
	c.MaxReconnects().On(func(e MaxReconnectsEvent) { gaveUp <- e })

	c.Connect(context.Background())
	c.Wait()

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays())
	assert.Equal(t, int32(4), d.dials.Load())
	select {
	case e := <-gaveUp:
		assert.Equal(t, 4, e.Attempts)
	default:
		t.Fatal("expected MaxReconnects")
	}
	assert.True(t, c.GaveUp())
	assert.Equal(t, Disconnected, c.State())
}

func TestBackoffResetsAfterHealthyConnection(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{next: func(n int) (Conn, error) {
		switch n {
		case 3:
			return conn, nil
		default:
			return nil, errors.New("refused")
		}
	}}
	c := newTestClient(d, Options{MaxAttempts: 3})
	delays := recordSleeps(c)

	got := make(chan Envelope, 1)
	c.Messages().On(func(e Envelope) { got <- e })

	c.Connect(context.Background())
	require.Eventually(t, func() bool { return c.State() == Connected }, time.Second, time.Millisecond)
	conn.push(`{"type": "status", "data": {}}`)
	<-got

	// Server drops us after talking; retries start again from the initial delay
	conn.Close()
	c.Wait()

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, // before the connection
		time.Second, 2 * time.Second, 4 * time.Second, // after the drop
	}, delays())
}

func TestGaveUpClearedOnConnect(t *testing.T) {
	refuse := true
	var mu sync.Mutex
	d := &fakeDialer{next: func(int) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if refuse {
			return nil, errors.New("refused")
		}
		return newFakeConn(), nil
	}}
	c := newTestClient(d, Options{MaxAttempts: 1})
	recordSleeps(c)

	c.Connect(context.Background())
	c.Wait()
	require.True(t, c.GaveUp())

	mu.Lock()
	refuse = false
	mu.Unlock()
	c.Connect(context.Background())
	defer c.Disconnect()
	assert.False(t, c.GaveUp())
	require.Eventually(t, func() bool { return c.State() == Connected }, time.Second, time.Millisecond)
}

func TestStateTransitions(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{next: func(int) (Conn, error) { return conn, nil }}
	c := newTestClient(d, Options{})

	var mu sync.Mutex
	var states []ConnState
	c.States().On(func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	c.Connect(context.Background())
	require.Eventually(t, func() bool { return c.State() == Connected }, time.Second, time.Millisecond)
	c.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnState{Connecting, Connected, Disconnected}, states)
	assert.True(t, conn.isClosed())
}

func TestNotificationsAreDispatched(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{next: func(int) (Conn, error) { return conn, nil }}
	c := newTestClient(d, Options{})

	got := make(chan Notification, 1)
	msgs := make(chan Envelope, 4)
	c.Notifications().On(func(n Notification) { got <- n })
	c.Messages().On(func(e Envelope) { msgs <- e })

	c.Connect(context.Background())
	defer c.Disconnect()

	conn.push(`not json`)
	conn.push(`{"type": "status", "data": {"clients": 2}, "timestamp": 1700000000}`)
	conn.push(`{"type": "notification", "message_id": 5, "timestamp": "2024-03-01T12:30:00Z",
		"data": {"video_id": 42, "action": "update", "changes": {"title": "new"}}}`)

	select {
	case n := <-got:
		assert.Equal(t, domain.VideoID("42"), n.VideoID)
		assert.Equal(t, ActionUpdate, n.Action)
		require.NotNil(t, n.Changes.Title)
		assert.Equal(t, "new", *n.Changes.Title)
		assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), n.Timestamp, "falls back to envelope timestamp")
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	first := <-msgs
	assert.Equal(t, TypeStatus, first.Type)
	second := <-msgs
	assert.Equal(t, "5", second.MessageID)
}

func TestSubscriptionsSurviveReconnect(t *testing.T) {
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	d := &fakeDialer{next: func(n int) (Conn, error) {
		if n <= len(conns) {
			return conns[n-1], nil
		}
		return nil, errors.New("done")
	}}
	c := newTestClient(d, Options{})
	recordSleeps(c)

	require.NoError(t, c.Subscribe("op-1"), "subscribing offline is deferred")
	c.Connect(context.Background())
	defer c.Disconnect()

	require.Eventually(t, func() bool { return len(conns[0].requests()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, request{Action: "subscribe", OperationID: "op-1"}, conns[0].requests()[0])

	require.NoError(t, c.Subscribe("op-2"))
	require.NoError(t, c.Unsubscribe("op-1"))
	require.NoError(t, c.RequestStatus())
	assert.Equal(t, []request{
		{Action: "subscribe", OperationID: "op-1"},
		{Action: "subscribe", OperationID: "op-2"},
		{Action: "unsubscribe", OperationID: "op-1"},
		{Action: "get_status"},
	}, conns[0].requests())

	// Drop: the second connection gets the remaining subscription re-sent
	conns[0].Close()
	require.Eventually(t, func() bool { return len(conns[1].requests()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, request{Action: "subscribe", OperationID: "op-2"}, conns[1].requests()[0])
	assert.Equal(t, []string{"op-2"}, c.Subscriptions())
}

func TestRequestStatusOffline(t *testing.T) {
	c := newTestClient(&fakeDialer{}, Options{})
	assert.ErrorIs(t, c.RequestStatus(), domain.ErrNotConnected)
}

func TestHeartbeatTimeoutReconnects(t *testing.T) {
	// Talks once, then stops answering pings
	silent := newFakeConn()
	silent.push(`{"type": "status", "data": {}}`)
	d := &fakeDialer{next: func(n int) (Conn, error) {
		if n == 1 {
			return silent, nil
		}
		return answeringConn(), nil
	}}
	c := newTestClient(d, Options{HeartbeatInterval: 20 * time.Millisecond})
	delays := recordSleeps(c)
	c.Connect(context.Background())
	defer c.Disconnect()

	require.Eventually(t, func() bool { return d.dials.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, silent.isClosed())
	assert.Contains(t, silent.requests(), request{Action: "ping"})
	assert.Empty(t, delays(), "heartbeat loss redials without waiting")
}

func TestSilentConnectionBacksOff(t *testing.T) {
	d := &fakeDialer{next: func(int) (Conn, error) { return newFakeConn(), nil }}
	c := newTestClient(d, Options{HeartbeatInterval: 5 * time.Millisecond, MaxAttempts: 2})
	delays := recordSleeps(c)

	c.Connect(context.Background())
	c.Wait()

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays())
	assert.True(t, c.GaveUp())
}

// answeringConn replies to every ping with a pong
func answeringConn() *fakeConn {
	conn := newFakeConn()
	conn.onWrite = func(c *fakeConn, req request) {
		if req.Action == "ping" {
			c.push(`{"type": "pong", "timestamp": 0}`)
		}
	}
	return conn
}

func TestHeartbeatAnsweredStaysConnected(t *testing.T) {
	conn := answeringConn()
	d := &fakeDialer{next: func(int) (Conn, error) { return conn, nil }}
	c := newTestClient(d, Options{HeartbeatInterval: 10 * time.Millisecond})
	c.Connect(context.Background())
	defer c.Disconnect()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), d.dials.Load())
	assert.Equal(t, Connected, c.State())
	assert.GreaterOrEqual(t, len(conn.requests()), 3)
}

func TestWebsocketDialer(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte(
			`{"type": "notification", "timestamp": 1700000000, "data": {"video_id": "9", "action": "delete"}}`))
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if json.Unmarshal(data, &req) == nil && req.Action == "get_status" {
				ws.WriteMessage(websocket.TextMessage, []byte(`{"type": "status", "data": {"ok": true}}`))
			}
		}
	}))
	defer srv.Close()

	c := NewClient(Options{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Logger: tflog.NullLogger(),
	})
	notes := make(chan Notification, 1)
	statuses := make(chan Envelope, 1)
	c.Notifications().On(func(n Notification) { notes <- n })
	c.Messages().On(func(e Envelope) {
		if e.Type == TypeStatus {
			statuses <- e
		}
	})

	c.Connect(context.Background())
	defer c.Disconnect()

	select {
	case n := <-notes:
		assert.Equal(t, domain.VideoID("9"), n.VideoID)
		assert.Equal(t, ActionDelete, n.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification over websocket")
	}

	require.Eventually(t, func() bool { return c.State() == Connected }, time.Second, time.Millisecond)
	require.NoError(t, c.RequestStatus())
	select {
	case e := <-statuses:
		assert.JSONEq(t, `{"ok": true}`, string(e.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no status reply")
	}
}

func TestEnvelopeParsing(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type": "notification", "timestamp": 1700000000.25, "message_id": "m-1",
		"data": {"video_id": 3, "action": "restore", "timestamp": "2024-03-01 12:30:00"}}`), &env))
	assert.Equal(t, "m-1", env.MessageID)
	assert.Equal(t, int64(1700000000), env.Timestamp.Unix())

	n, err := ParseNotification(env)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), n.Timestamp, "own timestamp wins")
	assert.True(t, n.Changes.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`{"data": {}}`), &env), "type is required")

	_, err = ParseNotification(Envelope{Type: TypeNotification, Data: json.RawMessage(`{"action": "update"}`)})
	assert.Error(t, err, "video_id is required")
}
