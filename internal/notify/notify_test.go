package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type chanPublisher chan Event

func (c chanPublisher) Publish(evt Event) { c <- evt }

func TestParseEvent(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"object type", `{"type":"new_appointment"}`, EventNewAppointment},
		{"object event", `{"event":"Status_Update","data":{"id":3}}`, EventStatusUpdate},
		{"socketio array", `["new_appointment",{"id":1}]`, EventNewAppointment},
		{"json string", `"new_appointment"`, EventNewAppointment},
		{"bare", " new_appointment\n", EventNewAppointment},
		{"socketio event packet", `42["new_appointment",{"id":1}]`, EventNewAppointment},
		{"socketio namespaced ack", `42/clinic,7["status_update",{"id":2}]`, EventStatusUpdate},
		{"engineio message", `4{"type":"new_appointment"}`, EventNewAppointment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt, err := ParseEvent([]byte(tc.frame), "test", now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, evt.Type)
			assert.Equal(t, "test", evt.Source)
			assert.Equal(t, now, evt.ReceivedAt)
			assert.True(t, evt.Invalidates())
		})
	}

	_, err := ParseEvent([]byte("  "), "test", now)
	assert.ErrorIs(t, err, ErrEmptyEvent)
	_, err = ParseEvent([]byte(`{"payload":1}`), "test", now)
	assert.ErrorIs(t, err, ErrEmptyEvent)
	_, err = ParseEvent([]byte(`{"type":`), "test", now)
	assert.Error(t, err)

	for _, frame := range []string{"0", `0{"sid":"abc","pingInterval":25000}`, "2", "3", "40", `40{"sid":"x"}`, "41", `43["ok"]`} {
		_, err := ParseEvent([]byte(frame), "test", now)
		assert.ErrorIs(t, err, ErrControlFrame, frame)
	}
	_, err = ParseEvent([]byte("42"), "test", now)
	assert.ErrorIs(t, err, ErrEmptyEvent)

	evt, err := ParseEvent([]byte(`{"type":"ping"}`), "test", now)
	require.NoError(t, err)
	assert.False(t, evt.Invalidates())
}

func TestHandshakeReply(t *testing.T) {
	assert.Equal(t, "3", string(HandshakeReply([]byte("2"))))
	assert.Equal(t, "40", string(HandshakeReply([]byte(`0{"sid":"abc"}`))))
	assert.Nil(t, HandshakeReply([]byte("3")))
	assert.Nil(t, HandshakeReply([]byte(`42["new_appointment"]`)))
	assert.Nil(t, HandshakeReply([]byte(`{"type":"new_appointment"}`)))
	assert.Nil(t, HandshakeReply(nil))
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) ObservePushEvent(source, eventType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, source+"/"+eventType)
}

func TestBusSubscribePublishUnsubscribe(t *testing.T) {
	obs := &recordingObserver{}
	bus := NewBus(obs, logging.Discard())

	var a, b int
	unsubA := bus.Subscribe(func(Event) { a++ })
	bus.Subscribe(func(Event) { b++ })
	assert.Equal(t, 2, bus.Len())

	bus.Publish(Event{Type: EventNewAppointment, Source: "test"})
	unsubA()
	unsubA()
	bus.Publish(Event{Type: EventNewAppointment, Source: "test"})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, bus.Len())
	assert.Equal(t, []string{"test/new_appointment", "test/new_appointment"}, obs.events)
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewBus(nil, logging.Discard())
	var got int
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { got++ })

	assert.NotPanics(t, func() { bus.Publish(Event{Type: EventNewAppointment}) })
	assert.Equal(t, 1, got)
}

func TestBackoffNext(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 350 * time.Millisecond}
	d := b.next(0)
	assert.Equal(t, 100*time.Millisecond, d)
	d = b.next(d)
	assert.Equal(t, 200*time.Millisecond, d)
	d = b.next(d)
	assert.Equal(t, 350*time.Millisecond, d)
	assert.Equal(t, 350*time.Millisecond, b.next(d))
}

func newSocketServer(t *testing.T, frames ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer staff", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	t.Cleanup(ts.Close)
	return ts, &conns
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestWebSocketSourceDeliversAndReconnects(t *testing.T) {
	ts, conns := newSocketServer(t, `{"type":`, `{"event":"new_appointment"}`)

	header := http.Header{}
	header.Set("Authorization", "Bearer staff")
	src := NewWebSocketSource(wsURL(ts), header, Backoff{Min: 5 * time.Millisecond, Max: 20 * time.Millisecond}, logging.Discard())
	assert.Equal(t, "websocket", src.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chanPublisher, 16)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, events) }()

	for i := 0; i < 2; i++ {
		select {
		case evt := <-events:
			assert.Equal(t, EventNewAppointment, evt.Type)
			assert.Equal(t, "websocket", evt.Source)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	assert.GreaterOrEqual(t, conns.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWebSocketSourceSpeaksSocketIO(t *testing.T) {
	replies := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		exchange := func(send string) bool {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(send)); err != nil {
				return false
			}
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return false
			}
			replies <- string(msg)
			return true
		}
		if !exchange(`0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`) || !exchange("2") {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"def"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`42["status_update",{"id":5}]`))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)

	src := NewWebSocketSource(wsURL(ts), nil, Backoff{Min: time.Second, Max: time.Second}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chanPublisher, 4)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, events) }()

	for _, want := range []string{"40", "3"} {
		select {
		case got := <-replies:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for reply %q", want)
		}
	}
	select {
	case evt := <-events:
		assert.Equal(t, EventStatusUpdate, evt.Type)
		assert.JSONEq(t, `{"id":5}`, string(evt.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	assert.Empty(t, events)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWebSocketSourceStopsWhileDialFails(t *testing.T) {
	src := NewWebSocketSource("ws://127.0.0.1:1/socket", nil, Backoff{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond}, logging.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := src.Run(ctx, make(chanPublisher, 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestRedisSourceReceivesAnnouncements(t *testing.T) {
	client := setupTestRedis(t)
	src := NewRedisSource(client, "clinic:events", DefaultBackoff(), logging.Discard())
	announcer := NewRedisAnnouncer(client, "clinic:events")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chanPublisher, 4)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, events) }()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "clinic:events").Result()
		return err == nil && n["clinic:events"] > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, "clinic:events", "new_appointment").Err())
	require.NoError(t, announcer.Announce(ctx, EventStatusUpdate))

	select {
	case evt := <-events:
		assert.Equal(t, EventNewAppointment, evt.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bare event")
	}
	select {
	case evt := <-events:
		assert.Equal(t, EventStatusUpdate, evt.Type)
		assert.Equal(t, "redis", evt.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for announced event")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRedisSourceRequiresClient(t *testing.T) {
	src := NewRedisSource(nil, "clinic:events", DefaultBackoff(), nil)
	assert.Error(t, src.Run(context.Background(), make(chanPublisher, 1)))

	var a *RedisAnnouncer
	assert.NoError(t, a.Announce(context.Background(), EventNewAppointment))
}
