package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/responder-checkin/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

// fakeServer is a minimal notification service speaking the frame protocol.
type fakeServer struct {
	srv     *httptest.Server
	url     string
	frames  chan Frame
	conns   chan *websocket.Conn
	accepts atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		frames: make(chan Frame, 64),
		conns:  make(chan *websocket.Conn, 8),
	}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fs.accepts.Add(1)
		fs.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if json.Unmarshal(data, &f) == nil {
				select {
				case fs.frames <- f:
				default:
				}
			}
		}
	}))
	fs.url = "ws" + strings.TrimPrefix(fs.srv.URL, "http")
	t.Cleanup(fs.srv.Close)
	return fs
}

func newRejectingServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (fs *fakeServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("no connection accepted")
		return nil
	}
}

func (fs *fakeServer) nextFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-fs.frames:
		return f
	case <-time.After(waitFor):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: json.RawMessage(data)}))
}

func fastOptions(maxAttempts int) Options {
	return Options{
		MaxReconnectAttempts: maxAttempts,
		InitialDelay:         5 * time.Millisecond,
		MaxDelay:             10 * time.Millisecond,
	}
}

func TestSubscribeWithoutToken(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(1))
	defer c.Close()

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "officer_smith"}))

	f := fs.nextFrame(t)
	assert.Equal(t, EventSubscribe, f.Event)
	assert.JSONEq(t, `{"userId":"officer_smith"}`, string(f.Data))
	assert.Eventually(t, func() bool { return c.Status() == StatusConnected }, waitFor, 5*time.Millisecond)
}

func TestAuthenticateWithToken(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(1))
	defer c.Close()

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1", Token: "tok"}))

	f := fs.nextFrame(t)
	assert.Equal(t, EventAuthenticate, f.Event)
	assert.JSONEq(t, `{"token":"tok","userId":"u1"}`, string(f.Data))
	assert.Eventually(t, func() bool { return c.Status() == StatusAuthenticated }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "u1", c.Snapshot().Identity.UserID)
}

func TestNewCallDispatch(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(1))
	defer c.Close()

	triggers := make(chan model.Trigger, 4)
	responses := make(chan string, 4)
	c.OnNewCall(func(tr model.Trigger) { triggers <- tr })
	c.On(EventResponse, func(e Event) { responses <- e.Text })

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))
	conn := fs.nextConn(t)
	fs.nextFrame(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, EventNewCall, `{"incidentId":"inc_0","severity":0.5}`)
	send(t, conn, EventNewCall, `{"id":"t1","incidentId":"inc_1","severity":0.9,"createdAt":"2026-03-01T12:00:00Z","isNew":true,"acknowledged":false}`)
	send(t, conn, EventResponse, `"Notification received"`)

	select {
	case tr := <-triggers:
		assert.Equal(t, "t1", tr.ID)
		assert.Equal(t, "inc_1", tr.IncidentID)
		assert.Equal(t, model.TriggerSourceRealtime, tr.Source)
	case <-time.After(waitFor):
		t.Fatal("new_call not dispatched")
	}

	select {
	case text := <-responses:
		assert.Equal(t, "Notification received", text)
	case <-time.After(waitFor):
		t.Fatal("response not dispatched")
	}
	assert.Empty(t, triggers, "malformed trigger must be dropped")
}

func TestUnsubscribe(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(1))
	defer c.Close()

	var first atomic.Int32
	second := make(chan struct{}, 1)
	unsubscribe := c.OnNewCall(func(model.Trigger) { first.Add(1) })
	c.OnNewCall(func(model.Trigger) { second <- struct{}{} })
	unsubscribe()
	unsubscribe()

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))
	conn := fs.nextConn(t)
	fs.nextFrame(t)
	send(t, conn, EventNewCall, `{"id":"t1","createdAt":"2026-03-01T12:00:00Z"}`)

	select {
	case <-second:
	case <-time.After(waitFor):
		t.Fatal("remaining listener not called")
	}
	assert.Equal(t, int32(0), first.Load())
}

func TestReconnectCapExhausted(t *testing.T) {
	url := newRejectingServer(t)
	c := New(url, fastOptions(2))
	defer c.Close()

	var connectErrors atomic.Int32
	c.On(EventConnectError, func(e Event) {
		assert.Error(t, e.Err)
		connectErrors.Add(1)
	})

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("channel kept retrying past the cap")
	}
	assert.Equal(t, int32(3), connectErrors.Load(), "initial dial plus two retries")
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, 2, c.Attempts())
}

func TestReconnectAfterDrop(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(3))
	defer c.Close()

	disconnects := make(chan string, 4)
	c.On(EventDisconnect, func(e Event) { disconnects <- e.Text })

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))
	first := fs.nextConn(t)
	fs.nextFrame(t)
	first.Close()

	select {
	case reason := <-disconnects:
		assert.NotEmpty(t, reason)
	case <-time.After(waitFor):
		t.Fatal("disconnect not reported")
	}

	fs.nextConn(t)
	f := fs.nextFrame(t)
	assert.Equal(t, EventSubscribe, f.Event)
	assert.Eventually(t, func() bool {
		return c.Status() == StatusConnected && c.Attempts() == 0
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, int32(2), fs.accepts.Load())
}

func TestNoListenerAfterClose(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(3))

	var calls atomic.Int32
	c.OnNewCall(func(model.Trigger) { calls.Add(1) })
	c.On(EventDisconnect, func(Event) { calls.Add(1) })

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))
	conn := fs.nextConn(t)
	fs.nextFrame(t)

	require.NoError(t, c.Close())
	_ = conn.WriteJSON(Frame{Event: EventNewCall, Data: json.RawMessage(`{"id":"late","createdAt":"2026-03-01T12:00:00Z"}`)})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.ErrorIs(t, c.Emit("ping", nil), ErrNotConnected)
	assert.ErrorIs(t, c.Connect(context.Background(), Identity{UserID: "u1"}), ErrClosed)

	c.OnNewCall(func(model.Trigger) { calls.Add(1) })()
	require.NoError(t, c.Close())
}

func TestCloseDuringBackoff(t *testing.T) {
	url := newRejectingServer(t)
	c := New(url, Options{
		MaxReconnectAttempts: 5,
		InitialDelay:         time.Hour,
		MaxDelay:             time.Hour,
	})

	errs := make(chan struct{}, 1)
	c.On(EventConnectError, func(Event) {
		select {
		case errs <- struct{}{}:
		default:
		}
	})
	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))
	<-errs

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnectTwice(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(1))
	defer c.Close()

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))
	assert.ErrorIs(t, c.Connect(context.Background(), Identity{UserID: "u1"}), ErrAlreadyConnected)
}

func TestEmit(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.url, fastOptions(1))
	defer c.Close()

	connected := make(chan struct{}, 1)
	c.On(EventConnect, func(Event) { connected <- struct{}{} })

	assert.ErrorIs(t, c.Emit("ping", nil), ErrNotConnected)
	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "u1"}))
	<-connected
	fs.nextFrame(t)

	require.NoError(t, c.Emit("ping", map[string]int{"seq": 1}))
	f := fs.nextFrame(t)
	assert.Equal(t, "ping", f.Event)
	assert.JSONEq(t, `{"seq":1}`, string(f.Data))
}

func TestCloseWithoutConnect(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", Options{})
	require.NoError(t, c.Close())
	<-c.Done()
}
