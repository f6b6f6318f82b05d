package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/responder-checkin/internal/api"
	"github.com/nhle/responder-checkin/internal/channel"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
	"github.com/nhle/responder-checkin/tests/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const triggerJSON = `{"id":"t1","incidentId":"inc_1","severity":0.9,` +
	`"createdAt":"2026-03-01T12:00:00Z","isNew":true,"acknowledged":false}`

// fakeService serves the websocket channel and the HTTP endpoints from one
// server, pushing the same trigger on both paths.
type fakeService struct {
	polls atomic.Int32
	acks  atomic.Int32
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello channel.Frame
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		assert.Equal(t, channel.EventSubscribe, hello.Event)

		_ = conn.WriteJSON(channel.Frame{Event: channel.EventNewCall, Data: json.RawMessage(triggerJSON)})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	mux.HandleFunc("GET /users/{user}/chat-triggers", func(w http.ResponseWriter, r *http.Request) {
		f.polls.Add(1)
		assert.Equal(t, "officer_smith", r.PathValue("user"))
		_, _ = w.Write([]byte(`{"triggers":[` + triggerJSON + `]}`))
	})

	mux.HandleFunc("POST /users/{user}/chat-triggers/{id}/acknowledge", func(w http.ResponseWriter, r *http.Request) {
		f.acks.Add(1)
		assert.Equal(t, "t1", r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"Thanks for checking in."}`))
	})

	return mux
}

func testConfig(baseURL string) *model.AppConfig {
	cfg := model.DefaultAppConfig()
	cfg.Server.BaseURL = baseURL
	cfg.Server.UserID = "officer_smith"
	cfg.Channel.ReconnectDelayMs = 10
	cfg.Channel.ReconnectDelayMaxMs = 20
	cfg.Poller.IntervalSec = 1
	cfg.Pause.AutoAdvanceMs = 100
	cfg.Chat.MinResponseMs = 0
	return cfg
}

func next(t *testing.T, n *nav.Channel, within time.Duration) nav.Request {
	t.Helper()
	select {
	case r := <-n.Requests():
		return r
	case <-time.After(within):
		t.Fatal("no navigation")
		return nav.Request{}
	}
}

func TestTriggerToPauseToChat(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	client := api.NewClient(srv.URL, "")
	ledger := testutil.NewTestStore(t)
	n := nav.NewChannel(8)

	p := New(Deps{Config: cfg, Client: client, Ledger: ledger, Navigator: n})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	r := next(t, n, 2*time.Second)
	assert.Equal(t, nav.RoutePause, r.Route)
	assert.Equal(t, model.PauseContext{
		IncidentID: "inc_1",
		Severity:   "0.9",
		Source:     model.NavSourceTrigger,
		TriggerID:  "t1",
	}, r.Context)

	screens := Screens{Config: cfg, Client: client, Navigator: n}
	ctrl := screens.Pause(r.Context)
	start := time.Now()
	ctrl.Start()

	chatReq := next(t, n, 2*time.Second)
	assert.LessOrEqual(t, time.Since(start), 2*time.Second)
	assert.Equal(t, nav.RouteChat, chatReq.Route)
	assert.Equal(t, "inc_1", chatReq.Context.IncidentID)
	assert.Equal(t, "0.9", chatReq.Context.Severity)
	ctrl.Dismiss()

	// Both sources delivered t1; only one pause navigation happened.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, n.Requests())

	status := p.Status()
	assert.True(t, status.Consumed)
	assert.Equal(t, "t1", status.Selected.ID)
	assert.True(t, p.poller.Stopped())

	require.Eventually(t, func() bool { return svc.acks.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	rec, err := ledger.GetTrigger(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, rec.Consumed)
}

func TestChatScreenUsesService(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	screens := Screens{Config: cfg, Client: api.NewClient(srv.URL, ""), Navigator: nav.NewChannel(2)}

	s := screens.Chat(model.PauseContext{IncidentID: "inc_1", Severity: "0.9", Source: model.NavSourceTrigger})
	defer s.Close()
	s.Start()
	require.True(t, s.Send("rough night"))

	require.Eventually(t, func() bool {
		msgs := s.Snapshot().Messages
		return len(msgs) == 3 && msgs[2].Text == "Thanks for checking in."
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	p := New(Deps{Config: cfg, Client: api.NewClient(cfg.Server.BaseURL, ""), Navigator: nav.NewChannel(1)})
	p.Stop()
	assert.Error(t, p.Start(context.Background()))
}
