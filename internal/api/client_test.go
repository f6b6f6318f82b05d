package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/responder-checkin/internal/model"
)

func TestFetchTriggers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users/officer_smith/chat-triggers", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"triggers":[
			{"id":"t1","incidentId":"inc_1","severity":0.9,"createdAt":"2026-03-01T12:00:00Z","isNew":true,"acknowledged":false},
			{"incidentId":"inc_2","severity":0.5,"createdAt":"2026-03-01T12:00:00Z"},
			{"id":"t3","incident_id":"inc_3","severity":85,"createdAt":1772366400}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	triggers, dropped, err := c.FetchTriggers(context.Background(), "officer_smith")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, triggers, 2)

	assert.Equal(t, "t1", triggers[0].ID)
	assert.Equal(t, "inc_1", triggers[0].IncidentID)
	assert.Equal(t, model.TriggerSourcePoll, triggers[0].Source)
	assert.True(t, triggers[0].Actionable())

	assert.Equal(t, "inc_3", triggers[1].IncidentID)
	assert.InDelta(t, 0.85, triggers[1].Severity, 1e-9)
	assert.True(t, triggers[1].IsNew, "absent isNew defaults to true")
}

func TestAcknowledge(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/u1/chat-triggers/t1/acknowledge", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	require.NoError(t, c.Acknowledge(context.Background(), "u1", "t1"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, _, err := NewClient(srv.URL, "bad").FetchTriggers(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestStatusErrorCarriesServiceMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Missing field: user_id"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Acknowledge(context.Background(), "u1", "t1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "Missing field: user_id", statusErr.Message)
}

func TestRateLimitRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"triggers":[]}`))
	}))
	defer srv.Close()

	triggers, _, err := NewClient(srv.URL, "").FetchTriggers(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, triggers)
	assert.Equal(t, int32(2), hits.Load())
}

func TestChat(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind ReplyKind
		wantText string
		wantErr  error
	}{
		{name: "message", body: `{"response":"Thanks for sharing."}`, wantKind: ReplyMessage, wantText: "Thanks for sharing."},
		{name: "crisis sentinel", body: `{"response":"CRISIS_DETECTED"}`, wantKind: ReplyCrisis},
		{name: "missing field", body: `{"reply":"hi"}`, wantErr: ErrUnparseableReply},
		{name: "empty text", body: `{"response":"  "}`, wantErr: ErrUnparseableReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req ChatRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "I'm okay", req.Message)
				assert.Equal(t, "inc_1", req.IncidentID)
				assert.Equal(t, "0.9", req.Context)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			reply, err := NewClient(srv.URL, "").Chat(context.Background(), ChatRequest{
				Message:    "I'm okay",
				Context:    "0.9",
				IncidentID: "inc_1",
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, reply.Kind)
			assert.Equal(t, tt.wantText, reply.Text)
		})
	}
}

func TestDecodeTriggerMalformed(t *testing.T) {
	cases := map[string]string{
		"missing id":        `{"createdAt":"2026-03-01T12:00:00Z"}`,
		"missing createdAt": `{"id":"t1"}`,
		"null createdAt":    `{"id":"t1","createdAt":null}`,
		"garbage createdAt": `{"id":"t1","createdAt":"yesterday"}`,
		"not an object":     `["t1"]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTrigger([]byte(body), model.TriggerSourceRealtime)
			require.ErrorIs(t, err, ErrMalformedTrigger)
		})
	}
}

func TestDecodeTriggerTimestamps(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, ts := range []string{`"2026-03-01T12:00:00Z"`, `"2026-03-01T12:00:00"`, `1772366400`, `1772366400000`} {
		tr, err := DecodeTrigger([]byte(`{"id":"t","createdAt":`+ts+`}`), model.TriggerSourceRealtime)
		require.NoError(t, err, ts)
		assert.True(t, want.Equal(tr.CreatedAt), "%s parsed as %s", ts, tr.CreatedAt)
		assert.InDelta(t, 0.82, tr.Severity, 1e-9)
	}
}
