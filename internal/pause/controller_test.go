package pause

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var triggerCtx = model.PauseContext{
	IncidentID: "inc_1",
	Severity:   "0.9",
	Source:     model.NavSourceTrigger,
	TriggerID:  "t1",
}

type fakeAcker struct {
	mu    sync.Mutex
	calls []string
	block bool
}

func (f *fakeAcker) Acknowledge(ctx context.Context, userID, triggerID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, userID+"/"+triggerID)
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeAcker) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestAutoAdvanceFiresOnce(t *testing.T) {
	n := nav.NewChannel(4)
	c := New(triggerCtx, n, Options{Delay: 30 * time.Millisecond})
	defer c.Dismiss()

	start := time.Now()
	c.Start()
	assert.Equal(t, StateAutoAdvancing, c.State())

	select {
	case r := <-n.Requests():
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Equal(t, nav.RouteChat, r.Route)
		assert.Equal(t, triggerCtx, r.Context)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	assert.Equal(t, StateNavigated, c.State())
	assert.False(t, c.Skip())
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, n.Requests())
}

func TestSkipPreemptsTimer(t *testing.T) {
	n := nav.NewChannel(4)
	c := New(triggerCtx, n, Options{Delay: 40 * time.Millisecond})
	defer c.Dismiss()

	c.Start()
	require.True(t, c.Skip())
	assert.False(t, c.Skip())
	assert.Equal(t, StateSkipped, c.State())

	r := <-n.Requests()
	assert.Equal(t, nav.RouteChat, r.Route)

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, n.Requests(), "timer must not fire after skip")
}

func TestDismissBeforeFire(t *testing.T) {
	n := nav.NewChannel(4)
	c := New(triggerCtx, n, Options{Delay: 20 * time.Millisecond})

	c.Start()
	c.Dismiss()
	assert.Equal(t, StateDismissed, c.State())
	assert.False(t, c.Skip())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, n.Requests())
}

func TestSkipAndTimerRaceNavigateOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		var navigations atomic.Int32
		c := New(triggerCtx, nav.Func(func(nav.Request) { navigations.Add(1) }), Options{Delay: time.Millisecond})

		c.Start()
		time.Sleep(time.Millisecond)
		c.Skip()
		time.Sleep(5 * time.Millisecond)
		c.Dismiss()

		assert.Equal(t, int32(1), navigations.Load(), "iteration %d", i)
	}
}

func TestStartTwiceArmsOneTimer(t *testing.T) {
	var navigations atomic.Int32
	c := New(triggerCtx, nav.Func(func(nav.Request) { navigations.Add(1) }), Options{Delay: 10 * time.Millisecond})
	c.Start()
	c.Start()

	time.Sleep(50 * time.Millisecond)
	c.Dismiss()
	assert.Equal(t, int32(1), navigations.Load())
}

func TestDefaultsApplied(t *testing.T) {
	c := New(model.PauseContext{Source: model.NavSourceManual}, nav.NewChannel(1), Options{})
	assert.Equal(t, model.DefaultIncidentID, c.Context().IncidentID)
	assert.Equal(t, model.DefaultSeverity, c.Context().Severity)
	assert.Equal(t, 2*time.Second, c.opts.Delay)
}

func TestAcknowledgeOnEntry(t *testing.T) {
	tests := []struct {
		name    string
		ctx     model.PauseContext
		enabled bool
		want    []string
	}{
		{name: "trigger", ctx: triggerCtx, enabled: true, want: []string{"u1/t1"}},
		{name: "disabled", ctx: triggerCtx, enabled: false},
		{name: "demo", ctx: model.PauseContext{Source: model.NavSourceDemo, TriggerID: "demo-1"}, enabled: true},
		{name: "no trigger id", ctx: model.PauseContext{Source: model.NavSourceTrigger}, enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acker := &fakeAcker{}
			c := New(tt.ctx, nav.NewChannel(1), Options{
				Delay:              time.Hour,
				AcknowledgeOnEntry: tt.enabled,
				UserID:             "u1",
				Acker:              acker,
			})
			c.Start()
			if tt.want != nil {
				require.Eventually(t, func() bool { return len(acker.snapshot()) == len(tt.want) }, time.Second, time.Millisecond)
			}
			c.Dismiss()
			assert.Equal(t, tt.want, acker.snapshot())
		})
	}
}

func TestDismissCancelsPendingAck(t *testing.T) {
	acker := &fakeAcker{block: true}
	c := New(triggerCtx, nav.NewChannel(1), Options{
		Delay:              time.Hour,
		AcknowledgeOnEntry: true,
		UserID:             "u1",
		Acker:              acker,
	})
	c.Start()
	require.Eventually(t, func() bool { return len(acker.snapshot()) == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	c.Dismiss()
	assert.Less(t, time.Since(start), time.Second)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(model.PauseConfig{AutoAdvanceMs: 2000, AcknowledgeOnEntry: true}, "u1", nil, nil)
	assert.Equal(t, 2*time.Second, opts.Delay)
	assert.True(t, opts.AcknowledgeOnEntry)
	assert.Equal(t, "u1", opts.UserID)
}
