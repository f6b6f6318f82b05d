package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/responder-checkin/internal/model"
)

func TestChannelQueuesInOrder(t *testing.T) {
	c := NewChannel(4)
	ctx := model.PauseContext{IncidentID: "inc_1", Severity: "0.9", Source: model.NavSourceTrigger}

	c.ToPause(ctx)
	c.ToChat(ctx)
	c.ToContacts(ctx)

	for _, want := range []Route{RoutePause, RouteChat, RouteContacts} {
		got := <-c.Requests()
		assert.Equal(t, want, got.Route)
		assert.Equal(t, ctx, got.Context)
	}
}

func TestChannelDropsWhenFull(t *testing.T) {
	c := NewChannel(1)
	c.ToPause(model.PauseContext{})
	c.ToChat(model.PauseContext{})

	assert.Equal(t, 1, c.Dropped())
	assert.Equal(t, RoutePause, (<-c.Requests()).Route)
}

func TestWaitReturnsRequestMsg(t *testing.T) {
	c := NewChannel(0)
	c.ToChat(model.PauseContext{IncidentID: "inc_2"})

	msg := c.Wait()()
	req, ok := msg.(RequestMsg)
	require.True(t, ok)
	assert.Equal(t, RouteChat, req.Route)
	assert.Equal(t, "inc_2", req.Context.IncidentID)
}

func TestFuncNavigator(t *testing.T) {
	var got []Route
	var n Navigator = Func(func(r Request) { got = append(got, r.Route) })

	n.ToContacts(model.PauseContext{})
	n.ToPause(model.PauseContext{})

	assert.Equal(t, []Route{RouteContacts, RoutePause}, got)
}
