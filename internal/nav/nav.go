// Package nav defines the navigation contract between the check-in core and
// whatever front end renders it.
package nav

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/responder-checkin/internal/model"
)

// Route names a destination screen.
type Route string

const (
	RoutePause    Route = "pause"
	RouteChat     Route = "chat"
	RouteContacts Route = "contacts"
)

// Request is a single navigation intent.
type Request struct {
	Route   Route
	Context model.PauseContext
}

// Navigator receives navigation intents from core components. Implementations
// must not block and must not call back into the component that navigated.
type Navigator interface {
	ToPause(ctx model.PauseContext)
	ToChat(ctx model.PauseContext)
	ToContacts(ctx model.PauseContext)
}

// defaultBuffer is large enough for every intent a single mount can emit.
const defaultBuffer = 16

// Channel is a Navigator that queues requests on a buffered channel. When the
// buffer is full the request is dropped and counted.
type Channel struct {
	ch chan Request

	mu      sync.Mutex
	dropped int
}

// NewChannel creates a Channel navigator. A non-positive size uses the
// default buffer.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = defaultBuffer
	}
	return &Channel{ch: make(chan Request, size)}
}

func (c *Channel) ToPause(ctx model.PauseContext) {
	c.push(Request{Route: RoutePause, Context: ctx})
}

func (c *Channel) ToChat(ctx model.PauseContext) {
	c.push(Request{Route: RouteChat, Context: ctx})
}

func (c *Channel) ToContacts(ctx model.PauseContext) {
	c.push(Request{Route: RouteContacts, Context: ctx})
}

func (c *Channel) push(r Request) {
	select {
	case c.ch <- r:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// Requests returns the receive side of the queue.
func (c *Channel) Requests() <-chan Request {
	return c.ch
}

// Dropped returns how many requests were discarded because the buffer was full.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// RequestMsg wraps a Request as a tea.Msg.
type RequestMsg struct {
	Request
}

// Wait returns a tea.Cmd that blocks until the next request arrives. The
// caller re-issues it after handling each RequestMsg.
func (c *Channel) Wait() tea.Cmd {
	return func() tea.Msg {
		r, ok := <-c.ch
		if !ok {
			return nil
		}
		return RequestMsg{Request: r}
	}
}

// Func adapts a plain function into a Navigator.
type Func func(Request)

func (f Func) ToPause(ctx model.PauseContext) {
	f(Request{Route: RoutePause, Context: ctx})
}

func (f Func) ToChat(ctx model.PauseContext) {
	f(Request{Route: RouteChat, Context: ctx})
}

func (f Func) ToContacts(ctx model.PauseContext) {
	f(Request{Route: RouteContacts, Context: ctx})
}
