// Package pause implements the timed interstitial shown between a trigger
// and the check-in chat.
package pause

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
)

// State is the controller's position in its lifecycle.
type State int

const (
	StateDisplayed State = iota
	StateAutoAdvancing
	StateNavigated
	StateSkipped
	StateDismissed
)

func (s State) String() string {
	switch s {
	case StateAutoAdvancing:
		return "auto-advancing"
	case StateNavigated:
		return "navigated"
	case StateSkipped:
		return "skipped"
	case StateDismissed:
		return "dismissed"
	default:
		return "displayed"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateNavigated || s == StateSkipped || s == StateDismissed
}

// Headline is the copy shown while paused.
const Headline = "Let's check in after that call."

// Acknowledger tells the notification service a trigger was consumed.
type Acknowledger interface {
	Acknowledge(ctx context.Context, userID, triggerID string) error
}

// Options configures a Controller.
type Options struct {
	Delay time.Duration

	// AcknowledgeOnEntry re-sends the acknowledgment for real triggers when
	// the pause starts.
	AcknowledgeOnEntry bool
	UserID             string
	Acker              Acknowledger
	Logger             *zap.Logger
}

// OptionsFromConfig maps the pause config section onto Options.
func OptionsFromConfig(cfg model.PauseConfig, userID string, acker Acknowledger, logger *zap.Logger) Options {
	return Options{
		Delay:              cfg.AutoAdvance(),
		AcknowledgeOnEntry: cfg.AcknowledgeOnEntry,
		UserID:             userID,
		Acker:              acker,
		Logger:             logger,
	}
}

// ackTimeout bounds the entry acknowledgment.
const ackTimeout = 10 * time.Second

// Controller runs one pause presentation. Navigation to chat happens
// exactly once, from either the timer or Skip, and never after Dismiss.
type Controller struct {
	ctx    model.PauseContext
	nav    nav.Navigator
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state State
	timer *time.Timer

	ackCancel context.CancelFunc
	acks      sync.WaitGroup
}

// New creates a controller for ctx. Missing incident or severity values
// are filled with defaults.
func New(ctx model.PauseContext, n nav.Navigator, opts Options) *Controller {
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	return &Controller{
		ctx:    ctx.WithDefaults(),
		nav:    n,
		opts:   opts,
		logger: logging.OrNop(opts.Logger).Named("pause"),
		state:  StateDisplayed,
	}
}

// Context returns the pause context being presented.
func (c *Controller) Context() model.PauseContext {
	return c.ctx
}

// Delay returns the auto-advance delay.
func (c *Controller) Delay() time.Duration {
	return c.opts.Delay
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start arms the auto-advance timer and, when configured, acknowledges the
// trigger. Calling Start outside the Displayed state is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisplayed {
		return
	}
	c.state = StateAutoAdvancing
	c.timer = time.AfterFunc(c.opts.Delay, func() {
		c.commit(StateNavigated)
	})
	c.logger.Debug("pause armed",
		zap.String("incident_id", c.ctx.IncidentID),
		zap.Duration("delay", c.opts.Delay))

	if c.opts.AcknowledgeOnEntry && c.opts.Acker != nil && c.ctx.Acknowledgeable() {
		ackCtx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		c.ackCancel = cancel
		c.acks.Add(1)
		go func() {
			defer c.acks.Done()
			defer cancel()
			if err := c.opts.Acker.Acknowledge(ackCtx, c.opts.UserID, c.ctx.TriggerID); err != nil {
				c.logger.Warn("acknowledging trigger on pause",
					zap.String("trigger_id", c.ctx.TriggerID), zap.Error(err))
			}
		}()
	}
}

// Skip forwards to chat immediately. It reports whether it won the race
// against the timer.
func (c *Controller) Skip() bool {
	return c.commit(StateSkipped)
}

// Dismiss releases the timer without navigating. Pending acknowledgments
// are cancelled and waited for.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if !c.state.Terminal() {
		c.state = StateDismissed
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	cancel := c.ackCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.acks.Wait()
}

// commit moves to a terminal navigating state. Only the first caller
// navigates.
func (c *Controller) commit(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return false
	}
	c.state = to
	if c.timer != nil {
		c.timer.Stop()
	}

	c.logger.Info("pause complete",
		zap.String("incident_id", c.ctx.IncidentID),
		zap.Stringer("state", to))
	c.nav.ToChat(c.ctx)
	return true
}
