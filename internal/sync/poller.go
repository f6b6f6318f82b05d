package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/api"
	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
)

// SyncState represents the current state of the poll loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
	SyncStopped
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	case SyncStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// SyncStatus holds the poller's state.
type SyncStatus struct {
	State     SyncState
	LastSync  time.Time
	Error     error
	PollCount int
	Dropped   int
	DemoSent  bool
}

// SyncStatusMsg is a tea.Msg carrying the poller status.
type SyncStatusMsg struct {
	Status SyncStatus
}

// AuthErrorMsg is a tea.Msg sent when the service rejects the token.
type AuthErrorMsg struct {
	Message string
}

// Fetcher retrieves pending triggers for a user. *api.Client satisfies it.
type Fetcher interface {
	FetchTriggers(ctx context.Context, userID string) ([]model.Trigger, int, error)
}

// Sink receives each batch the poller produces.
type Sink func(source model.TriggerSource, triggers []model.Trigger)

// fetchTimeout is the maximum time allowed for a single fetch operation.
// A fetch is also cut off at the poll interval so a hung request cannot
// hold up the next tick.
const fetchTimeout = 30 * time.Second

// Options configures a Poller.
type Options struct {
	Interval    time.Duration
	DemoGrace   time.Duration
	DemoEnabled bool
	Logger      *zap.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// OptionsFromConfig maps the poller config section onto Options.
func OptionsFromConfig(cfg model.PollerConfig, logger *zap.Logger) Options {
	return Options{
		Interval:    cfg.PollInterval(),
		DemoGrace:   cfg.DemoGrace(),
		DemoEnabled: cfg.DemoEnabled,
		Logger:      logger,
	}
}

// Poller pulls pending triggers on a fixed interval as the fallback to the
// realtime channel. After a grace period without a successful poll it
// synthesizes a single demo trigger. Once stopped it never polls again.
type Poller struct {
	fetcher Fetcher
	userID  string
	sink    Sink
	opts    Options
	logger  *zap.Logger

	mu       gosync.Mutex
	status   SyncStatus
	started  time.Time
	running  bool
	stopped  bool
	stopOnce gosync.Once
	stopCh   chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	statusCh chan SyncStatusMsg
}

// New creates a new Poller for userID that hands batches to sink.
func New(fetcher Fetcher, userID string, sink Sink, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.DemoGrace <= 0 {
		opts.DemoGrace = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		fetcher:  fetcher,
		userID:   userID,
		sink:     sink,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger).Named("poller"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		statusCh: make(chan SyncStatusMsg, 16),
	}
}

// Start launches the poll loop. The first poll happens immediately.
// Starting a stopped poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.started = p.opts.Now()
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(loopCtx)
}

// Stop halts polling. It does not wait for the loop to exit, so it is safe
// to call from a Sink. Calling it more than once is harmless.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.status.State = SyncStopped
		cancel := p.cancel
		running := p.running
		p.mu.Unlock()

		close(p.stopCh)
		if cancel != nil {
			cancel()
		}
		if !running {
			close(p.done)
		}
	})
}

// Wait blocks until the poll loop has exited. It must follow Stop or a
// cancelled Start context.
func (p *Poller) Wait() {
	<-p.done
}

// Stopped reports whether Stop has been called.
func (p *Poller) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Status returns a snapshot of the poller status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	defer p.Stop()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	if p.opts.DemoEnabled {
		// The grace deadline runs beside the fetch; a fetch that never
		// returns must not delay the demo trigger.
		fired := make(chan struct{})
		grace := time.AfterFunc(p.opts.DemoGrace, func() {
			defer close(fired)
			p.graceExpired()
		})
		defer func() {
			if !grace.Stop() {
				<-fired
			}
		}()
	}

	// Do an initial fetch immediately
	p.poll(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll performs a single fetch and delivers the batch to the sink. On
// failure it may deliver the demo trigger instead.
func (p *Poller) poll(ctx context.Context) {
	if p.Stopped() {
		return
	}
	p.setState(SyncRunning, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, min(fetchTimeout, p.opts.Interval))
	defer cancel()

	triggers, dropped, err := p.fetcher.FetchTriggers(fetchCtx, p.userID)
	if err != nil {
		if ctx.Err() != nil || p.Stopped() {
			return
		}
		p.setState(SyncError, err)
		if api.IsAuthError(err) {
			p.logger.Warn("trigger poll rejected", zap.Error(err))
			p.sendStatus()
		} else {
			p.logger.Debug("trigger poll failed", zap.Error(err))
		}
		p.maybeDemo()
		return
	}

	p.mu.Lock()
	if !p.stopped {
		p.status.State = SyncIdle
	}
	p.status.Error = nil
	p.status.LastSync = p.opts.Now()
	p.status.PollCount++
	p.status.Dropped += dropped
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warn("dropped malformed triggers", zap.Int("count", dropped))
	}
	p.sendStatus()
	p.deliver(model.TriggerSourcePoll, triggers)
}

// maybeDemo synthesizes one demo trigger once the grace period has passed
// without a successful poll.
func (p *Poller) maybeDemo() {
	if !p.opts.DemoEnabled {
		return
	}

	p.mu.Lock()
	since := p.status.LastSync
	if since.IsZero() {
		since = p.started
	}
	due := !p.status.DemoSent && p.opts.Now().Sub(since) >= p.opts.DemoGrace
	if due {
		p.status.DemoSent = true
	}
	p.mu.Unlock()

	if due {
		p.sendDemo()
	}
}

// graceExpired fires once the grace period after Start has passed. It sends
// the demo trigger if no poll has succeeded yet, even while a fetch is
// still in flight.
func (p *Poller) graceExpired() {
	p.mu.Lock()
	due := !p.stopped && !p.status.DemoSent && p.status.LastSync.IsZero()
	if due {
		p.status.DemoSent = true
	}
	p.mu.Unlock()

	if due {
		p.sendDemo()
	}
}

func (p *Poller) sendDemo() {
	p.logger.Info("no successful poll within grace period, synthesizing demo trigger",
		zap.Duration("grace", p.opts.DemoGrace))
	p.deliver(model.TriggerSourceDemo, []model.Trigger{DemoTrigger(p.opts.Now())})
}

func (p *Poller) deliver(src model.TriggerSource, triggers []model.Trigger) {
	if len(triggers) == 0 || p.Stopped() {
		return
	}
	p.sink(src, triggers)
}

// DemoTrigger builds the degraded-mode trigger used when the service is
// unreachable.
func DemoTrigger(now time.Time) model.Trigger {
	return model.Trigger{
		ID:         "demo-" + uuid.NewString(),
		IncidentID: model.DefaultIncidentID,
		Severity:   model.DefaultSeverityValue,
		CreatedAt:  now,
		IsNew:      true,
		Source:     model.TriggerSourceDemo,
	}
}

// setState updates the poll state.
func (p *Poller) setState(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.status.State = state
	p.status.Error = err
}

// sendStatus publishes the status without blocking.
func (p *Poller) sendStatus() {
	msg := SyncStatusMsg{Status: p.Status()}
	select {
	case p.statusCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// WaitForStatus returns a tea.Cmd that waits for the next status update.
// Auth failures are reported as AuthErrorMsg.
func (p *Poller) WaitForStatus() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-p.statusCh:
			if api.IsAuthError(msg.Status.Error) {
				return AuthErrorMsg{
					Message: fmt.Sprintf("trigger service rejected the token: %v", msg.Status.Error),
				}
			}
			return msg
		case <-p.done:
			return nil
		}
	}
}
