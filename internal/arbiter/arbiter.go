// Package arbiter decides whether to interrupt the user. It merges triggers
// from every delivery path through one queue and lets exactly one of them
// through per instance.
package arbiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
)

var (
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("arbiter stopped")

	ErrNotStarted = errors.New("arbiter not started")
)

// Acknowledger tells the notification service a trigger was consumed.
// *api.Client satisfies it.
type Acknowledger interface {
	Acknowledge(ctx context.Context, userID, triggerID string) error
}

// Ledger persists what the arbiter saw and chose. *store.SQLiteStore
// satisfies it.
type Ledger interface {
	RecordTriggers(ctx context.Context, triggers []model.Trigger) error
	ConsumedIDs(ctx context.Context, ids []string) (map[string]bool, error)
	MarkConsumed(ctx context.Context, t model.Trigger, at time.Time) error
	SetAckStatus(ctx context.Context, id string, status model.AckStatus, detail string) error
}

// Hook runs once, on the arbiter goroutine, right after a trigger is
// selected and before navigation. It must not block.
type Hook func(model.Trigger)

// batch is one producer submission.
type batch struct {
	source   model.TriggerSource
	triggers []model.Trigger
}

// queueSize bounds the inbound queue.
const queueSize = 64

// ackTimeout bounds a single acknowledgment call.
const ackTimeout = 10 * time.Second

// Options configures an Arbiter.
type Options struct {
	UserID string
	Acker  Acknowledger
	Ledger Ledger
	Logger *zap.Logger
	Hooks  []Hook
	Now    func() time.Time
}

// Arbiter is the single consumer of the trigger queue.
type Arbiter struct {
	nav    nav.Navigator
	opts   Options
	logger *zap.Logger

	inbox chan batch

	mu       sync.Mutex
	consumed bool
	selected *model.Trigger
	started  bool
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	acks   sync.WaitGroup
}

// New creates an Arbiter that sends its single navigation to n.
func New(n nav.Navigator, opts Options) *Arbiter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Arbiter{
		nav:    n,
		opts:   opts,
		logger: logging.OrNop(opts.Logger).Named("arbiter"),
		inbox:  make(chan batch, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (a *Arbiter) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.stopped {
		return
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	go a.run()
}

// Submit queues a batch of triggers from src. Batches from one producer are
// handled in submission order. Once a trigger has been selected further
// batches are discarded.
func (a *Arbiter) Submit(src model.TriggerSource, triggers []model.Trigger) error {
	a.mu.Lock()
	stopped, consumed, started := a.stopped, a.consumed, a.started
	ctx := a.ctx
	a.mu.Unlock()

	if stopped {
		return ErrStopped
	}
	if consumed || len(triggers) == 0 {
		return nil
	}
	if !started {
		return ErrNotStarted
	}

	b := batch{source: src, triggers: append([]model.Trigger(nil), triggers...)}
	select {
	case a.inbox <- b:
		return nil
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ErrStopped
	}
}

// Consumed reports whether a trigger has been selected.
func (a *Arbiter) Consumed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.consumed
}

// Selected returns the selected trigger, if any.
func (a *Arbiter) Selected() (model.Trigger, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected == nil {
		return model.Trigger{}, false
	}
	return *a.selected, true
}

// Stop cancels the consumer and any in-flight acknowledgments and waits for
// them. No navigation happens after Stop returns.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	started := a.started
	cancel := a.cancel
	a.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-a.done
	a.acks.Wait()
}

func (a *Arbiter) run() {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			return
		case first := <-a.inbox:
			merged := a.drain(first)
			if a.consider(merged) {
				return
			}
		}
	}
}

// drain merges first with everything already queued, in arrival order.
func (a *Arbiter) drain(first batch) []model.Trigger {
	merged := append([]model.Trigger(nil), first.triggers...)
	for {
		select {
		case b := <-a.inbox:
			merged = append(merged, b.triggers...)
		default:
			return merged
		}
	}
}

// consider applies the selection rule to a merged set. It returns true once
// a trigger has been consumed.
func (a *Arbiter) consider(merged []model.Trigger) bool {
	merged = a.applyLedger(merged)

	chosen, ok := model.SelectActionable(merged)
	if !ok {
		a.logger.Debug("no actionable trigger", zap.Int("candidates", len(merged)))
		return false
	}

	a.mu.Lock()
	if a.consumed || a.stopped || a.ctx.Err() != nil {
		a.mu.Unlock()
		return true
	}
	a.consumed = true
	chosen.Acknowledged = true
	a.selected = &chosen
	a.mu.Unlock()

	a.logger.Info("trigger selected",
		zap.String("trigger_id", chosen.ID),
		zap.String("incident_id", chosen.IncidentID),
		zap.Float64("severity", chosen.Severity),
		zap.String("source", string(chosen.Source)),
	)

	if a.opts.Ledger != nil {
		if err := a.opts.Ledger.MarkConsumed(a.ctx, chosen, a.opts.Now()); err != nil {
			a.logger.Warn("recording consumed trigger", zap.Error(err))
		}
	}

	for _, hook := range a.opts.Hooks {
		hook(chosen)
	}

	a.nav.ToPause(model.PauseContextFor(chosen))
	a.acknowledge(chosen)
	return true
}

// applyLedger records the merged set and marks triggers consumed in an
// earlier session as acknowledged.
func (a *Arbiter) applyLedger(merged []model.Trigger) []model.Trigger {
	if a.opts.Ledger == nil {
		return merged
	}

	if err := a.opts.Ledger.RecordTriggers(a.ctx, merged); err != nil {
		a.logger.Warn("recording triggers", zap.Error(err))
	}

	ids := make([]string, 0, len(merged))
	for _, t := range merged {
		ids = append(ids, t.ID)
	}
	consumed, err := a.opts.Ledger.ConsumedIDs(a.ctx, ids)
	if err != nil {
		a.logger.Warn("reading consumed triggers", zap.Error(err))
		return merged
	}
	for i := range merged {
		if consumed[merged[i].ID] {
			merged[i].Acknowledged = true
		}
	}
	return merged
}

// acknowledge fires the server acknowledgment without waiting for it.
func (a *Arbiter) acknowledge(t model.Trigger) {
	if t.Source == model.TriggerSourceDemo || a.opts.Acker == nil {
		return
	}

	a.acks.Add(1)
	go func() {
		defer a.acks.Done()

		ctx, cancel := context.WithTimeout(a.ctx, ackTimeout)
		defer cancel()

		status, detail := model.AckAcknowledged, ""
		if err := a.opts.Acker.Acknowledge(ctx, a.opts.UserID, t.ID); err != nil {
			status, detail = model.AckFailed, err.Error()
			a.logger.Warn("acknowledging trigger",
				zap.String("trigger_id", t.ID), zap.Error(err))
		}

		if a.opts.Ledger != nil && a.ctx.Err() == nil {
			if err := a.opts.Ledger.SetAckStatus(a.ctx, t.ID, status, detail); err != nil {
				a.logger.Warn("recording ack status", zap.Error(err))
			}
		}
	}()
}
