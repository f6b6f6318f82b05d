// Package pipeline wires the trigger sources, the arbiter and the screen
// components together for one mount of the consuming screen.
package pipeline

import (
	"context"
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/api"
	"github.com/nhle/responder-checkin/internal/arbiter"
	"github.com/nhle/responder-checkin/internal/channel"
	"github.com/nhle/responder-checkin/internal/chat"
	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
	"github.com/nhle/responder-checkin/internal/pause"
	"github.com/nhle/responder-checkin/internal/sync"
)

// Deps are the collaborators shared by every mount.
type Deps struct {
	Config    *model.AppConfig
	Client    *api.Client
	Token     string
	Ledger    arbiter.Ledger
	Navigator nav.Navigator
	Logger    *zap.Logger
}

// Status summarizes the pipeline for display.
type Status struct {
	Channel  channel.Connection
	Poller   sync.SyncStatus
	Consumed bool
	Selected model.Trigger
}

// Pipeline owns one channel, one poller and one arbiter. It is started
// when the consuming screen mounts and stopped when it unmounts; a stopped
// pipeline is not restarted.
type Pipeline struct {
	deps   Deps
	logger *zap.Logger

	channel *channel.Channel
	poller  *sync.Poller
	arbiter *arbiter.Arbiter

	mu      gosync.Mutex
	started bool
	stopped bool
}

// New builds a pipeline from deps. Nothing runs until Start.
func New(deps Deps) *Pipeline {
	logger := logging.OrNop(deps.Logger)
	cfg := deps.Config
	userID := cfg.Server.UserID

	p := &Pipeline{deps: deps, logger: logger.Named("pipeline")}

	p.arbiter = arbiter.New(deps.Navigator, arbiter.Options{
		UserID: userID,
		Acker:  deps.Client,
		Ledger: deps.Ledger,
		Logger: logger,
		Hooks:  []arbiter.Hook{p.onSelected},
	})

	p.poller = sync.New(deps.Client, userID, p.submit, sync.OptionsFromConfig(cfg.Poller, logger))

	p.channel = channel.New(
		cfg.Server.ResolvedSocketURL(),
		channel.OptionsFromConfig(cfg.Channel, logger),
	)
	p.channel.OnNewCall(func(t model.Trigger) {
		p.submit(model.TriggerSourceRealtime, []model.Trigger{t})
	})
	p.channel.On(channel.EventResponse, func(e channel.Event) {
		p.logger.Debug("service response", zap.String("text", e.Text))
	})
	p.channel.On(channel.EventConnectError, func(e channel.Event) {
		p.logger.Debug("channel connect error", zap.Error(e.Err))
	})

	return p
}

// Start connects the channel and starts polling.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("pipeline already stopped")
	}
	if p.started {
		return nil
	}
	p.started = true

	p.arbiter.Start(ctx)
	identity := channel.Identity{
		UserID: p.deps.Config.Server.UserID,
		Token:  p.deps.Token,
	}
	if err := p.channel.Connect(ctx, identity); err != nil {
		return fmt.Errorf("connecting channel: %w", err)
	}
	p.poller.Start(ctx)

	p.logger.Info("pipeline started",
		zap.String("user_id", identity.UserID),
		zap.Bool("authenticated", identity.Token != ""))
	return nil
}

// Stop tears everything down. No navigation happens after it returns.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	_ = p.channel.Close()
	p.poller.Stop()
	p.poller.Wait()
	p.arbiter.Stop()
	p.logger.Info("pipeline stopped")
}

// Status returns a snapshot for display.
func (p *Pipeline) Status() Status {
	sel, _ := p.arbiter.Selected()
	return Status{
		Channel:  p.channel.Snapshot(),
		Poller:   p.poller.Status(),
		Consumed: p.arbiter.Consumed(),
		Selected: sel,
	}
}

func (p *Pipeline) submit(src model.TriggerSource, triggers []model.Trigger) {
	if err := p.arbiter.Submit(src, triggers); err != nil {
		p.logger.Debug("trigger batch not submitted",
			zap.String("source", string(src)), zap.Error(err))
	}
}

// onSelected stops polling as soon as a trigger wins.
func (p *Pipeline) onSelected(t model.Trigger) {
	p.poller.Stop()
}

// Screens builds the per-presentation components for the pause and chat
// screens.
type Screens struct {
	Config    *model.AppConfig
	Client    *api.Client
	Navigator nav.Navigator
	Logger    *zap.Logger
}

// Pause returns a controller for pctx.
func (s Screens) Pause(pctx model.PauseContext) *pause.Controller {
	var acker pause.Acknowledger
	if s.Client != nil {
		acker = s.Client
	}
	return pause.New(pctx, s.Navigator, pause.OptionsFromConfig(
		s.Config.Pause, s.Config.Server.UserID, acker, s.Logger,
	))
}

// Chat returns a session for pctx.
func (s Screens) Chat(pctx model.PauseContext) *chat.Session {
	var responder chat.Responder
	if s.Client != nil {
		responder = s.Client
	}
	return chat.NewSession(pctx, responder, s.Navigator, chat.OptionsFromConfig(s.Config.Chat, s.Logger))
}
