// Package chat runs the post-call support conversation: an ordered message
// log, a remote responder with a local keyword fallback, and escalation to
// crisis contacts.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/api"
	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
)

// State is the session's position in the conversation.
type State int

const (
	StateWelcome State = iota
	StateAwaitingUserInput
	StateAwaitingResponse
	StateEscalated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingUserInput:
		return "awaiting-input"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateEscalated:
		return "escalated"
	case StateClosed:
		return "closed"
	default:
		return "welcome"
	}
}

// Responder produces a reply for a user message. *api.Client satisfies it.
type Responder interface {
	Chat(ctx context.Context, req api.ChatRequest) (api.Reply, error)
}

// Options configures a Session.
type Options struct {
	// MinResponse floors the time between a send and its reply.
	MinResponse time.Duration

	// EscalationDelay is how long the transition message stays up before
	// redirecting to contacts.
	EscalationDelay time.Duration

	RequestTimeout time.Duration

	// LocalCrisisOverride escalates when the local classifier flags the
	// user's text even if the remote reply was an ordinary message.
	LocalCrisisOverride bool

	Logger *zap.Logger
}

// OptionsFromConfig maps the chat config section onto Options.
func OptionsFromConfig(cfg model.ChatConfig, logger *zap.Logger) Options {
	return Options{
		MinResponse:         cfg.MinResponse(),
		EscalationDelay:     cfg.EscalationDelay(),
		RequestTimeout:      cfg.RequestTimeout(),
		LocalCrisisOverride: cfg.LocalCrisisOverride,
		Logger:              logger,
	}
}

// Snapshot is a consistent view of the session for rendering.
type Snapshot struct {
	IncidentID string
	Severity   string
	Source     string
	Messages   []model.Message
	State      State

	// Typing is true while a reply is outstanding.
	Typing bool
	Crisis bool
}

// outcome is a resolved reply, remote or local.
type outcome struct {
	crisis bool
	text   string
	origin string
}

// Session is one check-in conversation. At most one reply is outstanding
// at a time.
type Session struct {
	pctx      model.PauseContext
	responder Responder
	nav       nav.Navigator
	opts      Options
	logger    *zap.Logger
	history   *History

	mu         sync.Mutex
	state      State
	crisis     bool
	escalation *time.Timer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	updates chan struct{}
}

// NewSession creates a session for pctx. A nil responder means every reply
// comes from the local classifier.
func NewSession(pctx model.PauseContext, responder Responder, n nav.Navigator, opts Options) *Session {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		pctx:      pctx.WithDefaults(),
		responder: responder,
		nav:       n,
		opts:      opts,
		logger:    logging.OrNop(opts.Logger).Named("chat"),
		history:   NewHistory(),
		state:     StateWelcome,
		ctx:       ctx,
		cancel:    cancel,
		updates:   make(chan struct{}, 1),
	}
}

// Start seeds the welcome message and opens the session for input.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state != StateWelcome {
		s.mu.Unlock()
		return
	}
	s.history.Append(model.SenderSystem, Greeting(s.pctx.SeverityValue()))
	s.state = StateAwaitingUserInput
	s.mu.Unlock()

	s.notify()
}

// Send submits user text. It returns false without side effects when the
// text is blank, a reply is outstanding, or the session has escalated or
// closed.
func (s *Session) Send(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	if s.state != StateAwaitingUserInput {
		s.mu.Unlock()
		return false
	}
	s.history.Append(model.SenderUser, text)
	s.state = StateAwaitingResponse
	sentAt := time.Now()
	s.wg.Add(1)
	s.mu.Unlock()

	s.notify()
	go s.respond(text, sentAt)
	return true
}

func (s *Session) respond(text string, sentAt time.Time) {
	defer s.wg.Done()

	out, ok := s.resolve(text)
	if !ok {
		return
	}

	if wait := s.opts.MinResponse - time.Since(sentAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			return
		}
	}

	s.apply(out)
}

// resolve asks the remote responder and falls back to the local classifier
// on any failure. It returns false if the session closed meanwhile.
func (s *Session) resolve(text string) (outcome, bool) {
	local := Classify(text)

	if s.responder != nil {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		reply, err := s.responder.Chat(ctx, api.ChatRequest{
			Message:    text,
			Context:    s.pctx.Severity,
			IncidentID: s.pctx.IncidentID,
		})
		cancel()

		if s.ctx.Err() != nil {
			return outcome{}, false
		}
		if err == nil {
			if reply.Kind == api.ReplyCrisis {
				return outcome{crisis: true, origin: "remote"}, true
			}
			if s.opts.LocalCrisisOverride && local == CategoryCrisis {
				return outcome{crisis: true, origin: "local-override"}, true
			}
			return outcome{text: reply.Text, origin: "remote"}, true
		}
		s.logger.Warn("chat responder failed, using local classifier", zap.Error(err))
	}

	if local == CategoryCrisis {
		return outcome{crisis: true, origin: "local"}, true
	}
	return outcome{text: ScriptedReply(local), origin: "local"}, true
}

func (s *Session) apply(out outcome) {
	s.mu.Lock()
	if s.state != StateAwaitingResponse {
		s.mu.Unlock()
		return
	}

	if out.crisis {
		s.state = StateEscalated
		s.crisis = true
		s.history.Append(model.SenderSystem, EscalationMessage)
		s.escalation = time.AfterFunc(s.opts.EscalationDelay, s.redirect)
		s.logger.Info("crisis detected, escalating",
			zap.String("incident_id", s.pctx.IncidentID),
			zap.String("origin", out.origin))
	} else {
		s.history.Append(model.SenderSystem, out.text)
		s.state = StateAwaitingUserInput
	}
	s.mu.Unlock()

	s.notify()
}

// redirect hands off to the contacts screen unless the session has closed.
func (s *Session) redirect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEscalated {
		return
	}
	s.nav.ToContacts(s.pctx)
}

// Close cancels any outstanding request and the escalation timer. Nothing
// is appended and no navigation happens after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	if s.escalation != nil {
		s.escalation.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		IncidentID: s.pctx.IncidentID,
		Severity:   s.pctx.Severity,
		Source:     s.pctx.Source,
		Messages:   s.history.Messages(),
		State:      s.state,
		Typing:     s.state == StateAwaitingResponse,
		Crisis:     s.crisis,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates signals that the snapshot changed. Signals coalesce.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
