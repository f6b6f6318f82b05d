package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/api"
	"github.com/nhle/responder-checkin/internal/arbiter"
	corechat "github.com/nhle/responder-checkin/internal/chat"
	"github.com/nhle/responder-checkin/internal/keys"
	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
	"github.com/nhle/responder-checkin/internal/pipeline"
	"github.com/nhle/responder-checkin/internal/ui"
	chatview "github.com/nhle/responder-checkin/internal/ui/chat"
	"github.com/nhle/responder-checkin/internal/ui/contacts"
	helpview "github.com/nhle/responder-checkin/internal/ui/help"
	"github.com/nhle/responder-checkin/internal/ui/home"
	pauseview "github.com/nhle/responder-checkin/internal/ui/pause"
)

// statusRefresh is how often the home screen re-reads pipeline status.
const statusRefresh = 500 * time.Millisecond

// Screen is the currently mounted screen.
type Screen int

const (
	ScreenHome Screen = iota
	ScreenPause
	ScreenChat
	ScreenContacts
)

func (s Screen) String() string {
	switch s {
	case ScreenPause:
		return "pause"
	case ScreenChat:
		return "chat"
	case ScreenContacts:
		return "contacts"
	default:
		return "home"
	}
}

// Ledger is the persistence the application needs: the arbiter's delivery
// ledger plus the notification list shown at home.
type Ledger interface {
	arbiter.Ledger
	home.Notifications
}

// Deps are the long-lived collaborators handed in by the CLI.
type Deps struct {
	Config *model.AppConfig
	Client *api.Client
	Token  string
	Ledger Ledger
	Logger *zap.Logger
}

// statusTickMsg triggers a status refresh.
type statusTickMsg struct{}

// pipelineErrMsg reports a pipeline that failed to start.
type pipelineErrMsg struct {
	err error
}

// Model is the root Bubble Tea model. It mounts one screen at a time and
// routes navigation requests from the core components between them.
type Model struct {
	deps    Deps
	logger  *zap.Logger
	keys    *keys.KeyMap
	layout  ui.Layout
	ready   bool
	nav     *nav.Channel
	screens pipeline.Screens
	pipe    *pipeline.Pipeline

	current  Screen
	home     home.Model
	pause    pauseview.Model
	chat     chatview.Model
	contacts contacts.Model
	help     helpview.Model
	showHelp bool

	errMessage string
}

// New creates the root model. The trigger pipeline is built here and
// started by Init.
func New(deps Deps) Model {
	logger := logging.OrNop(deps.Logger)
	k := keys.DefaultKeyMap()
	navCh := nav.NewChannel(0)

	var notifications home.Notifications
	if deps.Ledger != nil {
		notifications = deps.Ledger
	}

	m := Model{
		deps:   deps,
		logger: logger.Named("app"),
		keys:   k,
		nav:    navCh,
		screens: pipeline.Screens{
			Config:    deps.Config,
			Client:    deps.Client,
			Navigator: navCh,
			Logger:    logger,
		},
		current: ScreenHome,
		home:    home.New(notifications, k, 80, 24),
		help:    helpview.New(k, 80, 24),
	}
	m.pipe = m.newPipeline()
	return m
}

func (m Model) newPipeline() *pipeline.Pipeline {
	var ledger arbiter.Ledger
	if m.deps.Ledger != nil {
		ledger = m.deps.Ledger
	}
	return pipeline.New(pipeline.Deps{
		Config:    m.deps.Config,
		Client:    m.deps.Client,
		Token:     m.deps.Token,
		Ledger:    ledger,
		Navigator: m.nav,
		Logger:    m.deps.Logger,
	})
}

func startPipeline(p *pipeline.Pipeline) tea.Cmd {
	return func() tea.Msg {
		if err := p.Start(context.Background()); err != nil {
			return pipelineErrMsg{err: err}
		}
		return nil
	}
}

func statusTick() tea.Cmd {
	return tea.Tick(statusRefresh, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

// Init starts the pipeline and begins listening for navigation.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		startPipeline(m.pipe),
		m.nav.Wait(),
		m.home.Init(),
		statusTick(),
	)
}

// Current returns the mounted screen.
func (m Model) Current() Screen {
	return m.current
}

// Update handles messages and dispatches to the mounted screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.home.SetSize(w, h)
		m.help.SetSize(w, h)
		switch m.current {
		case ScreenPause:
			m.pause.SetSize(w, h)
		case ScreenChat:
			m.chat.SetSize(w, h)
		case ScreenContacts:
			m.contacts.SetSize(w, h)
		}
		return m, nil

	case nav.RequestMsg:
		cmd := m.route(msg.Request)
		return m, tea.Batch(cmd, m.nav.Wait())

	case statusTickMsg:
		if m.current == ScreenHome && m.pipe != nil {
			m.home.SetStatus(homeStatus(m.pipe.Status()))
		}
		return m, statusTick()

	case pipelineErrMsg:
		m.errMessage = msg.err.Error()
		m.logger.Warn("pipeline failed to start", zap.Error(msg.err))
		return m, nil

	case home.OpenChatMsg:
		m.stopPipeline()
		pctx := model.PauseContext{Source: model.NavSourceManual}.WithDefaults()
		return m, m.mountChat(pctx)

	case home.ReconnectMsg:
		m.stopPipeline()
		m.pipe = m.newPipeline()
		m.errMessage = ""
		return m, startPipeline(m.pipe)

	case pauseview.BackMsg, chatview.CloseMsg, contacts.BackMsg:
		return m, m.goHome()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" ||
			(m.current != ScreenChat && key.Matches(msg, m.keys.Quit)) {
			m.unmountAll()
			return m, tea.Quit
		}
		if m.current != ScreenChat && key.Matches(msg, m.keys.Help) {
			m.showHelp = !m.showHelp
			return m, nil
		}
		if m.showHelp && key.Matches(msg, m.keys.Back) {
			m.showHelp = false
			return m, nil
		}
	}

	return m.updateActiveView(msg)
}

// route applies a navigation request when it is valid from the mounted
// screen. Requests from components that have since been torn down are
// dropped.
func (m *Model) route(r nav.Request) tea.Cmd {
	m.logger.Info("navigation",
		zap.String("route", string(r.Route)),
		zap.Stringer("from", m.current),
		zap.String("incident_id", r.Context.IncidentID))

	switch r.Route {
	case nav.RoutePause:
		if m.current != ScreenHome {
			return nil
		}
		m.stopPipeline()
		m.pause = pauseview.New(m.screens.Pause(r.Context), m.keys, m.layout.ContentWidth(), m.layout.ContentHeight())
		m.current = ScreenPause
		return m.pause.Mount()

	case nav.RouteChat:
		if m.current != ScreenPause || m.pause.Controller().Context() != r.Context.WithDefaults() {
			return nil
		}
		m.pause.Unmount()
		return m.mountChat(r.Context)

	case nav.RouteContacts:
		if m.current != ScreenChat || m.chat.Session().State() != corechat.StateEscalated {
			return nil
		}
		m.chat.Unmount()
		m.contacts = contacts.New(r.Context, m.keys, m.layout.ContentWidth(), m.layout.ContentHeight())
		m.current = ScreenContacts
		return nil
	}
	return nil
}

func (m *Model) mountChat(pctx model.PauseContext) tea.Cmd {
	m.chat = chatview.New(m.screens.Chat(pctx), m.keys, m.layout.ContentWidth(), m.layout.ContentHeight())
	m.current = ScreenChat
	return m.chat.Mount()
}

// goHome unmounts the current screen and remounts a fresh pipeline.
func (m *Model) goHome() tea.Cmd {
	m.unmountScreen()
	m.stopPipeline()
	m.current = ScreenHome
	m.pipe = m.newPipeline()
	return tea.Batch(startPipeline(m.pipe), m.home.Load())
}

func (m *Model) unmountScreen() {
	switch m.current {
	case ScreenPause:
		m.pause.Unmount()
	case ScreenChat:
		m.chat.Unmount()
	}
}

func (m *Model) stopPipeline() {
	if m.pipe != nil {
		m.pipe.Stop()
	}
}

func (m *Model) unmountAll() {
	m.unmountScreen()
	m.stopPipeline()
}

// updateActiveView dispatches the message to the mounted screen.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.current {
	case ScreenHome:
		m.home, cmd = m.home.Update(msg)
	case ScreenPause:
		m.pause, cmd = m.pause.Update(msg)
	case ScreenChat:
		m.chat, cmd = m.chat.Update(msg)
	case ScreenContacts:
		m.contacts, cmd = m.contacts.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Check-in"
	if n := m.home.Unread(); n > 0 {
		title = fmt.Sprintf("Check-in [%d new]", n)
	}
	header := m.layout.RenderHeader(title, m.headerBadge())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

func (m Model) renderContent() string {
	if m.showHelp && m.current != ScreenChat {
		return m.layout.Center(m.help.View())
	}
	switch m.current {
	case ScreenPause:
		return m.pause.View()
	case ScreenChat:
		return m.chat.View()
	case ScreenContacts:
		return m.contacts.View()
	default:
		return m.home.View()
	}
}

// headerBadge describes the pipeline while home is mounted and the mounted
// screen otherwise.
func (m Model) headerBadge() ui.PipelineBadge {
	if m.current != ScreenHome || m.pipe == nil {
		return ui.PipelineBadge{Screen: m.current.String()}
	}
	s := m.pipe.Status()
	return ui.PipelineBadge{
		Connection: s.Channel.Status.String(),
		Retries:    s.Channel.ReconnectAttempts,
		Polling:    s.Poller.State.String(),
		Demo:       s.Poller.DemoSent,
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.errMessage != "" && m.current == ScreenHome {
		return m.errMessage
	}

	switch m.current {
	case ScreenPause:
		return "enter continue | esc home | q quit"
	case ScreenChat:
		return "enter send | esc home | ctrl+c quit"
	case ScreenContacts:
		return "j/k move | enter select | esc home | q quit"
	default:
		return "c check in | x mark read | r reconnect | ? help | q quit"
	}
}

// homeStatus maps the pipeline status onto the home screen's summary.
func homeStatus(s pipeline.Status) home.Status {
	hs := home.Status{
		Connection: s.Channel.Status.String(),
		Attempts:   s.Channel.ReconnectAttempts,
		Polling:    s.Poller.State.String(),
		LastPoll:   s.Poller.LastSync,
	}
	if s.Poller.Error != nil {
		if api.IsAuthError(s.Poller.Error) {
			hs.PollError = "token rejected; run checkin login"
		} else {
			hs.PollError = "service unreachable"
		}
	}
	return hs
}
