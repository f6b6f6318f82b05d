package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/responder-checkin/internal/chat"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/nav"
	"github.com/nhle/responder-checkin/internal/pause"
	"github.com/nhle/responder-checkin/internal/pipeline"
	"github.com/nhle/responder-checkin/internal/ui/contacts"
)

var (
	watchOnce           bool
	watchMessage        string
	watchStatusInterval time.Duration
)

// errDone ends the watch loop after --once.
var errDone = errors.New("watch complete")

// watchCmd runs the trigger pipeline without a UI.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the trigger pipeline headless and log each check-in",
	Long: `Connects to the notification service, waits for a trigger, walks the
pause into the chat and prints the opening message. The pipeline is
remounted after each check-in unless --once is set.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Exit after the first check-in")
	watchCmd.Flags().StringVar(&watchMessage, "message", "", "Reply to send when a check-in opens")
	watchCmd.Flags().DurationVar(&watchStatusInterval, "status-interval", 30*time.Second, "How often to log pipeline status")
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &watcher{
		navCh: nav.NewChannel(0),
		out:   cmd.OutOrStdout(),
		log:   logger.Named("watch"),
	}
	w.deps = pipeline.Deps{
		Config:    cfg,
		Client:    e.client,
		Token:     e.token,
		Ledger:    e.store,
		Navigator: w.navCh,
		Logger:    logger,
	}
	w.screens = pipeline.Screens{
		Config:    cfg,
		Client:    e.client,
		Navigator: w.navCh,
		Logger:    logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	pipes := make(chan *pipeline.Pipeline, 1)

	g.Go(func() error {
		return w.walk(gctx, pipes)
	})
	g.Go(func() error {
		return w.report(gctx, pipes)
	})

	err = g.Wait()
	if errors.Is(err, errDone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watcher plays the part of the front end: it consumes navigation requests
// and mounts the matching component.
type watcher struct {
	deps    pipeline.Deps
	screens pipeline.Screens
	navCh   *nav.Channel
	out     io.Writer
	log     *zap.Logger
}

func (w *watcher) mount(ctx context.Context, pipes chan *pipeline.Pipeline) (*pipeline.Pipeline, error) {
	p := pipeline.New(w.deps)
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	select {
	case <-pipes:
	default:
	}
	pipes <- p
	return p, nil
}

func (w *watcher) walk(ctx context.Context, pipes chan *pipeline.Pipeline) error {
	p, err := w.mount(ctx, pipes)
	if err != nil {
		return err
	}

	var (
		ctrl    *pause.Controller
		session *chat.Session
	)
	defer func() {
		if ctrl != nil {
			ctrl.Dismiss()
		}
		if session != nil {
			session.Close()
		}
		p.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r := <-w.navCh.Requests():
			w.log.Info("navigation",
				zap.String("route", string(r.Route)),
				zap.String("incident_id", r.Context.IncidentID),
				zap.String("severity", r.Context.Severity),
				zap.String("source", r.Context.Source))

			switch r.Route {
			case nav.RoutePause:
				p.Stop()
				ctrl = w.screens.Pause(r.Context)
				ctrl.Start()
				fmt.Fprintf(w.out, "%s (incident %s, severity %s)\n",
					pause.Headline, r.Context.IncidentID, r.Context.Severity)

			case nav.RouteChat:
				if ctrl == nil || ctrl.Context() != r.Context {
					continue
				}
				ctrl.Dismiss()
				ctrl = nil

				session = w.screens.Chat(r.Context)
				session.Start()
				for _, m := range session.Snapshot().Messages {
					fmt.Fprintln(w.out, m.Text)
				}
				if watchMessage != "" {
					w.converse(ctx, session, watchMessage)
				}
				if session.State() == chat.StateEscalated {
					// Wait for the contacts handoff.
					continue
				}
				next, err := w.finish(ctx, &session, pipes)
				if err != nil {
					return err
				}
				p = next

			case nav.RouteContacts:
				if session == nil || session.State() != chat.StateEscalated {
					continue
				}
				fmt.Fprintln(w.out, "Support contacts:")
				for _, c := range contacts.Default {
					fmt.Fprintf(w.out, "  %s: %s\n", c.Label, c.Detail)
				}
				next, err := w.finish(ctx, &session, pipes)
				if err != nil {
					return err
				}
				p = next
			}
		}
	}
}

// finish closes the session and, unless --once, mounts a fresh pipeline.
func (w *watcher) finish(ctx context.Context, session **chat.Session, pipes chan *pipeline.Pipeline) (*pipeline.Pipeline, error) {
	(*session).Close()
	*session = nil
	if watchOnce {
		return nil, errDone
	}
	return w.mount(ctx, pipes)
}

// report logs the mounted pipeline's status on an interval.
func (w *watcher) report(ctx context.Context, pipes <-chan *pipeline.Pipeline) error {
	if watchStatusInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(watchStatusInterval)
	defer ticker.Stop()

	var current *pipeline.Pipeline
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-pipes:
			current = p
		case <-ticker.C:
			if current == nil {
				continue
			}
			s := current.Status()
			fields := []zap.Field{
				zap.Stringer("channel", s.Channel.Status),
				zap.Int("reconnect_attempts", s.Channel.ReconnectAttempts),
				zap.Stringer("poller", s.Poller.State),
				zap.Int("polls", s.Poller.PollCount),
				zap.Bool("consumed", s.Consumed),
			}
			if s.Poller.Error != nil {
				fields = append(fields, zap.Error(s.Poller.Error))
			}
			w.log.Info("pipeline status", fields...)
		}
	}
}

// converse sends the scripted message and waits for the reply.
func (w *watcher) converse(ctx context.Context, session *chat.Session, text string) {
	seen := len(session.Snapshot().Messages)
	if !session.Send(text) {
		return
	}

	deadline := time.NewTimer(cfg.Chat.RequestTimeout() + cfg.Chat.MinResponse())
	defer deadline.Stop()
	for session.State() == chat.StateAwaitingResponse {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			w.log.Warn("no reply before timeout")
			return
		case <-session.Updates():
		}
	}

	for _, m := range session.Snapshot().Messages[seen:] {
		prefix := ""
		if m.Sender == model.SenderUser {
			prefix = "> "
		}
		fmt.Fprintln(w.out, prefix+m.Text)
	}
}
