package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/api"
	"github.com/nhle/responder-checkin/internal/app"
	"github.com/nhle/responder-checkin/internal/credential"
	"github.com/nhle/responder-checkin/internal/logging"
	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/store"
)

var (
	// Global flags
	configPath string
	userID     string
	baseURL    string
	logFile    string
	verbose    bool

	cfg    *model.AppConfig
	logger *zap.Logger
)

// rootCmd runs the terminal UI.
var rootCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Post-call check-ins for first responders",
	Long: `checkin waits for the notification service to report that a monitored
call has ended, pauses for a moment, then opens a short check-in
conversation. Conversations that show signs of crisis hand off to
support contacts.

Run without arguments to start the terminal UI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if userID != "" {
			cfg.Server.UserID = userID
		}
		if baseURL != "" {
			cfg.Server.BaseURL = baseURL
		}
		if cmd.Flags().Changed("log-file") {
			cfg.Logging.File = logFile
		} else if cmd == watchCmd {
			// Headless mode owns the terminal output.
			cfg.Logging.File = ""
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", model.DefaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "Responder user id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Notification service URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file; empty logs to stderr, - discards")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds the services every long-running command needs.
type env struct {
	store  *store.SQLiteStore
	client *api.Client
	token  string
}

func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// openEnv opens the ledger, resolves the token and builds the service
// client. A missing token is not an error.
func openEnv() (*env, error) {
	if cfg.Server.UserID == "" {
		return nil, fmt.Errorf("no user id configured: pass --user or run checkin login")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	token := ""
	creds, err := credential.Open()
	if err != nil {
		logger.Warn("keyring unavailable, continuing without a stored token", zap.Error(err))
	} else if token, err = creds.Token(cfg.Server.UserID); err != nil {
		logger.Warn("reading token", zap.Error(err))
	}

	return &env{
		store:  s,
		client: api.NewClient(cfg.Server.BaseURL, token),
		token:  token,
	}, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	m := app.New(app.Deps{
		Config: cfg,
		Client: e.client,
		Token:  e.token,
		Ledger: e.store,
		Logger: logger,
	})

	logger.Info("starting terminal UI", zap.String("user_id", cfg.Server.UserID))
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}
