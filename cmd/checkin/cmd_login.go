package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/responder-checkin/internal/credential"
	"github.com/nhle/responder-checkin/internal/model"
)

var loginToken string

// loginCmd stores the service token in the keyring.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the notification service token for a responder",
	Long: `Prompts for the responder id and access token, stores the token in the
system keyring and records the user id in the config file.

Example:
  checkin login --user u_123 --token "$TOKEN"`,
	RunE: runLogin,
}

// logoutCmd removes the stored token.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token for the configured responder",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.UserID == "" {
			return errors.New("no user id configured")
		}
		creds, err := credential.Open()
		if err != nil {
			return err
		}
		if err := creds.DeleteToken(cfg.Server.UserID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed token for %s\n", cfg.Server.UserID)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Access token (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	user := cfg.Server.UserID
	token := loginToken

	if user == "" || token == "" {
		form := loginForm(&user, &token)
		if err := form.Run(); err != nil {
			return fmt.Errorf("login form: %w", err)
		}
	}

	user = strings.TrimSpace(user)
	token = strings.TrimSpace(token)
	if user == "" || token == "" {
		return errors.New("user id and token are required")
	}

	creds, err := credential.Open()
	if err != nil {
		return err
	}
	if err := creds.SetToken(user, token); err != nil {
		return err
	}

	if cfg.Server.UserID != user {
		cfg.Server.UserID = user
		if err := model.SaveConfig(configPath, cfg); err != nil {
			return err
		}
	}

	logger.Info("stored token", zap.String("user_id", user))
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user)
	return nil
}

func loginForm(user, token *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Responder ID").
				Value(user).
				Validate(required("responder id")),
			huh.NewInput().
				Title("Access token").
				EchoMode(huh.EchoModePassword).
				Value(token).
				Validate(required("token")),
		),
	)
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
