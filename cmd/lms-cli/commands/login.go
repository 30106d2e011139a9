package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"snulms/lib/scrapers/lms"
	"snulms/lib/scrapers/lms/core"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the configured credentials and stores the session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		credentials := e.credentials()
		if credentials == nil {
			return fmt.Errorf("%w: set username and password in the config or LMS_USERNAME and LMS_PASSWORD", core.ErrMissingCredentials)
		}

		user, err := e.client.Login(cmd.Context(), lms.LoginOptions{Credentials: credentials})
		if err != nil {
			return err
		}
		err = e.client.SaveSession(cmd.Context(), e.store, e.cfg.Session.Name)
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		slog.Debug("stored session", "name", e.cfg.Session.Name, "id", e.client.SessionId())
		fmt.Printf("Logged in as %s (%d).\n", user.Name, user.Id)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks whether the stored session is still logged in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		blob, err := e.store.Load(cmd.Context(), e.cfg.Session.Name)
		if err != nil {
			return fmt.Errorf("load session '%s': %w", e.cfg.Session.Name, err)
		}
		err = e.client.RestoreSession(blob)
		if err != nil {
			return err
		}

		valid, err := e.client.CheckSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Session '%s' is %s.\n", e.cfg.Session.Name, e.client.State())
		if !valid {
			return core.ErrSessionExpired
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logs the stored session out of the portal and forgets it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		blob, err := e.store.Load(cmd.Context(), e.cfg.Session.Name)
		if err != nil {
			return fmt.Errorf("load session '%s': %w", e.cfg.Session.Name, err)
		}

		_, err = e.client.Login(cmd.Context(), lms.LoginOptions{SavedSession: blob})
		switch {
		case err == nil:
			err = e.client.Logout(cmd.Context())
			if err != nil {
				return err
			}
		case errors.Is(err, core.ErrSessionExpired):
			slog.Info("session had already expired", "name", e.cfg.Session.Name)
		default:
			return err
		}

		err = e.store.Delete(cmd.Context(), e.cfg.Session.Name)
		if err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}
