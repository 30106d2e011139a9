package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	sessionCmd.AddCommand(sessionDumpCmd)
	sessionCmd.AddCommand(sessionForgetCmd)
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manages the stored session.",
}

var sessionDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Prints the stored session dump, it holds live credentials.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		blob, err := e.store.Load(cmd.Context(), e.cfg.Session.Name)
		if err != nil {
			return fmt.Errorf("load session '%s': %w", e.cfg.Session.Name, err)
		}
		_, err = os.Stdout.Write(append(blob, '\n'))
		return err
	},
}

var sessionForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Deletes the stored session without logging it out.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		err := e.store.Delete(cmd.Context(), e.cfg.Session.Name)
		if err != nil {
			return err
		}
		fmt.Printf("Forgot session '%s'.\n", e.cfg.Session.Name)
		return nil
	},
}
