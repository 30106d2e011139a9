package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"snulms/lib/serviceutil"
	"snulms/lib/telemetry"

	"github.com/spf13/cobra"
)

// version is set with -ldflags "-X snulms/cmd/lms-cli/commands.version=..."
var version = "dev"

var (
	configPath string
	verbose    bool
	httpDump   string

	otelProviders telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:           "lms-cli",
	Short:         "lms-cli reads your profile and courses off the SNU learning portal.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		err := serviceutil.LoadDotenv(".env")
		if err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg.Verbose = cfg.Verbose || verbose
		telemetry.InitSlog(cfg.Verbose)
		otelProviders, err = telemetry.Setup(
			cmd.Context(),
			telemetry.Service{Name: "lms-cli", Version: version},
			cfg.Telemetry,
			telemetry.NewScopedAPI("lms_cli", telemetry.SlogAPI{}),
		)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		if cfg.Verbose {
			telemetry.InstrumentPerfStats(cmd.Context(), 5*time.Second)
		}

		e, err := newEnv(cmd.Context(), cfg, httpDump)
		if err != nil {
			return err
		}
		cmd.SetContext(setEnv(cmd.Context(), e))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", defaultConfigName, "The json5 config to read.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug output.")
	flags.StringVar(&httpDump, "http-dump", "", "Write every http exchange to this directory, may start with <dev_state>.")
}

// ExecuteContext runs the command line and returns the exit code. Exporters
// set up by the config are flushed before it returns.
func ExecuteContext(ctx context.Context) int {
	code := 0
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	return code
}
