// Package cli wires Cobra subcommands to application dependencies; it is a thin controller with no business logic.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/neoclaw-ai/repcoach/internal/bootstrap"
	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "coach",
		Short: "Daily SMS coaching agent",
		// Let main handle fatal error rendering through structured logs.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logging.SetLevel(slog.LevelInfo)
			} else {
				logging.SetLevel(slog.LevelWarn)
			}

			// config and version only read state and should not trigger
			// first-run onboarding.
			switch cmd.Name() {
			case "config", "version":
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			firstRun, err := bootstrap.Initialize(cfg)
			if err != nil {
				return err
			}
			if firstRun {
				// First-run bootstrap is an onboarding path, not a fatal error.
				if _, err := fmt.Fprintf(
					cmd.ErrOrStderr(),
					"First run setup complete.\nEdit config file: %s\nSet XAI_API_KEY, TWILIO_SID, TWILIO_TOKEN, TWILIO_NUMBER and USER_PHONE, then restart.\n",
					cfg.ConfigPath(),
				); err != nil {
					return err
				}
				os.Exit(0)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to `coach serve` when no subcommand is provided.
			serveCmd, _, err := cmd.Find([]string{"serve"})
			if err != nil {
				return err
			}
			serveCmd.SetContext(cmd.Context())
			return serveCmd.RunE(serveCmd, args)
		},
	}

	root.AddCommand(newConfigCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newReplyCmd())
	root.AddCommand(newLedgerCmd())
	root.AddCommand(newVersionCmd())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (info level)")

	return root
}
