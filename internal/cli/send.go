package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neoclaw-ai/repcoach/internal/coach"
)

func newSendCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send today's task once (no-op if already sent)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			target, err := resolveDate(a, date)
			if err != nil {
				return err
			}
			res, err := a.coach.RunFor(cmd.Context(), target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Status == coach.StatusAlreadySent {
				_, err = fmt.Fprintf(out, "Already sent for %s.\n", res.Date)
				return err
			}
			_, err = fmt.Fprintf(out, "Sent: %s\n", res.Message)
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Calendar date to run for (YYYY-MM-DD, default today)")
	return cmd
}
