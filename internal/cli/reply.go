package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newReplyCmd() *cobra.Command {
	var from, date string

	cmd := &cobra.Command{
		Use:   "reply <text>",
		Short: "Record a reply as if it arrived from the user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if strings.TrimSpace(from) == "" {
				from = cfg.SenderIdentity()
			}
			if from == "" {
				return errors.New("--from is required when no sender identity is configured")
			}
			target, err := resolveDate(a, date)
			if err != nil {
				return err
			}

			res, err := a.coach.HandleReply(cmd.Context(), from, strings.Join(args, " "), target)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Outcome, res.Ack)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Sender identity (default: configured user)")
	cmd.Flags().StringVar(&date, "date", "", "Calendar date of the task (YYYY-MM-DD, default today)")
	return cmd
}
