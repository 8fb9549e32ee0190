package cli

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/ledger"
	"github.com/neoclaw-ai/repcoach/internal/store"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the task ledger",
	}
	cmd.AddCommand(newLedgerListCmd())
	cmd.AddCommand(newLedgerExportCmd())
	return cmd
}

func openLedger() (*ledger.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.LedgerPath(), ledger.WithLocation(loc))
}

func newLedgerListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent ledger records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer l.Close()

			var records []ledger.TaskRecord
			if limit > 0 {
				records, err = l.Recent(cmd.Context(), limit)
			} else {
				records, err = l.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of most recent records (0 for all)")
	return cmd
}

func writeRecords(out io.Writer, records []ledger.TaskRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No records yet.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tDATE\tSENT\tDONE\tREPS\tREPLY")
	for _, rec := range records {
		reps := "-"
		if rec.RepsDone != nil {
			reps = strconv.Itoa(*rec.RepsDone)
		}
		reply := rec.UserResponse
		if reply == "" {
			reply = "(pending)"
		} else if rec.AnsweredAt != nil {
			reply = fmt.Sprintf("%s (%s)", reply, humanize.Time(*rec.AnsweredAt))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Day,
			rec.Date,
			humanize.Time(rec.CreatedAt),
			rec.Completed,
			reps,
			strings.Join(strings.Fields(reply), " "),
		)
	}
	return tw.Flush()
}

func newLedgerExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer l.Close()

			if outPath == "" || outPath == "-" {
				return l.ExportCSV(cmd.Context(), cmd.OutOrStdout())
			}

			var buf bytes.Buffer
			if err := l.ExportCSV(cmd.Context(), &buf); err != nil {
				return err
			}
			if err := store.WriteFile(outPath, buf.Bytes(), store.PublicFileMode); err != nil {
				return fmt.Errorf("write export %q: %w", outPath, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported ledger to %s\n", outPath)
			return err
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	return cmd
}
