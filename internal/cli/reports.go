package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/mavleo96/notary-doublespend/internal/database"
	"github.com/mavleo96/notary-doublespend/internal/driver"
	"github.com/spf13/cobra"
)

// ReportsOptions holds flags for the reports command
type ReportsOptions struct {
	*RootOptions
	Database string
	JSON     bool
}

// NewReportsCommand creates the reports command
func NewReportsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reports [run-id]",
		Short: "List stored double spend reports or show one of them",
		Long: `List the reports stored by double-spend --report-db, oldest first, or show
the full report of one run.

Examples:
  notary reports --db ./reports.db
  notary reports --db ./reports.db 8f14e45f-ceea-467f-a0e6-7a5e0e0c1e2b --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReports(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the report database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the report as json")

	return cmd
}

func runReports(opts *ReportsOptions, cmd *cobra.Command, args []string) error {
	st, err := database.OpenReportStore(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open report database", err)
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		report, err := st.GetReport(args[0])
		if errors.Is(err, database.ErrReportNotFound) {
			return WrapExitError(ExitFailure, "no such run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load report", err)
		}
		if opts.JSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Fprint(out, driver.RenderReport(report))
		return nil
	}

	summaries, err := st.ListReports()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list reports", err)
	}
	if opts.JSON {
		return json.NewEncoder(out).Encode(summaries)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tDOUBLE SPENDS\tFAILED SPENDS\tEXIT CODE")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.RunID, s.StartedAt.Format("2006-01-02 15:04:05"), s.DoubleSpendViolations, s.FailedSpends, s.ExitCode)
	}
	return w.Flush()
}
