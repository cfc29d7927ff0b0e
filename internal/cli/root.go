package cli

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose bool
	Logger  *log.Logger
}

// NewRootCommand creates the root command of the notary CLI. All commands log
// through logger.
func NewRootCommand(logger *log.Logger) *cobra.Command {
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts := &RootOptions{Logger: logger}

	cmd := &cobra.Command{
		Use:   "notary",
		Short: "Notary correctness test tools",
		Long:  "Tools that drive ledger nodes to reveal notarisation issues such as double spends.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				opts.Logger.SetLevel(log.DebugLevel)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewDoubleSpendCommand(opts))
	cmd.AddCommand(NewReportsCommand(opts))

	return cmd
}
