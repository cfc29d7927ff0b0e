package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mavleo96/notary-doublespend/internal/config"
	"github.com/mavleo96/notary-doublespend/internal/database"
	"github.com/mavleo96/notary-doublespend/internal/driver"
	"github.com/mavleo96/notary-doublespend/internal/flowclient"
	"github.com/mavleo96/notary-doublespend/internal/models"
	"github.com/mavleo96/notary-doublespend/internal/notarisation"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag names, also used as viper keys. NOTARY_<NAME> environment variables
// override the defaults, with dashes replaced by underscores.
const (
	flagConfig          = "config"
	flagRatio           = "double-spend-ratio"
	flagMode            = "double-spend-mode"
	flagTimeout         = "timeout"
	flagSpends          = "number-of-spends"
	flagStates          = "states-per-txn"
	flagSeed            = "rng-seed"
	flagNotary          = "notary"
	flagReportDB        = "report-db"
	flagIssueFlow       = "issue-flow"
	flagSpendFlow       = "spend-flow"
	flagMonitorInterval = "monitor-interval"
	flagPollAttempts    = "poll-attempts"
	flagPollInterval    = "poll-interval"
	flagPollMultiplier  = "poll-multiplier"
	flagPollWorkers     = "poll-workers"
	flagMaxResponse     = "max-response-bytes"

	keyUsername = "username"
	keyPassword = "password"
)

// DoubleSpendOptions holds the state of the double-spend command
type DoubleSpendOptions struct {
	*RootOptions
	viper *viper.Viper
}

// NewDoubleSpendCommand creates the double-spend command
func NewDoubleSpendCommand(rootOpts *RootOptions) *cobra.Command {
	return newDoubleSpendCommand(&DoubleSpendOptions{RootOptions: rootOpts, viper: viper.New()})
}

func newDoubleSpendCommand(opts *DoubleSpendOptions) *cobra.Command {
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "double-spend [host:port username password [host:port...]]",
		Short: "Attempt to reveal notarisation issues when spending the same state twice",
		Long: `Tool that attempts to reveal notarisation issues when spending the same state
twice. This will always perform a fixed number of specified initial state spends,
and will probabilistically generate a corresponding double spend for the same
state based on the specified double spend ratio.

Double spends can be attempted after all initial spends (simulating spending an
already spent state), or interleaved with the corresponding initial spend
(simulating trying to spend an unspent state twice in parallel).

The first node, credentials and peers may also come from --config.

Exit codes:
  0 - all nodes finished without double spends or failed spends
  1 - double spends or failed spends observed, or a node did not finish
  2 - invalid configuration or unexpected error

Examples:
  notary double-spend localhost:10050 user1 test localhost:10051 --number-of-spends 10
  notary double-spend --config scenario.yaml --double-spend-ratio 0.5 --double-spend-mode interleaved`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && len(args) < 3 {
				return NewExitError(ExitCommandError, "expected host:port, username and password")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoubleSpend(cmd.Context(), opts, cmd, args)
		},
	}

	f := cmd.Flags()
	f.String(flagConfig, "", "path to a yaml scenario file")
	f.Float64(flagRatio, d.DoubleSpendRatio, "probability of generating a double spend for a state, 0.0 disables double spending")
	f.String(flagMode, d.DoubleSpendMode, "when to attempt double spends, either end (after all initial spends) or interleaved (immediately following initial spend)")
	f.Int(flagTimeout, d.TimeoutSeconds, "overall notarisation timeout in seconds")
	f.Int(flagSpends, d.NumSpends, "the number of initial spend operations")
	f.Int(flagStates, d.StatesPerTxn, "the number of states for each initial spend transaction")
	f.Int64(flagSeed, d.RNGSeed, "random number generator seed")
	f.String(flagNotary, "", "the notary to use, defaults to first defined in configuration")
	f.String(flagReportDB, "", "path to a report database; reports are not stored when empty")
	f.String(flagIssueFlow, d.IssueFlowName, "name of the flow that issues the initial transactions")
	f.String(flagSpendFlow, d.SpendFlowName, "name of the flow that spends a transaction")
	f.Duration(flagMonitorInterval, d.MonitorInterval, "interval between progress reports")
	f.Int(flagPollAttempts, d.Poll.MaxAttempts, "maximum number of flow outcome queries")
	f.Duration(flagPollInterval, d.Poll.InitialInterval, "wait after the first flow outcome query")
	f.Float64(flagPollMultiplier, d.Poll.Multiplier, "growth of the wait between flow outcome queries")
	f.Int(flagPollWorkers, d.Poll.Workers, "maximum number of flows polled at the same time")
	f.Int64(flagMaxResponse, d.MaxResponseBytes, "maximum size of a single node response body")

	v := opts.viper
	v.SetEnvPrefix("NOTARY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(f)
	_ = v.BindEnv(keyUsername)
	_ = v.BindEnv(keyPassword)

	return cmd
}

func runDoubleSpend(ctx context.Context, opts *DoubleSpendOptions, cmd *cobra.Command, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg, err := loadConfig(opts.viper, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	var store driver.ReportSaver
	if cfg.ReportDB != "" {
		st, err := database.OpenReportStore(cfg.ReportDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open report database", err)
		}
		defer st.Close()
		store = st
	}

	client := flowclient.NewClient(nil, opts.Logger)
	client.SetMaxResponseBytes(cfg.MaxResponseBytes)
	creds := flowclient.Credentials{Username: cfg.Username, Password: cfg.Password}
	newService := func(node *models.Node) notarisation.FlowService {
		return client.ForNode(node.Address, creds)
	}

	d, err := driver.New(cfg, newService, store, opts.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid scenario", err)
	}
	report, err := d.RunScenario(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "tests failed with an unexpected error", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), driver.RenderReport(report))
	if report.ExitCode != driver.ExitClean {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s completed with errors", report.RunID))
	}
	return nil
}

// loadConfig builds the scenario from the config file, the positional arguments
// and finally any flag or environment override
func loadConfig(v *viper.Viper, args []string) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString(flagConfig); path != "" {
		parsed, err := config.ParseConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}

	if len(args) >= 3 {
		cfg.SeedNode = args[0]
		cfg.Username = args[1]
		cfg.Password = args[2]
	}
	if len(args) > 3 {
		cfg.Peers = args[3:]
	}
	if v.IsSet(keyUsername) {
		cfg.Username = v.GetString(keyUsername)
	}
	if v.IsSet(keyPassword) {
		cfg.Password = v.GetString(keyPassword)
	}

	if v.IsSet(flagRatio) {
		cfg.DoubleSpendRatio = v.GetFloat64(flagRatio)
	}
	if v.IsSet(flagMode) {
		cfg.DoubleSpendMode = v.GetString(flagMode)
	}
	if v.IsSet(flagTimeout) {
		cfg.TimeoutSeconds = v.GetInt(flagTimeout)
	}
	if v.IsSet(flagSpends) {
		cfg.NumSpends = v.GetInt(flagSpends)
	}
	if v.IsSet(flagStates) {
		cfg.StatesPerTxn = v.GetInt(flagStates)
	}
	if v.IsSet(flagSeed) {
		cfg.RNGSeed = v.GetInt64(flagSeed)
	}
	if v.IsSet(flagNotary) {
		cfg.Notary = v.GetString(flagNotary)
	}
	if v.IsSet(flagReportDB) {
		cfg.ReportDB = v.GetString(flagReportDB)
	}
	if v.IsSet(flagIssueFlow) {
		cfg.IssueFlowName = v.GetString(flagIssueFlow)
	}
	if v.IsSet(flagSpendFlow) {
		cfg.SpendFlowName = v.GetString(flagSpendFlow)
	}
	if v.IsSet(flagMonitorInterval) {
		cfg.MonitorInterval = v.GetDuration(flagMonitorInterval)
	}
	if v.IsSet(flagPollAttempts) {
		cfg.Poll.MaxAttempts = v.GetInt(flagPollAttempts)
	}
	if v.IsSet(flagPollInterval) {
		cfg.Poll.InitialInterval = v.GetDuration(flagPollInterval)
	}
	if v.IsSet(flagPollMultiplier) {
		cfg.Poll.Multiplier = v.GetFloat64(flagPollMultiplier)
	}
	if v.IsSet(flagPollWorkers) {
		cfg.Poll.Workers = v.GetInt(flagPollWorkers)
	}
	if v.IsSet(flagMaxResponse) {
		cfg.MaxResponseBytes = v.GetInt64(flagMaxResponse)
	}
	return cfg, nil
}
