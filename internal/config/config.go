package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mavleo96/notary-doublespend/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeoutSeconds  = 300
	DefaultNumSpends       = 1
	DefaultStatesPerTxn    = 1
	DefaultRNGSeed         = 23
	DefaultMonitorInterval = 30 * time.Second
	DefaultPollAttempts    = 10
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMultiplier  = 1.1
	DefaultPollWorkers     = 10

	DefaultMaxResponseBytes int64 = 64 << 20

	DefaultIssueFlowName = "net.corda.test.notarytest.workflows.GenerateIssueTxnsFlow"
	DefaultSpendFlowName = "net.corda.test.notarytest.workflows.SpendNotarisationFlow"
)

// PollConfig holds the backoff policy shared by blocking and asynchronous polling
type PollConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	Workers         int           `yaml:"workers"`
}

// Config holds the configuration of a double spend scenario
type Config struct {
	SeedNode         string        `yaml:"seed_node"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	Peers            []string      `yaml:"peers"`
	DoubleSpendRatio float64       `yaml:"double_spend_ratio"`
	DoubleSpendMode  string        `yaml:"double_spend_mode"`
	TimeoutSeconds   int           `yaml:"timeout"`
	NumSpends        int           `yaml:"number_of_spends"`
	StatesPerTxn     int           `yaml:"states_per_txn"`
	RNGSeed          int64         `yaml:"rng_seed"`
	Notary           string        `yaml:"notary"`
	IssueFlowName    string        `yaml:"issue_flow"`
	SpendFlowName    string        `yaml:"spend_flow"`
	MonitorInterval  time.Duration `yaml:"monitor_interval"`
	Poll             PollConfig    `yaml:"poll"`
	ReportDB         string        `yaml:"report_db"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
}

// Default returns a config populated with the tool defaults
func Default() *Config {
	return &Config{
		DoubleSpendMode: "end",
		TimeoutSeconds:  DefaultTimeoutSeconds,
		NumSpends:       DefaultNumSpends,
		StatesPerTxn:    DefaultStatesPerTxn,
		RNGSeed:         DefaultRNGSeed,
		IssueFlowName:   DefaultIssueFlowName,
		SpendFlowName:   DefaultSpendFlowName,
		MonitorInterval: DefaultMonitorInterval,
		Poll: PollConfig{
			MaxAttempts:     DefaultPollAttempts,
			InitialInterval: DefaultPollInterval,
			Multiplier:      DefaultPollMultiplier,
			Workers:         DefaultPollWorkers,
		},
		MaxResponseBytes: DefaultMaxResponseBytes,
	}
}

// ParseConfig reads a yaml scenario file on top of the defaults
func ParseConfig(cfgPath string) (*Config, error) {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

// Timeout returns the overall spend phase timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ConflictPosition returns the parsed double spend mode
func (c *Config) ConflictPosition() (models.ConflictPosition, error) {
	return models.ParseConflictPosition(c.DoubleSpendMode)
}

// Nodes returns the seed node followed by the peers
func (c *Config) Nodes() ([]*models.Node, error) {
	return models.GetNodeList(c.SeedNode, c.Peers)
}

// Validate fills zero values with defaults and checks ranges.
// Any error returned here is fatal for the run.
func (c *Config) Validate() error {
	d := Default()
	if c.IssueFlowName == "" {
		c.IssueFlowName = d.IssueFlowName
	}
	if c.SpendFlowName == "" {
		c.SpendFlowName = d.SpendFlowName
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = d.MonitorInterval
	}
	if c.Poll.Workers <= 0 {
		c.Poll.Workers = d.Poll.Workers
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}

	var errs []error
	if c.SeedNode == "" {
		errs = append(errs, errors.New("seed node address is required"))
	} else if _, err := c.Nodes(); err != nil {
		errs = append(errs, err)
	}
	if c.Username == "" {
		errs = append(errs, errors.New("rpc username is required"))
	}
	if c.DoubleSpendRatio < 0 || c.DoubleSpendRatio > 1 {
		errs = append(errs, fmt.Errorf("double spend ratio %v out of range [0, 1]", c.DoubleSpendRatio))
	}
	if _, err := c.ConflictPosition(); err != nil {
		errs = append(errs, err)
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %d", c.TimeoutSeconds))
	}
	if c.NumSpends <= 0 {
		errs = append(errs, fmt.Errorf("number of spends must be positive, got %d", c.NumSpends))
	}
	if c.StatesPerTxn <= 0 {
		errs = append(errs, fmt.Errorf("states per transaction must be positive, got %d", c.StatesPerTxn))
	}
	if c.Poll.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("poll max attempts must be positive, got %d", c.Poll.MaxAttempts))
	}
	if c.Poll.InitialInterval < 0 {
		errs = append(errs, fmt.Errorf("poll initial interval must not be negative, got %s", c.Poll.InitialInterval))
	}
	if c.Poll.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("poll multiplier must be at least 1, got %v", c.Poll.Multiplier))
	}
	return errors.Join(errs...)
}
