package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/mavleo96/notary-doublespend/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flowstarter is an in-memory node serving the flowstarter API. Unless naive, its
// notary reports a state as spent only the first time it is consumed.
type flowstarter struct {
	t        *testing.T
	naive    bool
	mu       sync.Mutex
	next     int
	txns     map[string][]string
	spent    map[string]bool
	outcomes map[string][]byte
}

func newFlowstarter(t *testing.T, naive bool) *httptest.Server {
	f := &flowstarter{
		t:        t,
		naive:    naive,
		txns:     make(map[string][]string),
		spent:    make(map[string]bool),
		outcomes: make(map[string][]byte),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *flowstarter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, _ := r.BasicAuth()
	if user != "user1" || pass != "test" {
		http.Error(w, "unauthorised", http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/flowstarter/startflow":
		var req struct {
			RPCStartFlowRequest struct {
				ClientID   string `json:"clientId"`
				FlowName   string `json:"flowName"`
				Parameters struct {
					ParametersInJSON string `json:"parametersInJson"`
				} `json:"parameters"`
			} `json:"rpcStartFlowRequest"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var params map[string]string
		if err := json.Unmarshal([]byte(req.RPCStartFlowRequest.Parameters.ParametersInJSON), &params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		flowID := fmt.Sprintf("flow-%d", f.next)
		f.next++
		var result []byte
		if strings.HasSuffix(req.RPCStartFlowRequest.FlowName, "GenerateIssueTxnsFlow") {
			result = f.issue(params)
		} else {
			result = f.spend(params["txId"])
		}
		f.outcomes[flowID], _ = json.Marshal(map[string]any{"status": "COMPLETED", "resultJson": string(result)})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"flowId":   map[string]string{"uuid": flowID},
			"clientId": req.RPCStartFlowRequest.ClientID,
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/flowstarter/flowoutcome/"):
		body, ok := f.outcomes[strings.TrimPrefix(r.URL.Path, "/api/v1/flowstarter/flowoutcome/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)

	default:
		http.NotFound(w, r)
	}
}

func (f *flowstarter) issue(params map[string]string) []byte {
	n, _ := strconv.Atoi(params["numInitialTxns"])
	s, _ := strconv.Atoi(params["numStatesPerTxn"])
	type digest struct {
		TxID       string   `json:"txId"`
		Outputs    []string `json:"outputs"`
		Signatures []string `json:"signatures"`
	}
	txns := make([]digest, n)
	for i := range txns {
		id := fmt.Sprintf("tx-%d", len(f.txns))
		outputs := make([]string, s)
		for j := range outputs {
			outputs[j] = fmt.Sprintf("%s-s%d", id, j)
		}
		f.txns[id] = outputs
		txns[i] = digest{TxID: id, Outputs: outputs, Signatures: []string{}}
	}
	out, _ := json.Marshal(txns)
	return out
}

func (f *flowstarter) spend(txID string) []byte {
	states := make(map[string]bool)
	for _, id := range f.txns[txID] {
		states[id] = f.naive || !f.spent[id]
		f.spent[id] = true
	}
	out, _ := json.Marshal(map[string]any{"stateIdsAndStatus": states})
	return out
}

func address(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cmd := NewRootCommand(logger)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(nil)
	require.NotNil(t, cmd)
	assert.Equal(t, "notary", cmd.Use)

	for _, name := range []string{"double-spend", "reports"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
}

func TestDoubleSpendFlagDefaults(t *testing.T) {
	cmd := NewRootCommand(nil)
	ds, _, err := cmd.Find([]string{"double-spend"})
	require.NoError(t, err)

	defaults := map[string]string{
		"double-spend-ratio": "0",
		"double-spend-mode":  "end",
		"timeout":            "300",
		"number-of-spends":   "1",
		"states-per-txn":     "1",
		"rng-seed":           "23",
		"poll-attempts":      "10",
		"poll-interval":      "5s",
		"monitor-interval":   "30s",
	}
	for name, want := range defaults {
		flag := ds.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, want, flag.DefValue, name)
	}
}

func TestDoubleSpendCleanRun(t *testing.T) {
	seed := newFlowstarter(t, false)
	peer := newFlowstarter(t, false)
	dbPath := filepath.Join(t.TempDir(), "reports.db")

	out, err := execute(t, "double-spend", address(seed), "user1", "test", address(peer),
		"--number-of-spends", "4", "--states-per-txn", "2",
		"--double-spend-ratio", "0.5", "--double-spend-mode", "interleaved",
		"--poll-interval", "1ms", "--report-db", dbPath, "--notary", "O=Notary, L=London, C=GB")
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, GetExitCode(err))
	assert.Contains(t, out, "Notarisation complete.")
	assert.Contains(t, out, "Number of double spends: 0")
	assert.Contains(t, out, "Notary: O=Notary, L=London, C=GB")
	assert.Contains(t, out, "Completed nodes: 2/2, exit code: 0")

	out, err = execute(t, "reports", "--db", dbPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "RUN ID")

	runID := strings.Fields(lines[1])[0]
	out, err = execute(t, "reports", "--db", dbPath, runID, "--json")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, runID, report["run_id"])
	assert.Equal(t, "interleaved", report["conflict_position"])
}

func TestDoubleSpendReportsViolations(t *testing.T) {
	srv := newFlowstarter(t, true)

	out, err := execute(t, "double-spend", address(srv), "user1", "test",
		"--number-of-spends", "2", "--double-spend-ratio", "1", "--poll-interval", "1ms")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Number of double spends: 2")
}

func TestDoubleSpendWrongCredentialsExcludesNode(t *testing.T) {
	srv := newFlowstarter(t, false)

	out, err := execute(t, "double-spend", address(srv), "user1", "wrong", "--poll-interval", "1ms")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "excluded (issuance failed")
}

func TestDoubleSpendCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing credentials", []string{"double-spend", "localhost:10050"}},
		{"no node", []string{"double-spend"}},
		{"bad address", []string{"double-spend", "nope", "user1", "test"}},
		{"bad ratio", []string{"double-spend", "localhost:10050", "user1", "test", "--double-spend-ratio", "1.5"}},
		{"bad mode", []string{"double-spend", "localhost:10050", "user1", "test", "--double-spend-mode", "sometimes"}},
		{"missing config file", []string{"double-spend", "--config", "does-not-exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed_node: localhost:10050
username: user1
password: from-file
peers: [localhost:10051]
timeout: 60
double_spend_ratio: 0.2
number_of_spends: 8
`), 0600))
	t.Setenv("NOTARY_TIMEOUT", "90")
	t.Setenv("NOTARY_PASSWORD", "from-env")

	logger, _ := test.NewNullLogger()
	opts := &DoubleSpendOptions{RootOptions: &RootOptions{Logger: logger}, viper: viper.New()}
	cmd := newDoubleSpendCommand(opts)
	require.NoError(t, cmd.Flags().Parse([]string{"--config", path, "--double-spend-ratio", "0.3"}))

	cfg, err := loadConfig(opts.viper, nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost:10050", cfg.SeedNode)
	assert.Equal(t, []string{"localhost:10051"}, cfg.Peers)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, 90, cfg.TimeoutSeconds)
	assert.Equal(t, 0.3, cfg.DoubleSpendRatio)
	assert.Equal(t, 8, cfg.NumSpends)
	assert.Equal(t, "end", cfg.DoubleSpendMode)

	cfg, err = loadConfig(opts.viper, []string{"localhost:20050", "user2", "pw"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:20050", cfg.SeedNode)
	assert.Equal(t, []string{"localhost:10051"}, cfg.Peers, "peers from the config file are kept without peer arguments")
	assert.Equal(t, "from-env", cfg.Password)

	cfg, err = loadConfig(opts.viper, []string{"localhost:20050", "user2", "pw", "localhost:20051", "localhost:20052"})
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:20051", "localhost:20052"}, cfg.Peers)
	assert.Equal(t, config.DefaultMaxResponseBytes, cfg.MaxResponseBytes)

	require.NoError(t, cmd.Flags().Set(flagMaxResponse, "1024"))
	cfg, err = loadConfig(opts.viper, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.MaxResponseBytes)
}

func TestVerboseSetsDebugLevel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cmd := NewRootCommand(logger)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"reports", "--db", filepath.Join(t.TempDir(), "r.db"), "-v"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("unknown flag")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "violations"))))

	err := WrapExitError(ExitCommandError, "failed to open", os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "failed to open: file does not exist", err.Error())
}
