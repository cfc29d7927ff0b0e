package notarisation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mavleo96/notary-doublespend/internal/models"
	"github.com/mavleo96/notary-doublespend/internal/poller"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode hands out sequential handles and answers outcome queries through respond
type fakeNode struct {
	mu       sync.Mutex
	params   map[models.OperationHandle]spendParams
	seq      map[models.OperationHandle]int
	queries  map[models.OperationHandle]int
	started  []spendParams
	startErr error
	respond  func(seq int, p spendParams, query int) (models.Outcome, error)
}

func newFakeNode(respond func(seq int, p spendParams, query int) (models.Outcome, error)) *fakeNode {
	return &fakeNode{
		params:  make(map[models.OperationHandle]spendParams),
		seq:     make(map[models.OperationHandle]int),
		queries: make(map[models.OperationHandle]int),
		respond: respond,
	}
}

func (f *fakeNode) Address() string { return "localhost:10050" }

func (f *fakeNode) Start(_ context.Context, flowName string, params any) (models.OperationHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	p := params.(spendParams)
	handle := models.OperationHandle(fmt.Sprintf("h-%d", len(f.started)))
	f.seq[handle] = len(f.started)
	f.params[handle] = p
	f.started = append(f.started, p)
	return handle, nil
}

func (f *fakeNode) Outcome(_ context.Context, handle models.OperationHandle) (models.Outcome, error) {
	f.mu.Lock()
	f.queries[handle]++
	query, seq, p := f.queries[handle], f.seq[handle], f.params[handle]
	f.mu.Unlock()
	return f.respond(seq, p, query)
}

func completedWith(states map[string]bool) models.Outcome {
	payload, _ := json.Marshal(models.SpendResult{StateIDsAndStatus: states})
	return models.Outcome{Status: models.StatusCompleted, ResultPayload: payload}
}

// spendsOwnState completes every spend by spending the single state of its transaction
func spendsOwnState(_ int, p spendParams, _ int) (models.Outcome, error) {
	return completedWith(map[string]bool{p.TxID + "-s0": true}), nil
}

func request(txID string, conflicting bool) models.SpendRequest {
	return models.SpendRequest{Tx: models.TransactionDigest{TxID: txID, Outputs: []string{txID + "-s0"}}, Conflicting: conflicting}
}

func newTestTask(node FlowService, attempts int) (*Task, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	p := poller.New(poller.BackoffPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, Multiplier: 1}, 10, logger)
	return NewTask(node, p, "SpendFlow", 0, logger), hook
}

func TestRunAllSpendsSucceed(t *testing.T) {
	node := newFakeNode(spendsOwnState)
	task, _ := newTestTask(node, 3)

	res, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", false), request("tx2", false), request("tx3", false)})
	require.NoError(t, err)
	snap := res.Snapshot()
	assert.Equal(t, int64(3), snap.RequestsSent)
	assert.Equal(t, int64(3), snap.SuccessfulSpends)
	assert.True(t, snap.Clean())

	require.Len(t, node.started, 3)
	assert.Equal(t, spendParams{TxID: "tx1", Conflicting: "false"}, node.started[0])
	assert.Equal(t, "tx3", node.started[2].TxID)
}

func TestRunDetectsDoubleSpendInEitherCompletionOrder(t *testing.T) {
	for _, slow := range []int{0, 1} {
		t.Run(fmt.Sprintf("slow-%d", slow), func(t *testing.T) {
			node := newFakeNode(func(seq int, p spendParams, query int) (models.Outcome, error) {
				if seq == slow && query < 4 {
					return models.Outcome{Status: models.StatusRunning}, nil
				}
				return completedWith(map[string]bool{"tx1-s0": true}), nil
			})
			task, _ := newTestTask(node, 10)

			res, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", true), request("tx1", true)})
			require.NoError(t, err)
			snap := res.Snapshot()
			assert.Equal(t, int64(1), snap.DoubleSpendViolations)
			assert.Equal(t, int64(1), snap.SuccessfulSpends)
			assert.Equal(t, int64(0), snap.FailedSpends)
			assert.Equal(t, "true", node.started[0].Conflicting)
		})
	}
}

func TestRunSweepsUnspentStates(t *testing.T) {
	node := newFakeNode(func(_ int, p spendParams, _ int) (models.Outcome, error) {
		return completedWith(map[string]bool{p.TxID + "-s0": p.TxID != "tx2"}), nil
	})
	task, hook := newTestTask(node, 3)

	res, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", false), request("tx2", false)})
	require.NoError(t, err)
	snap := res.Snapshot()
	assert.Equal(t, int64(1), snap.SuccessfulSpends)
	assert.Equal(t, int64(1), snap.FailedSpends)
	assert.Equal(t, int64(0), snap.DoubleSpendViolations)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "were not spent") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunSweepRevokesCreditsOfUnspentConflictingPair(t *testing.T) {
	node := newFakeNode(func(int, spendParams, int) (models.Outcome, error) {
		return completedWith(map[string]bool{"tx1-s0": false}), nil
	})
	task, hook := newTestTask(node, 3)

	res, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", true), request("tx1", true)})
	require.NoError(t, err)
	snap := res.Snapshot()
	assert.Equal(t, int64(2), snap.RequestsSent)
	assert.Equal(t, int64(0), snap.SuccessfulSpends)
	assert.Equal(t, int64(1), snap.FailedSpends)
	assert.Equal(t, int64(0), snap.DoubleSpendViolations)

	var sweeps int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "were not spent") {
			sweeps++
		}
	}
	assert.Equal(t, 1, sweeps)
}

func TestRunCountsFailedAndTimedOutSpends(t *testing.T) {
	node := newFakeNode(func(seq int, p spendParams, _ int) (models.Outcome, error) {
		switch seq {
		case 0:
			return models.Outcome{Status: models.StatusFailed, Failure: &models.ExceptionDigest{ExceptionType: "NotaryException", Message: "conflict"}}, nil
		case 1:
			return models.Outcome{Status: models.StatusRunning}, nil
		default:
			return completedWith(map[string]bool{p.TxID + "-s0": true}), nil
		}
	})
	task, hook := newTestTask(node, 3)

	res, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", false), request("tx2", false), request("tx3", false)})
	require.NoError(t, err)
	snap := res.Snapshot()
	assert.Equal(t, int64(3), snap.RequestsSent)
	assert.Equal(t, int64(2), snap.FailedSpends)
	assert.Equal(t, int64(1), snap.SuccessfulSpends)
	assert.Equal(t, int64(3), res.Responses())

	var timedOut string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "never reached a final status") {
			timedOut = e.Message
		}
	}
	assert.Contains(t, timedOut, "Spend of tx2 (flow h-1)")
}

func TestRunFailsWhenStartFails(t *testing.T) {
	node := newFakeNode(spendsOwnState)
	node.startErr = errors.New("connection refused")
	task, _ := newTestTask(node, 3)

	_, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", false)})
	require.Error(t, err)
	assert.ErrorIs(t, err, node.startErr)
}

func TestRunFailsOnMalformedResult(t *testing.T) {
	node := newFakeNode(func(int, spendParams, int) (models.Outcome, error) {
		return models.Outcome{Status: models.StatusCompleted, ResultPayload: []byte(`{"unexpected":1}`)}, nil
	})
	task, _ := newTestTask(node, 3)

	_, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", false)})
	require.Error(t, err)
}

func TestRunStopsAtDeadline(t *testing.T) {
	node := newFakeNode(func(int, spendParams, int) (models.Outcome, error) {
		return models.Outcome{Status: models.StatusRunning}, nil
	})
	logger, _ := test.NewNullLogger()
	p := poller.New(poller.BackoffPolicy{MaxAttempts: 10, InitialInterval: time.Hour, Multiplier: 1}, 10, logger)
	task := NewTask(node, p, "SpendFlow", 0, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := task.Run(ctx, []models.SpendRequest{request("tx1", false), request("tx2", false)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunEmptySchedule(t *testing.T) {
	task, _ := newTestTask(newFakeNode(spendsOwnState), 3)
	res, err := task.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.NodeResultSnapshot{}, res.Snapshot())
}

func TestRunThroughput(t *testing.T) {
	task, _ := newTestTask(newFakeNode(spendsOwnState), 3)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	task.now = func() time.Time {
		calls++
		if calls == 1 {
			return clock
		}
		return clock.Add(3 * time.Second)
	}

	res, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", false), request("tx2", false)})
	require.NoError(t, err)
	assert.Equal(t, 0.67, res.Snapshot().ThroughputPerSecond)
}

func TestRunMonitorReportsProgress(t *testing.T) {
	node := newFakeNode(func(_ int, p spendParams, query int) (models.Outcome, error) {
		if query < 5 {
			return models.Outcome{Status: models.StatusRunning}, nil
		}
		return completedWith(map[string]bool{p.TxID + "-s0": true}), nil
	})
	logger, hook := test.NewNullLogger()
	p := poller.New(poller.BackoffPolicy{MaxAttempts: 10, InitialInterval: 10 * time.Millisecond, Multiplier: 1}, 10, logger)
	task := NewTask(node, p, "SpendFlow", 2*time.Millisecond, logger)

	_, err := task.Run(context.Background(), []models.SpendRequest{request("tx1", false)})
	require.NoError(t, err)

	var progress bool
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "1 total / 1 sent") {
			progress = true
			assert.Equal(t, "localhost:10050", e.Data["node"])
		}
	}
	assert.True(t, progress)
}
