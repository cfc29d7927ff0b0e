package notarisation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mavleo96/notary-doublespend/internal/flowclient"
	"github.com/mavleo96/notary-doublespend/internal/models"
	"github.com/mavleo96/notary-doublespend/internal/poller"
	"github.com/mavleo96/notary-doublespend/internal/utils"
	log "github.com/sirupsen/logrus"
)

// FlowService is a remote node able to start flows and report their outcome
type FlowService interface {
	Start(ctx context.Context, flowName string, params any) (models.OperationHandle, error)
	Outcome(ctx context.Context, handle models.OperationHandle) (models.Outcome, error)
	Address() string
}

// spendParams is the parameter payload of the spend flow
type spendParams struct {
	TxID        string `json:"txId"`
	Conflicting string `json:"conflicting"`
}

type pending struct {
	future  *poller.Future
	request models.SpendRequest
}

// Task sends one node's schedule of spend requests and reconciles the outcomes
type Task struct {
	service         FlowService
	poller          *poller.Poller
	spendFlow       string
	monitorInterval time.Duration
	logger          log.FieldLogger
	now             func() time.Time
}

// NewTask creates a notarisation task bound to one node
func NewTask(service FlowService, p *poller.Poller, spendFlow string, monitorInterval time.Duration, logger log.FieldLogger) *Task {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Task{
		service:         service,
		poller:          p,
		spendFlow:       spendFlow,
		monitorInterval: monitorInterval,
		logger:          logger.WithField("node", service.Address()),
		now:             time.Now,
	}
}

// Run submits every request in schedule order and waits for all outcomes.
// The returned error is fatal for the node; the result is only meaningful when
// it is nil.
func (t *Task) Run(ctx context.Context, requests []models.SpendRequest) (*models.NodeResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := &models.NodeResult{}
	queue := make(chan pending, len(requests))
	t.logger.Infof("Sending %d notarisation requests", len(requests))

	stopMonitor := t.startMonitor(len(requests), result)
	defer stopMonitor()

	start := t.now()

	var wg sync.WaitGroup
	var produceErr error
	wg.Go(func() {
		defer close(queue)
		if err := t.produce(ctx, requests, queue, result); err != nil {
			produceErr = err
			cancel()
		}
	})

	consumeErr := t.consume(ctx, len(requests), queue, result, NewLedger())
	if consumeErr != nil {
		cancel()
	}
	wg.Wait()
	drain(queue)

	// A failed start cancels the consumer, so its error is the root cause
	err := produceErr
	if err == nil {
		err = consumeErr
	}
	if err != nil {
		t.logger.Warnf("Notarisation task aborted: %v", err)
		return result, err
	}

	elapsed := t.now().Sub(start).Seconds()
	result.SetThroughput(utils.RoundHalfUp(utils.Rate(result.Sent(), elapsed), 2))
	t.logger.Infof("Notarisation task finished with %s", result.Snapshot())
	return result, nil
}

func (t *Task) produce(ctx context.Context, requests []models.SpendRequest, queue chan<- pending, result *models.NodeResult) error {
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.IncSent()

		params := spendParams{TxID: req.Tx.TxID, Conflicting: strconv.FormatBool(req.Conflicting)}
		handle, err := t.service.Start(ctx, t.spendFlow, params)
		if err != nil {
			return fmt.Errorf("start spend of %s: %w", req.Tx.TxID, err)
		}
		t.logger.Debugf("Double spend notarisation flow started with id %s for %s", handle, req)

		queue <- pending{future: t.poller.PollAsync(ctx, t.service, handle), request: req}
	}
	return nil
}

// consume handles exactly expected outcomes, unless the queue closes early
func (t *Task) consume(ctx context.Context, expected int, queue <-chan pending, result *models.NodeResult, ledger *Ledger) error {
	for processed := 0; processed < expected; processed++ {
		var item pending
		var ok bool
		select {
		case item, ok = <-queue:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		outcome, err := item.future.Get(ctx)
		switch {
		case err == nil:
			if err := t.apply(item.request, outcome, result, ledger); err != nil {
				item.future.Cancel()
				return err
			}
		case poller.IsRemoteFailure(err):
			t.logger.Debugf("Spend of %s (flow %s) failed: %v", item.request.Tx.TxID, item.future.Handle(), err)
			result.IncFailed()
		case poller.IsPollTimeout(err):
			t.logger.Warnf("Spend of %s (flow %s) never reached a final status: %v", item.request.Tx.TxID, item.future.Handle(), err)
			result.IncFailed()
		default:
			item.future.Cancel()
			return fmt.Errorf("outcome of spend %s: %w", item.request.Tx.TxID, err)
		}
	}

	t.sweep(ledger, result)
	return nil
}

func (t *Task) apply(req models.SpendRequest, outcome models.Outcome, result *models.NodeResult, ledger *Ledger) error {
	spend, err := flowclient.DecodeSpendResult(outcome)
	if err != nil {
		return fmt.Errorf("result of spend %s: %w", req.Tx.TxID, err)
	}
	obs := ledger.Apply(req.Tx.TxID, spend.StateIDsAndStatus)
	t.logger.Debugf("Spend of %s observed %v: %s", req, spend.StateIDsAndStatus, obs)
	if obs == ObservedDoubleSpend {
		t.logger.Warnf("Double spend observed for %s", req)
		result.IncDoubleSpend()
		return nil
	}
	result.IncSuccessful()
	return nil
}

// sweep charges one failed spend per transaction whose states were never seen
// spent and takes back the speculative credits given to it
func (t *Task) sweep(ledger *Ledger, result *models.NodeResult) {
	for _, tx := range ledger.Unspent() {
		t.logger.Warnf("Error: states %v of %s were not spent", tx.States, tx.TxID)
		result.IncFailed()
		if revoked := result.RevokeSuccessful(tx.Credits); revoked < tx.Credits {
			t.logger.Debugf("Only %d of %d credits of %s could be revoked", revoked, tx.Credits, tx.TxID)
		}
	}
}

func (t *Task) startMonitor(total int, result *models.NodeResult) func() {
	if t.monitorInterval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(t.monitorInterval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case <-ticker.C:
				t.logger.Infof("Notarisation task progress: %d total / %d sent / %d responded", total, result.Sent(), result.Responses())
			case <-done:
				return
			}
		}
	})
	return func() {
		ticker.Stop()
		close(done)
		wg.Wait()
	}
}

// drain cancels the polls of every request still queued
func drain(queue <-chan pending) {
	for item := range queue {
		item.future.Cancel()
	}
}
