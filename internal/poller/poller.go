package poller

import (
	"context"
	"time"

	"github.com/mavleo96/notary-doublespend/internal/models"
	log "github.com/sirupsen/logrus"
)

// OutcomeSource fetches the current outcome of a remote flow
type OutcomeSource interface {
	Outcome(ctx context.Context, handle models.OperationHandle) (models.Outcome, error)
}

// Poller polls remote flows until they reach a terminal status
type Poller struct {
	policy BackoffPolicy
	sem    chan struct{}
	logger log.FieldLogger
}

// New creates a poller. workers bounds the number of concurrently running
// asynchronous polls; values below one are treated as one.
func New(policy BackoffPolicy, workers int, logger log.FieldLogger) *Poller {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Poller{
		policy: policy,
		sem:    make(chan struct{}, workers),
		logger: logger,
	}
}

// Policy returns the backoff policy of the poller
func (p *Poller) Policy() BackoffPolicy {
	return p.policy
}

// Poll blocks until the flow identified by handle completes, fails or the attempt
// budget is exhausted. Errors from the source are returned immediately.
func (p *Poller) Poll(ctx context.Context, src OutcomeSource, handle models.OperationHandle) (models.Outcome, error) {
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		outcome, err := src.Outcome(ctx, handle)
		if err != nil {
			return models.Outcome{}, err
		}

		if outcome.Status.IsTerminal() {
			if outcome.Status == models.StatusFailed {
				p.logger.Debugf("Flow %s failed: %s", handle, outcome.Failure)
				return models.Outcome{}, &RemoteOperationFailedError{Handle: handle, Failure: outcome.Failure}
			}
			p.logger.Debugf("Flow %s completed after %d attempts", handle, attempt)
			return outcome, nil
		}

		if attempt == p.policy.MaxAttempts {
			break
		}
		wait := p.policy.Interval(attempt)
		p.logger.Debugf("Flow %s is %s, attempt %d/%d, retrying in %s", handle, outcome.Status, attempt, p.policy.MaxAttempts, wait)
		if err := sleep(ctx, wait); err != nil {
			return models.Outcome{}, err
		}
	}
	return models.Outcome{}, &PollTimeoutError{Handle: handle, Attempts: p.policy.MaxAttempts}
}

// PollAsync starts polling in the background and returns immediately.
// At most the configured number of workers poll at the same time; the rest wait
// for a free slot.
func (p *Poller) PollAsync(ctx context.Context, src OutcomeSource, handle models.OperationHandle) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future{
		handle: handle,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer cancel()
		defer close(f.done)

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		}
		defer func() { <-p.sem }()

		f.outcome, f.err = p.Poll(ctx, src, handle)
	}()
	return f
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
