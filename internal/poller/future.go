package poller

import (
	"context"

	"github.com/mavleo96/notary-doublespend/internal/models"
)

// Future is the pending result of an asynchronous poll
type Future struct {
	handle  models.OperationHandle
	done    chan struct{}
	cancel  context.CancelFunc
	outcome models.Outcome
	err     error
}

// Handle returns the flow handle being polled
func (f *Future) Handle() models.OperationHandle {
	return f.handle
}

// Done is closed once the poll has finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get waits for the poll to finish. If ctx ends first, the poll keeps running
// and ctx's error is returned.
func (f *Future) Get(ctx context.Context) (models.Outcome, error) {
	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		return models.Outcome{}, ctx.Err()
	}
}

// Cancel stops the poll. The background goroutine exits within one interval.
func (f *Future) Cancel() {
	f.cancel()
}
