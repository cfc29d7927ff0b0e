package driver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mavleo96/notary-doublespend/internal/flowclient"
	"github.com/mavleo96/notary-doublespend/internal/models"
	"github.com/mavleo96/notary-doublespend/internal/notarisation"
)

// issueParams is the parameter payload of the issuance flow
type issueParams struct {
	NumInitialTxns  string `json:"numInitialTxns"`
	NumStatesPerTxn string `json:"numStatesPerTxn"`
}

// issue generates the initial transactions on one node and blocks until the
// issuance flow finishes
func (d *Driver) issue(ctx context.Context, service notarisation.FlowService) ([]models.TransactionDigest, error) {
	logger := d.logger.WithField("node", service.Address())
	logger.Debugf("Generating transactions for host: %s", service.Address())

	params := issueParams{
		NumInitialTxns:  strconv.Itoa(d.cfg.NumSpends),
		NumStatesPerTxn: strconv.Itoa(d.cfg.StatesPerTxn),
	}
	handle, err := service.Start(ctx, d.cfg.IssueFlowName, params)
	if err != nil {
		return nil, fmt.Errorf("start issuance: %w", err)
	}
	logger.Infof("Generate txn flow successfully started with id: %s", handle)

	outcome, err := d.poller.Poll(ctx, service, handle)
	if err != nil {
		return nil, fmt.Errorf("issuance flow %s: %w", handle, err)
	}
	txns, err := flowclient.DecodeIssuedTransactions(outcome)
	if err != nil {
		return nil, fmt.Errorf("issuance flow %s: %w", handle, err)
	}
	logger.Infof("Generating transactions finished, generated %d transactions", len(txns))
	return txns, nil
}
