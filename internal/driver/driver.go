package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mavleo96/notary-doublespend/internal/config"
	"github.com/mavleo96/notary-doublespend/internal/crypto"
	"github.com/mavleo96/notary-doublespend/internal/flowclient"
	"github.com/mavleo96/notary-doublespend/internal/models"
	"github.com/mavleo96/notary-doublespend/internal/notarisation"
	"github.com/mavleo96/notary-doublespend/internal/poller"
	log "github.com/sirupsen/logrus"
)

// ServiceFactory binds a flow service to a target node
type ServiceFactory func(node *models.Node) notarisation.FlowService

// ReportSaver persists finished run reports
type ReportSaver interface {
	SaveReport(report *models.Report) error
}

// Driver runs a double spend scenario across all configured nodes
type Driver struct {
	cfg        *config.Config
	nodes      []*models.Node
	position   models.ConflictPosition
	newService ServiceFactory
	poller     *poller.Poller
	store      ReportSaver
	logger     log.FieldLogger
	now        func() time.Time
}

// New validates cfg and creates a driver. store may be nil, in which case
// reports are not persisted.
func New(cfg *config.Config, newService ServiceFactory, store ReportSaver, logger log.FieldLogger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	nodes, err := cfg.Nodes()
	if err != nil {
		return nil, err
	}
	position, err := cfg.ConflictPosition()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	policy := poller.BackoffPolicy{
		MaxAttempts:     cfg.Poll.MaxAttempts,
		InitialInterval: cfg.Poll.InitialInterval,
		Multiplier:      cfg.Poll.Multiplier,
	}
	return &Driver{
		cfg:        cfg,
		nodes:      nodes,
		position:   position,
		newService: newService,
		poller:     poller.New(policy, cfg.Poll.Workers, logger),
		store:      store,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// RunScenario issues transactions on every node, runs the spend schedules in
// parallel under the overall timeout and aggregates the verdict. The returned
// error is only set for driver level failures; violations are reported through
// the report's exit code.
func (d *Driver) RunScenario(ctx context.Context) (*models.Report, error) {
	cfg := d.cfg
	d.logger.Infof("Running client to initiate double spends, %d initial spends, double spend ratio %v (%s mode), timeout %d seconds",
		cfg.NumSpends, cfg.DoubleSpendRatio, d.position, cfg.TimeoutSeconds)
	if cfg.RNGSeed != config.DefaultRNGSeed {
		d.logger.Infof("RNG seed overridden to %d", cfg.RNGSeed)
	}
	if cfg.Notary != "" {
		d.logger.Infof("Using notary %s", cfg.Notary)
	}

	report := &models.Report{
		RunID:            uuid.NewString(),
		StartedAt:        d.now().UTC(),
		Notary:           cfg.Notary,
		DoubleSpendRatio: cfg.DoubleSpendRatio,
		ConflictPosition: d.position.String(),
		Seed:             cfg.RNGSeed,
		Nodes:            make([]models.NodeReport, len(d.nodes)),
	}
	for i, node := range d.nodes {
		report.Nodes[i].Node = *node
	}

	services := make([]notarisation.FlowService, len(d.nodes))
	for i, node := range d.nodes {
		services[i] = d.newService(node)
	}

	policy := d.poller.Policy()
	d.logger.Debugf("Flow outcomes are polled up to %d times over %s", policy.MaxAttempts, policy.Budget())

	d.logger.Info("Generating conflicting transactions")
	issued := make([][]models.TransactionDigest, len(d.nodes))
	for i, service := range services {
		txns, err := d.issue(ctx, service)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			d.logger.WithField("node", service.Address()).Errorf("Issuance failed, excluding node: %v", err)
			report.Nodes[i].Excluded = fmt.Sprintf("issuance failed: %v", err)
			continue
		}
		issued[i] = txns
	}

	schedule := BuildSchedule(issued, cfg.DoubleSpendRatio, d.position, cfg.RNGSeed)
	digest, err := crypto.ScheduleDigest(schedule)
	if err != nil {
		return nil, err
	}
	report.ScheduleDigest = digest
	for i, requests := range schedule {
		d.logger.WithField("node", d.nodes[i].Address).Debugf("Schedule has %d requests, %d conflicting", len(requests), countConflicting(requests))
	}
	d.logger.Info("All issue transactions generated and double spends were added")
	d.logger.Info("Now generating spends and notarising, this might take a while")

	d.fanOut(ctx, services, schedule, report)

	report.Totals, report.ExitCode = Aggregate(report.Nodes)
	report.FinishedAt = d.now().UTC()
	d.logger.Info(SummaryLine(report.Totals))

	if d.store != nil {
		if err := d.store.SaveReport(report); err != nil {
			d.logger.Warnf("Failed to save report %s: %v", report.RunID, err)
		} else {
			d.logger.Infof("Report saved as %s", report.RunID)
		}
	}
	return report, nil
}

// fanOut runs one notarisation task per issued node and records each node's
// result or the reason it was excluded
func (d *Driver) fanOut(ctx context.Context, services []notarisation.FlowService, schedule [][]models.SpendRequest, report *models.Report) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout())
	defer cancel()

	var wg sync.WaitGroup
	for i, service := range services {
		if report.Nodes[i].Excluded != "" {
			continue
		}
		wg.Go(func() {
			task := notarisation.NewTask(service, d.poller, d.cfg.SpendFlowName, d.cfg.MonitorInterval, d.logger)
			res, err := task.Run(ctx, schedule[i])
			switch {
			case err == nil:
				snap := res.Snapshot()
				report.Nodes[i].Result = &snap
				return
			case errors.Is(err, context.DeadlineExceeded):
				d.logger.Warnf("Notarisation thread for %s timed out", service.Address())
			default:
				d.logger.Errorf("Exception raised in notarisation thread for %s: %v", service.Address(), err)
			}
			report.Nodes[i].Excluded = exclusionReason(err)
		})
	}
	wg.Wait()
}

// exclusionReason describes why a node's notarisation task produced no result
func exclusionReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case flowclient.IsRemoteStartError(err), flowclient.IsRemoteQueryError(err):
		return fmt.Sprintf("rejected by node: %v", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
