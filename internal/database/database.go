package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mavleo96/notary-doublespend/internal/models"
	"go.etcd.io/bbolt"
)

var reportsBucket = []byte("reports")

// ErrReportNotFound is returned when no report is stored under a run id
var ErrReportNotFound = errors.New("report not found")

// ReportStore persists run reports in a bbolt file keyed by run id
type ReportStore struct {
	db *bbolt.DB
}

// ReportSummary is the listing entry of a stored report
type ReportSummary struct {
	RunID                 string    `json:"run_id"`
	StartedAt             time.Time `json:"started_at"`
	ExitCode              int       `json:"exit_code"`
	DoubleSpendViolations int64     `json:"double_spend_violations"`
	FailedSpends          int64     `json:"failed_spends"`
}

// OpenReportStore opens (or creates) the store at dbPath and makes sure the
// "reports" bucket exists
func OpenReportStore(dbPath string) (*ReportStore, error) {
	boltDB, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open report store %s: %w", dbPath, err)
	}

	err = boltDB.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reportsBucket)
		return err
	})
	if err != nil {
		boltDB.Close()
		return nil, err
	}
	return &ReportStore{db: boltDB}, nil
}

// SaveReport stores the report, replacing any earlier report with the same run id
func (s *ReportStore) SaveReport(report *models.Report) error {
	if report.RunID == "" {
		return errors.New("report has no run id")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return errors.New("reports bucket not found")
		}
		return b.Put([]byte(report.RunID), data)
	})
}

// GetReport loads the report of a run
func (s *ReportStore) GetReport(runID string) (*models.Report, error) {
	var report models.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return errors.New("reports bucket not found")
		}
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrReportNotFound, runID)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListReports returns a summary of every stored report, oldest first
func (s *ReportStore) ListReports() ([]ReportSummary, error) {
	summaries := make([]ReportSummary, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return errors.New("reports bucket not found")
		}
		return b.ForEach(func(k, v []byte) error {
			var report models.Report
			if err := json.Unmarshal(v, &report); err != nil {
				return fmt.Errorf("decode report %s: %w", k, err)
			}
			summaries = append(summaries, ReportSummary{
				RunID:                 report.RunID,
				StartedAt:             report.StartedAt,
				ExitCode:              report.ExitCode,
				DoubleSpendViolations: report.Totals.DoubleSpendViolations,
				FailedSpends:          report.Totals.FailedSpends,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortSummaries(summaries)
	return summaries, nil
}

// Close closes the database
func (s *ReportStore) Close() error {
	return s.db.Close()
}
