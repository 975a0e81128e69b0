package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"facility-allocator/domain"
)

const (
	AssignmentsFile = "assignments.csv"
	YieldsFile      = "yields.csv"
)

var (
	AssignmentColumns = []string{"loan_id", "facility_id"}
	YieldColumns      = []string{"facility_id", "expected_yield"}
)

// CSVReportSink writes assignments.csv and yields.csv into a directory.
type CSVReportSink struct {
	dir string
}

func NewCSVReportSink(dir string) *CSVReportSink {
	return &CSVReportSink{dir: dir}
}

func (s *CSVReportSink) Dir() string {
	return s.dir
}

// SaveReport writes both files as temporaries and only moves them into
// place once both are complete. If the second move fails the first file is
// removed again, so the directory never holds one output without the other.
func (s *CSVReportSink) SaveReport(ctx context.Context, report domain.Report) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	assignments := make([][]string, 0, len(report.Assignments))
	for _, a := range report.Assignments {
		assignments = append(assignments, []string{a.LoanID, a.FacilityID})
	}

	yields := make([][]string, 0, len(report.Yields))
	for _, y := range report.Yields {
		yields = append(yields, []string{y.FacilityID, strconv.FormatInt(y.ExpectedYield, 10)})
	}

	assignmentsTmp, err := s.writeTemp(ctx, AssignmentsFile, AssignmentColumns, assignments)
	if err != nil {
		return err
	}
	defer os.Remove(assignmentsTmp)

	yieldsTmp, err := s.writeTemp(ctx, YieldsFile, YieldColumns, yields)
	if err != nil {
		return err
	}
	defer os.Remove(yieldsTmp)

	if err := ctx.Err(); err != nil {
		return err
	}

	assignmentsPath := filepath.Join(s.dir, AssignmentsFile)
	if err := os.Rename(assignmentsTmp, assignmentsPath); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", AssignmentsFile, err)
	}
	if err := os.Rename(yieldsTmp, filepath.Join(s.dir, YieldsFile)); err != nil {
		_ = os.Remove(assignmentsPath)
		return fmt.Errorf("failed to move %s into place: %w", YieldsFile, err)
	}
	return nil
}

// writeTemp writes one CSV file next to its final location and returns the
// temporary path. The caller owns removal.
func (s *CSVReportSink) writeTemp(ctx context.Context, name string, header []string, rows [][]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}

	fail := func(format string, err error) (string, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf(format, name, err)
	}

	if err := tmp.Chmod(0644); err != nil {
		return fail("failed to set mode on %s: %w", err)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return fail("failed to write %s header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fail("failed to write %s: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	return tmp.Name(), nil
}
