package repository

import (
	"context"

	"facility-allocator/domain"
)

// MemoryBatchSource serves a batch held in memory.
type MemoryBatchSource struct {
	batch domain.Batch
}

func NewMemoryBatchSource(batch domain.Batch) *MemoryBatchSource {
	return &MemoryBatchSource{batch: batch}
}

func (s *MemoryBatchSource) LoadBatch(_ context.Context) (domain.Batch, error) {
	return s.batch, nil
}

// MemoryReportSink keeps every saved report in memory.
type MemoryReportSink struct {
	reports []domain.Report
}

func NewMemoryReportSink() *MemoryReportSink {
	return &MemoryReportSink{
		reports: []domain.Report{},
	}
}

func (s *MemoryReportSink) SaveReport(_ context.Context, report domain.Report) error {
	s.reports = append(s.reports, report)
	return nil
}

func (s *MemoryReportSink) Reports() []domain.Report {
	return s.reports
}
