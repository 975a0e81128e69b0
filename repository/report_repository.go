package repository

import (
	"context"

	"facility-allocator/domain"
)

// BatchSource produces a fully materialized batch of allocation inputs.
type BatchSource interface {
	LoadBatch(ctx context.Context) (domain.Batch, error)
}

// ReportSink persists the output record sets of one allocation pass.
type ReportSink interface {
	SaveReport(ctx context.Context, report domain.Report) error
}
