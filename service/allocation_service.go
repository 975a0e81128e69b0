package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"facility-allocator/domain"
	"facility-allocator/repository"
)

var ErrInvalidBatch = errors.New("invalid batch")

// AllocationService runs allocation passes and memoizes their reports.
type AllocationService struct {
	allocator *Allocator
	cache     repository.CacheRepository
	log       zerolog.Logger
}

// NewAllocationService creates a new AllocationService.
func NewAllocationService(
	allocator *Allocator,
	cache repository.CacheRepository,
	log zerolog.Logger,
) *AllocationService {
	return &AllocationService{
		allocator: allocator,
		cache:     cache,
		log:       log.With().Str("component", "allocation_service").Logger(),
	}
}

// Allocate validates the batch, then builds the eligibility index, runs the
// allocator and assembles the report. Identical batches are served from the
// cache since a pass is fully determined by its inputs.
func (s *AllocationService) Allocate(ctx context.Context, batch domain.Batch) (domain.Report, error) {
	if err := ValidateBatch(batch); err != nil {
		return domain.Report{}, err
	}

	key, keyErr := s.batchKey(batch)
	if keyErr == nil {
		if report, ok := s.cached(ctx, key); ok {
			s.log.Debug().Str("key", key).Msg("Serving allocation report from cache")
			return report, nil
		}
	} else {
		s.log.Warn().Err(keyErr).Msg("Failed to compute cache key")
	}

	index := BuildEligibility(batch.Covenants)
	alloc := s.allocator.Allocate(batch.Loans, batch.Facilities, index)
	report := AssembleReport(alloc)

	s.log.Info().
		Int("loans", report.Summary.Loans).
		Int("assigned", report.Summary.Assigned).
		Int("unassigned", report.Summary.Unassigned).
		Int("facilities_used", report.Summary.Facilities).
		Int("covered_facilities", index.Len()).
		Float64("total_expected_yield", report.Summary.TotalExpectedYield).
		Str("uncovered_policy", string(s.allocator.Policy())).
		Msg("Allocation pass complete")

	// Caching is not critical to the run
	if keyErr == nil {
		if err := s.store(ctx, key, report); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache allocation report")
		}
	}

	return report, nil
}

// Run loads a batch from source, allocates it and hands the report to sink.
// A load or save failure aborts the run.
func (s *AllocationService) Run(
	ctx context.Context,
	source repository.BatchSource,
	sink repository.ReportSink,
) (domain.Report, error) {
	batch, err := source.LoadBatch(ctx)
	if err != nil {
		return domain.Report{}, fmt.Errorf("failed to load batch: %w", err)
	}

	s.log.Info().
		Int("facilities", len(batch.Facilities)).
		Int("covenants", len(batch.Covenants)).
		Int("loans", len(batch.Loans)).
		Int("banks", len(batch.Banks)).
		Msg("Batch loaded")

	report, err := s.Allocate(ctx, batch)
	if err != nil {
		return domain.Report{}, err
	}

	if err := sink.SaveReport(ctx, report); err != nil {
		return domain.Report{}, fmt.Errorf("failed to save report: %w", err)
	}
	return report, nil
}

// ValidateBatch rejects records the allocator cannot reason about.
func ValidateBatch(batch domain.Batch) error {
	for i, f := range batch.Facilities {
		if f.ID == "" {
			return fmt.Errorf("%w: facility %d has no id", ErrInvalidBatch, i)
		}
		if !finite(f.Amount) || !finite(f.InterestRate) {
			return fmt.Errorf("%w: facility %s has non-finite values", ErrInvalidBatch, f.ID)
		}
	}
	for i, c := range batch.Covenants {
		if c.FacilityID == "" {
			return fmt.Errorf("%w: covenant %d has no facility id", ErrInvalidBatch, i)
		}
		if !finite(c.MaxDefaultLikelihood) {
			return fmt.Errorf("%w: covenant %d has non-finite threshold", ErrInvalidBatch, i)
		}
	}
	for i, l := range batch.Loans {
		if l.ID == "" {
			return fmt.Errorf("%w: loan %d has no id", ErrInvalidBatch, i)
		}
		if !finite(l.Amount) || l.Amount < 0 {
			return fmt.Errorf("%w: loan %s has invalid amount", ErrInvalidBatch, l.ID)
		}
		if !finite(l.InterestRate) {
			return fmt.Errorf("%w: loan %s has invalid interest rate", ErrInvalidBatch, l.ID)
		}
		if !finite(l.DefaultLikelihood) || l.DefaultLikelihood < 0 || l.DefaultLikelihood > 1 {
			return fmt.Errorf("%w: loan %s default likelihood outside [0,1]", ErrInvalidBatch, l.ID)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// batchKey digests the batch together with the policy it will run under.
func (s *AllocationService) batchKey(batch domain.Batch) (string, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return "", err
	}

	d := xxhash.New()
	_, _ = d.WriteString(string(s.allocator.Policy()))
	_, _ = d.Write(payload)

	return fmt.Sprintf("%s%016x", cacheKeyPrefix, d.Sum64()), nil
}

func (s *AllocationService) cached(ctx context.Context, key string) (domain.Report, bool) {
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return domain.Report{}, false
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cached report")
		return domain.Report{}, false
	}
	return report, true
}

func (s *AllocationService) store(ctx context.Context, key string, report domain.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, string(payload))
}
