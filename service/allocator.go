package service

import (
	"github.com/rs/zerolog"

	"facility-allocator/domain"
)

// Allocator runs the greedy maximize-yield pass over a batch of loans.
type Allocator struct {
	policy UncoveredPolicy
	log    zerolog.Logger
}

// NewAllocator creates an Allocator. An unknown policy falls back to
// DefaultUncoveredPolicy.
func NewAllocator(policy UncoveredPolicy, log zerolog.Logger) *Allocator {
	if !policy.Valid() {
		policy = DefaultUncoveredPolicy
	}
	return &Allocator{
		policy: policy,
		log:    log.With().Str("component", "allocator").Logger(),
	}
}

func (a *Allocator) Policy() UncoveredPolicy {
	return a.policy
}

// ledgerEntry is the allocator's private, mutable view of one facility.
type ledgerEntry struct {
	facility  domain.Facility
	remaining float64
}

// Allocate places each loan, in input order, on the eligible facility with
// the strictly greatest positive expected yield. Ties keep the earlier
// facility. Loans with no such facility are skipped.
//
// The facilities slice is not modified; capacity is tracked on a private
// copy and reported back through Allocation.Remaining.
func (a *Allocator) Allocate(
	loans []domain.Loan,
	facilities []domain.Facility,
	index EligibilityIndex,
) domain.Allocation {

	ledger := make([]ledgerEntry, len(facilities))
	for i, f := range facilities {
		ledger[i] = ledgerEntry{facility: f, remaining: f.Amount}
	}

	assignments := make([]domain.Assignment, 0, len(loans))
	yields := make([]domain.FacilityYield, 0)
	yieldPos := make(map[string]int)

	for _, loan := range loans {
		winner := -1
		best := 0.0

		for i := range ledger {
			entry := &ledger[i]
			if !a.eligible(entry, loan, index) {
				continue
			}

			y := ExpectedYield(loan, entry.facility)
			if y > best {
				best = y
				winner = i
			}
		}

		if winner < 0 {
			a.log.Debug().
				Str("loan_id", loan.ID).
				Msg("No facility with positive yield, loan left unassigned")
			continue
		}

		entry := &ledger[winner]
		entry.remaining -= loan.Amount

		assignments = append(assignments, domain.Assignment{
			LoanID:     loan.ID,
			FacilityID: entry.facility.ID,
			Yield:      best,
		})

		pos, ok := yieldPos[entry.facility.ID]
		if !ok {
			pos = len(yields)
			yieldPos[entry.facility.ID] = pos
			yields = append(yields, domain.FacilityYield{FacilityID: entry.facility.ID})
		}
		yields[pos].Total += best
		yields[pos].Loans++

		a.log.Debug().
			Str("loan_id", loan.ID).
			Str("facility_id", entry.facility.ID).
			Float64("yield", best).
			Float64("remaining", entry.remaining).
			Msg("Loan assigned")
	}

	remaining := make(map[string]float64, len(ledger))
	for _, entry := range ledger {
		remaining[entry.facility.ID] = entry.remaining
	}

	return domain.Allocation{
		Assignments: assignments,
		Yields:      yields,
		Remaining:   remaining,
		Loans:       len(loans),
	}
}

func (a *Allocator) eligible(entry *ledgerEntry, loan domain.Loan, index EligibilityIndex) bool {
	if entry.remaining <= loan.Amount {
		return false
	}

	e, ok := index.Lookup(entry.facility.ID)
	if !ok {
		return a.policy == UncoveredAllow
	}
	return e.Accepts(loan)
}
