package service

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-allocator/domain"
)

func newTestAllocator(policy UncoveredPolicy) *Allocator {
	return NewAllocator(policy, zerolog.Nop())
}

func singleFacilityBatch() ([]domain.Facility, EligibilityIndex) {
	facilities := []domain.Facility{{ID: "1", BankID: "1", Amount: 1000, InterestRate: 0.05}}
	index := BuildEligibility([]domain.Covenant{
		{FacilityID: "1", BankID: "1", MaxDefaultLikelihood: 0.5, BannedState: "TX"},
	})
	return facilities, index
}

func TestAllocate_NegativeYieldLeavesLoanUnassigned(t *testing.T) {
	facilities, index := singleFacilityBatch()
	loans := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 0.10, DefaultLikelihood: 0.1, State: "CA"}}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	assert.Empty(t, alloc.Assignments)
	assert.Empty(t, alloc.Yields)
	assert.Equal(t, 1000.0, alloc.Remaining["1"])
}

func TestAllocate_PositiveYieldAssignsAndConsumesCapacity(t *testing.T) {
	facilities, index := singleFacilityBatch()
	loans := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 0.20, DefaultLikelihood: 0.1, State: "CA"}}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, "1", alloc.Assignments[0].LoanID)
	assert.Equal(t, "1", alloc.Assignments[0].FacilityID)
	assert.InDelta(t, 15, alloc.Assignments[0].Yield, 1e-9)
	assert.Equal(t, 500.0, alloc.Remaining["1"])

	require.Len(t, alloc.Yields, 1)
	assert.Equal(t, "1", alloc.Yields[0].FacilityID)
	assert.InDelta(t, 15, alloc.Yields[0].Total, 1e-9)
	assert.Equal(t, 1, alloc.Yields[0].Loans)
}

func TestAllocate_BannedStateNeverMatches(t *testing.T) {
	facilities, index := singleFacilityBatch()
	loans := []domain.Loan{{ID: "1", Amount: 10, InterestRate: 0.90, DefaultLikelihood: 0, State: "TX"}}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	assert.Empty(t, alloc.Assignments)
	assert.Equal(t, 1000.0, alloc.Remaining["1"])
}

func TestAllocate_DefaultLikelihoodThresholdIsInclusive(t *testing.T) {
	facilities, index := singleFacilityBatch()
	loans := []domain.Loan{
		{ID: "at", Amount: 100, InterestRate: 3.0, DefaultLikelihood: 0.5, State: "CA"},
		{ID: "above", Amount: 100, InterestRate: 3.0, DefaultLikelihood: 0.51, State: "CA"},
	}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, "at", alloc.Assignments[0].LoanID)
}

func TestAllocate_CapacityMustStrictlyExceedLoan(t *testing.T) {
	facilities := []domain.Facility{{ID: "1", Amount: 500, InterestRate: 0.05}}
	index := BuildEligibility([]domain.Covenant{{FacilityID: "1", MaxDefaultLikelihood: 1, BannedState: "TX"}})
	loans := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 0.20, DefaultLikelihood: 0.1, State: "CA"}}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	assert.Empty(t, alloc.Assignments)
}

func TestAllocate_ConsumedCapacityAffectsLaterLoans(t *testing.T) {
	facilities := []domain.Facility{
		{ID: "cheap", Amount: 1000, InterestRate: 0.01},
		{ID: "dear", Amount: 1000, InterestRate: 0.05},
	}
	index := BuildEligibility([]domain.Covenant{
		{FacilityID: "cheap", MaxDefaultLikelihood: 1, BannedState: "TX"},
		{FacilityID: "dear", MaxDefaultLikelihood: 1, BannedState: "TX"},
	})
	loans := []domain.Loan{
		{ID: "a", Amount: 600, InterestRate: 0.20, DefaultLikelihood: 0.1, State: "CA"},
		{ID: "b", Amount: 600, InterestRate: 0.20, DefaultLikelihood: 0.1, State: "CA"},
	}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	require.Len(t, alloc.Assignments, 2)
	assert.Equal(t, "cheap", alloc.Assignments[0].FacilityID)
	assert.Equal(t, "dear", alloc.Assignments[1].FacilityID)
	assert.Equal(t, 400.0, alloc.Remaining["cheap"])
	assert.Equal(t, 400.0, alloc.Remaining["dear"])

	// 0.9*120 - 60 - 6 and 0.9*120 - 60 - 30
	assert.InDelta(t, 42, alloc.Assignments[0].Yield, 1e-9)
	assert.InDelta(t, 18, alloc.Assignments[1].Yield, 1e-9)
}

func TestAllocate_PicksHighestYield(t *testing.T) {
	facilities := []domain.Facility{
		{ID: "1", Amount: 1000, InterestRate: 0.05},
		{ID: "2", Amount: 1000, InterestRate: 0.01},
		{ID: "3", Amount: 1000, InterestRate: 0.03},
	}
	index := BuildEligibility([]domain.Covenant{
		{FacilityID: "1", MaxDefaultLikelihood: 1, BannedState: "TX"},
		{FacilityID: "2", MaxDefaultLikelihood: 1, BannedState: "TX"},
		{FacilityID: "3", MaxDefaultLikelihood: 1, BannedState: "TX"},
	})
	loans := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 0.20, DefaultLikelihood: 0.1, State: "CA"}}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, "2", alloc.Assignments[0].FacilityID)
}

func TestAllocate_TieKeepsFirstFacility(t *testing.T) {
	facilities := []domain.Facility{
		{ID: "first", Amount: 1000, InterestRate: 0.05},
		{ID: "second", Amount: 1000, InterestRate: 0.05},
	}
	index := BuildEligibility([]domain.Covenant{
		{FacilityID: "first", MaxDefaultLikelihood: 0.5, BannedState: "TX"},
		{FacilityID: "second", MaxDefaultLikelihood: 0.5, BannedState: "TX"},
	})
	loans := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 0.20, DefaultLikelihood: 0.1, State: "CA"}}

	alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, "first", alloc.Assignments[0].FacilityID)
	assert.Equal(t, 1000.0, alloc.Remaining["second"])
}

func TestAllocate_UncoveredFacilityPolicy(t *testing.T) {
	facilities := []domain.Facility{{ID: "bare", Amount: 1000, InterestRate: 0.05}}
	loans := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 0.20, DefaultLikelihood: 0.9, State: "TX"}}
	index := BuildEligibility(nil)

	t.Run("exclude", func(t *testing.T) {
		alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)
		assert.Empty(t, alloc.Assignments)
	})

	t.Run("allow", func(t *testing.T) {
		high := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 10, DefaultLikelihood: 0.9, State: "TX"}}
		alloc := newTestAllocator(UncoveredAllow).Allocate(high, facilities, index)
		require.Len(t, alloc.Assignments, 1)
		assert.Equal(t, "bare", alloc.Assignments[0].FacilityID)
	})

	t.Run("allow still requires positive yield", func(t *testing.T) {
		alloc := newTestAllocator(UncoveredAllow).Allocate(loans, facilities, index)
		assert.Empty(t, alloc.Assignments)
	})
}

func TestNewAllocator_UnknownPolicyFallsBack(t *testing.T) {
	a := NewAllocator(UncoveredPolicy("sometimes"), zerolog.Nop())
	assert.Equal(t, DefaultUncoveredPolicy, a.Policy())
}

func TestAllocate_DoesNotMutateInput(t *testing.T) {
	facilities, index := singleFacilityBatch()
	loans := []domain.Loan{{ID: "1", Amount: 500, InterestRate: 0.20, DefaultLikelihood: 0.1, State: "CA"}}

	newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

	assert.Equal(t, 1000.0, facilities[0].Amount)
}

func TestAllocate_Deterministic(t *testing.T) {
	loans, facilities, covenants := randomBatch(rand.New(rand.NewSource(7)), 200, 12)
	index := BuildEligibility(covenants)
	a := newTestAllocator(UncoveredExclude)

	first := a.Allocate(loans, facilities, index)
	second := a.Allocate(loans, facilities, index)

	assert.Equal(t, first, second)
}

func TestAllocate_Invariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			loans, facilities, covenants := randomBatch(rng, 150, 8)
			index := BuildEligibility(covenants)

			alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

			loanByID := make(map[string]domain.Loan, len(loans))
			for _, l := range loans {
				loanByID[l.ID] = l
			}
			facilityByID := make(map[string]domain.Facility, len(facilities))
			for _, f := range facilities {
				facilityByID[f.ID] = f
			}

			seen := make(map[string]bool)
			assigned := make(map[string]float64)
			yieldSum := make(map[string]float64)
			for _, a := range alloc.Assignments {
				require.False(t, seen[a.LoanID], "loan %s assigned twice", a.LoanID)
				seen[a.LoanID] = true

				loan := loanByID[a.LoanID]
				facility := facilityByID[a.FacilityID]
				assert.Greater(t, a.Yield, 0.0)
				assert.InDelta(t, ExpectedYield(loan, facility), a.Yield, 1e-9)

				e, ok := index.Lookup(a.FacilityID)
				require.True(t, ok)
				assert.True(t, e.Accepts(loan))

				assigned[a.FacilityID] += loan.Amount
				yieldSum[a.FacilityID] += a.Yield
			}

			for _, f := range facilities {
				remaining := alloc.Remaining[f.ID]
				assert.InDelta(t, f.Amount-assigned[f.ID], remaining, 1e-6)
				assert.GreaterOrEqual(t, remaining, 0.0)
			}

			require.Len(t, alloc.Yields, len(yieldSum))
			for _, fy := range alloc.Yields {
				assert.InDelta(t, yieldSum[fy.FacilityID], fy.Total, 1e-6)
			}
		})
	}
}

func TestAllocate_AssignsExactlyWhenReplayFindsPositiveYield(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			loans, facilities, covenants := randomBatch(rng, 150, 8)
			// Coarse rates make equal-yield facilities common
			for i := range facilities {
				facilities[i].InterestRate = math.Round(facilities[i].InterestRate*100) / 100
			}
			index := BuildEligibility(covenants)

			alloc := newTestAllocator(UncoveredExclude).Allocate(loans, facilities, index)

			byLoan := make(map[string]domain.Assignment, len(alloc.Assignments))
			for _, a := range alloc.Assignments {
				byLoan[a.LoanID] = a
			}

			remaining := make([]float64, len(facilities))
			for i, f := range facilities {
				remaining[i] = f.Amount
			}

			for _, loan := range loans {
				winner, best := -1, 0.0
				for i, f := range facilities {
					e, ok := index.Lookup(f.ID)
					if !ok || remaining[i] <= loan.Amount || !e.Accepts(loan) {
						continue
					}
					if y := ExpectedYield(loan, f); y > best {
						winner, best = i, y
					}
				}

				a, assigned := byLoan[loan.ID]
				if winner < 0 {
					assert.False(t, assigned, "loan %s assigned without a positive eligible facility", loan.ID)
					continue
				}

				require.True(t, assigned, "loan %s left unassigned although facility %s yields %f",
					loan.ID, facilities[winner].ID, best)
				assert.Equal(t, facilities[winner].ID, a.FacilityID, "loan %s", loan.ID)
				assert.Equal(t, best, a.Yield)
				remaining[winner] -= loan.Amount
			}

			for i, f := range facilities {
				assert.Equal(t, remaining[i], alloc.Remaining[f.ID])
			}
		})
	}
}

func randomBatch(rng *rand.Rand, loanCount, facilityCount int) ([]domain.Loan, []domain.Facility, []domain.Covenant) {
	states := []string{"CA", "TX", "NY", "FL", "WA"}

	facilities := make([]domain.Facility, 0, facilityCount)
	covenants := make([]domain.Covenant, 0, facilityCount*2)
	for i := 0; i < facilityCount; i++ {
		id := fmt.Sprintf("%d", i+1)
		facilities = append(facilities, domain.Facility{
			ID:           id,
			BankID:       "1",
			Amount:       float64(10000 + rng.Intn(90000)),
			InterestRate: 0.01 + rng.Float64()*0.05,
		})
		for c := 0; c < 1+rng.Intn(2); c++ {
			covenants = append(covenants, domain.Covenant{
				FacilityID:           id,
				MaxDefaultLikelihood: rng.Float64(),
				BannedState:          states[rng.Intn(len(states))],
			})
		}
	}

	loans := make([]domain.Loan, 0, loanCount)
	for i := 0; i < loanCount; i++ {
		loans = append(loans, domain.Loan{
			ID:                fmt.Sprintf("%d", i+1),
			Amount:            float64(1000 + rng.Intn(20000)),
			InterestRate:      0.05 + rng.Float64()*0.4,
			DefaultLikelihood: rng.Float64() * 0.3,
			State:             states[rng.Intn(len(states))],
		})
	}

	return loans, facilities, covenants
}
