package service

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"facility-allocator/domain"
)

// AssembleReport reshapes an allocation into the two output record sets.
// Assignment records keep allocation order; yield records are sorted by
// facility id and carry the total rounded to the nearest integer.
func AssembleReport(alloc domain.Allocation) domain.Report {
	assignments := make([]domain.AssignmentRecord, 0, len(alloc.Assignments))
	for _, a := range alloc.Assignments {
		assignments = append(assignments, domain.AssignmentRecord{
			LoanID:     a.LoanID,
			FacilityID: a.FacilityID,
		})
	}

	totals := make([]float64, 0, len(alloc.Yields))
	yields := make([]domain.YieldRecord, 0, len(alloc.Yields))
	for _, fy := range alloc.Yields {
		totals = append(totals, fy.Total)
		yields = append(yields, domain.YieldRecord{
			FacilityID:    fy.FacilityID,
			ExpectedYield: int64(math.Round(fy.Total)),
		})
	}

	sort.SliceStable(yields, func(i, j int) bool {
		return facilityIDLess(yields[i].FacilityID, yields[j].FacilityID)
	})

	return domain.Report{
		Assignments: assignments,
		Yields:      yields,
		Summary: domain.Summary{
			Loans:              alloc.Loans,
			Assigned:           len(assignments),
			Unassigned:         alloc.Loans - len(assignments),
			Facilities:         len(yields),
			TotalExpectedYield: floats.Sum(totals),
		},
	}
}

// facilityIDLess orders integer ids numerically and everything else
// lexicographically, integers first.
func facilityIDLess(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)

	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}
