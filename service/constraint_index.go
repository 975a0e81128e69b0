package service

import "facility-allocator/domain"

// EligibilityIndex maps a facility id to the constraints its covenants impose.
type EligibilityIndex struct {
	records map[string]*domain.Eligibility
}

// BuildEligibility folds covenants into one record per facility.
// Banned states are unioned and the default-likelihood threshold is the
// maximum across the facility's covenants, so covenant order is irrelevant.
func BuildEligibility(covenants []domain.Covenant) EligibilityIndex {
	records := make(map[string]*domain.Eligibility)

	for _, c := range covenants {
		if e, ok := records[c.FacilityID]; ok {
			e.Merge(c)
			continue
		}
		records[c.FacilityID] = domain.NewEligibility(c)
	}

	return EligibilityIndex{records: records}
}

// Lookup returns the facility's record and whether one exists.
func (idx EligibilityIndex) Lookup(facilityID string) (domain.Eligibility, bool) {
	e, ok := idx.records[facilityID]
	if !ok {
		return domain.Eligibility{}, false
	}
	return *e, true
}

func (idx EligibilityIndex) Len() int {
	return len(idx.records)
}
