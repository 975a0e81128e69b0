package domain

// Assignment places one loan on one facility.
type Assignment struct {
	LoanID     string
	FacilityID string
	Yield      float64
}

// FacilityYield is the running expected-yield total of one facility.
type FacilityYield struct {
	FacilityID string
	Total      float64
	Loans      int
}

// Allocation is the in-memory outcome of one allocation pass.
type Allocation struct {
	Assignments []Assignment
	// Yields holds one entry per facility that received a loan, in the
	// order each facility first won.
	Yields []FacilityYield
	// Remaining is the capacity left on every facility after the pass.
	Remaining map[string]float64
	Loans     int
}

type AssignmentRecord struct {
	LoanID     string `json:"loan_id"`
	FacilityID string `json:"facility_id"`
}

type YieldRecord struct {
	FacilityID    string `json:"facility_id"`
	ExpectedYield int64  `json:"expected_yield"`
}

type Summary struct {
	Loans              int     `json:"loans"`
	Assigned           int     `json:"assigned"`
	Unassigned         int     `json:"unassigned"`
	Facilities         int     `json:"facilities_used"`
	TotalExpectedYield float64 `json:"total_expected_yield"`
}

// Report is what gets handed to the output collaborator.
type Report struct {
	Assignments []AssignmentRecord `json:"assignments"`
	Yields      []YieldRecord      `json:"yields"`
	Summary     Summary            `json:"summary"`
}
