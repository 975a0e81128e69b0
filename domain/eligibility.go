package domain

// Eligibility is the constraint set derived from all covenants of one facility.
type Eligibility struct {
	BannedStates         map[string]struct{}
	MaxDefaultLikelihood float64
}

// NewEligibility starts a record from a single covenant.
func NewEligibility(c Covenant) *Eligibility {
	return &Eligibility{
		BannedStates:         map[string]struct{}{c.BannedState: {}},
		MaxDefaultLikelihood: c.MaxDefaultLikelihood,
	}
}

// Merge folds another covenant into the record: bans accumulate and the
// threshold keeps the largest value seen.
func (e *Eligibility) Merge(c Covenant) {
	e.BannedStates[c.BannedState] = struct{}{}
	if c.MaxDefaultLikelihood > e.MaxDefaultLikelihood {
		e.MaxDefaultLikelihood = c.MaxDefaultLikelihood
	}
}

func (e Eligibility) Bans(state string) bool {
	_, banned := e.BannedStates[state]
	return banned
}

func (e Eligibility) Tolerates(defaultLikelihood float64) bool {
	return e.MaxDefaultLikelihood >= defaultLikelihood
}

// Accepts reports whether the loan passes both covenant checks.
func (e Eligibility) Accepts(loan Loan) bool {
	return !e.Bans(loan.State) && e.Tolerates(loan.DefaultLikelihood)
}
