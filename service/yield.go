package service

import "facility-allocator/domain"

// ExpectedYield is the risk-adjusted profit of funding loan from facility:
// interest expected on repayment, minus expected loss on default, minus the
// facility's cost of capital on the loan amount.
func ExpectedYield(loan domain.Loan, facility domain.Facility) float64 {
	p := loan.DefaultLikelihood
	a := loan.Amount

	return (1-p)*(loan.InterestRate*a) - p*a - facility.InterestRate*a
}
