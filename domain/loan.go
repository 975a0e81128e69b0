package domain

// Loan is a funding request waiting to be placed on a facility.
type Loan struct {
	ID                string  `json:"id"`
	Amount            float64 `json:"amount"`
	InterestRate      float64 `json:"interest_rate"`
	DefaultLikelihood float64 `json:"default_likelihood"`
	State             string  `json:"state"`
}

// Facility is a pool of capital a bank lends loans out of.
type Facility struct {
	ID           string  `json:"id"`
	BankID       string  `json:"bank_id"`
	Amount       float64 `json:"amount"`
	InterestRate float64 `json:"interest_rate"`
}

// Covenant restricts the loans a facility may accept.
type Covenant struct {
	FacilityID           string  `json:"facility_id"`
	BankID               string  `json:"bank_id"`
	MaxDefaultLikelihood float64 `json:"max_default_likelihood"`
	BannedState          string  `json:"banned_state"`
}

type Bank struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Batch is one fully materialized set of inputs for an allocation pass.
// Banks are carried along but play no part in allocation.
type Batch struct {
	Facilities []Facility `json:"facilities"`
	Covenants  []Covenant `json:"covenants"`
	Loans      []Loan     `json:"loans"`
	Banks      []Bank     `json:"banks,omitempty"`
}
