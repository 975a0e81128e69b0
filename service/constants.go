package service

// UncoveredPolicy decides how facilities without any covenant are treated.
type UncoveredPolicy string

const (
	// UncoveredExclude treats a facility with no covenant as having no known
	// risk tolerance: it never receives a loan.
	UncoveredExclude UncoveredPolicy = "exclude"
	// UncoveredAllow treats a facility with no covenant as unrestricted.
	UncoveredAllow UncoveredPolicy = "allow"

	DefaultUncoveredPolicy = UncoveredExclude

	cacheKeyPrefix = "allocation:report:"
)

// Valid reports whether p is a known policy.
func (p UncoveredPolicy) Valid() bool {
	return p == UncoveredExclude || p == UncoveredAllow
}
