package model

// Derived is the set of fields the engine writes back onto an announcement in
// a single atomic update.
type Derived struct {
	MinDeposit      float64
	MaxDeposit      float64
	MonthlyRent     float64
	Prices          []PriceRecord
	Eligibility     EligibilityProfile
	Region          *string
	AddressDetail   *string
	ApplicationEnd  *string
	TotalHouseholds int
	Schedule        Schedule
	ApplicationLink *string
	HomepageLink    *string
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
