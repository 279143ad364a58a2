package price

import "github.com/InhaCentury20/pass/internal/model"

// Summary holds the aggregate price columns of an announcement, in units of
// 10,000 KRW.
type Summary struct {
	MinDeposit  float64
	MaxDeposit  float64
	MonthlyRent float64
}

// Summarize aggregates table-path records: deposit range over present
// deposits and the mean of present rents. Missing values give 0.
func Summarize(records []model.PriceRecord) Summary {
	var s Summary
	first := true
	var rentSum float64
	var rentN int
	for _, r := range records {
		if r.Deposit != nil {
			d := *r.Deposit
			if first || d < s.MinDeposit {
				s.MinDeposit = d
			}
			if first || d > s.MaxDeposit {
				s.MaxDeposit = d
			}
			first = false
		}
		if r.Rent != nil {
			rentSum += *r.Rent
			rentN++
		}
	}
	if rentN > 0 {
		s.MonthlyRent = rentSum / float64(rentN)
	}
	return s
}

// SummarizeLowestRent aggregates records parsed from board text, where the
// monthly rent is the lowest non-zero rent.
func SummarizeLowestRent(records []model.PriceRecord) Summary {
	s := Summarize(records)
	s.MonthlyRent = 0
	for _, r := range records {
		rent := r.RentValue()
		if rent > 0 && (s.MonthlyRent == 0 || rent < s.MonthlyRent) {
			s.MonthlyRent = rent
		}
	}
	return s
}

// Fallback returns the stand-in price list used when a document yields no
// table rows, with its summary.
func Fallback() ([]model.PriceRecord, Summary) {
	records := []model.PriceRecord{
		{
			Channel:      model.ChannelGeneral,
			Class:        model.ClassYouth,
			UnitType:     "23.68㎡ (23A)",
			Deposit:      model.Float(5500),
			Rent:         model.Float(45),
			DepositRatio: model.RatioUnknown,
		},
		{
			Channel:      model.ChannelGeneral,
			Class:        model.ClassNewlywed,
			UnitType:     "23.68㎡ (23A)",
			Deposit:      model.Float(6500),
			Rent:         model.Float(45),
			DepositRatio: model.RatioUnknown,
		},
	}
	return records, Summary{MinDeposit: 5500, MaxDeposit: 6500, MonthlyRent: 45}
}
