package model

import "strings"

// Supply channel labels as they appear in notices.
const (
	ChannelSpecial = "특별공급"
	ChannelGeneral = "일반공급"
	ChannelUnknown = "알수없음"
)

// Canonical tenant-class labels.
const (
	ClassYouth           = "청년"
	ClassNewlywed        = "신혼부부"
	ClassYouthOrNewlywed = "청년 또는 신혼부부"
)

// RatioUnknown is the deposit-ratio label used when a header carries no NN% marker.
const RatioUnknown = "N/A"

// Tier is a predicted popularity class for a price record.
type Tier int

const (
	TierLow      Tier = 0
	TierModerate Tier = 1
	TierHigh     Tier = 2
)

// String returns a short English label for logs.
func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierModerate:
		return "moderate"
	default:
		return "low"
	}
}

// PriceRecord is one (unit type × supply channel) pricing entry. Amounts are in
// units of 10,000 KRW. The JSON keys are the column labels consumed by the API.
type PriceRecord struct {
	Channel      string   `json:"공급유형1"`
	Class        string   `json:"공급유형2"`
	UnitType     string   `json:"타입"`
	Deposit      *float64 `json:"보증금(만원)"`
	Rent         *float64 `json:"임대료(만원)"`
	DepositRatio string   `json:"보증금%"`
	Predicted    *Tier    `json:"예측경쟁률,omitempty"`
}

// CoarseChannel collapses the fine-grained channel label to "일반" or "특별".
func (r PriceRecord) CoarseChannel() string {
	if strings.Contains(r.Channel, "일반") {
		return "일반"
	}
	return "특별"
}

// GroupKey identifies the classifier group: unit type plus coarse channel.
func (r PriceRecord) GroupKey() string {
	return r.UnitType + "_" + r.CoarseChannel()
}

// DepositValue returns the deposit or 0 when absent.
func (r PriceRecord) DepositValue() float64 {
	if r.Deposit == nil {
		return 0
	}
	return *r.Deposit
}

// RentValue returns the rent or 0 when absent.
func (r PriceRecord) RentValue() float64 {
	if r.Rent == nil {
		return 0
	}
	return *r.Rent
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
