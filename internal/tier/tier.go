// Package tier predicts a popularity tier per price group and copies it to
// every record of the group.
package tier

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/model"
)

const (
	// pyeong is the number of square metres in one pyeong.
	pyeong = 3.3058
	// rentMultiplier converts monthly rent into a deposit equivalent.
	rentMultiplier = 200
	// saleRatio converts a lease deposit into a sale-price equivalent.
	saleRatio = 0.6

	highThreshold     = 0.20
	moderateThreshold = 0.40
)

// DefaultRentalPrograms are the housing programs priced by deposit plus
// converted rent rather than by deposit alone.
var DefaultRentalPrograms = []string{"청년안심주택"}

var areaRe = regexp.MustCompile(`(\d+(\.\d+)?)`)

// Features is one classifier input row.
type Features struct {
	SalePrice     float64 `json:"LTTOT_TOP_AMOUNT"`
	PricePerPyung float64 `json:"PRICE_PER_PYUNG"`
	TotalUnits    int     `json:"TOTAL_UNIT_CNT"`
	AreaSize      float64 `json:"AREA_SIZE"`
	Organization  string  `json:"CNSTRCT_ENTRPS_NM"`
	Region        string  `json:"REGION"`
	Year          int     `json:"YEAR"`
	Month         int     `json:"MONTH"`
}

// Probabilities is the class distribution for tiers 0, 1 and 2.
type Probabilities [3]float64

// Classifier scores a batch of feature rows, one distribution per row.
type Classifier interface {
	PredictProba(ctx context.Context, rows []Features) ([]Probabilities, error)
}

// Context is the announcement-level input shared by every row.
type Context struct {
	HousingType     string
	Organization    string
	Address         string
	TotalHouseholds int
	PostDate        *time.Time
}

// FromProbabilities applies the fixed decision thresholds.
func FromProbabilities(p Probabilities) model.Tier {
	switch {
	case p[2] > highThreshold:
		return model.TierHigh
	case p[1] > moderateThreshold:
		return model.TierModerate
	default:
		return model.TierLow
	}
}

// Area returns the leading number of a unit-type label, or 0.
func Area(unitType string) float64 {
	m := areaRe.FindString(unitType)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// Broadcaster runs the classifier once per announcement, with one row per
// price group.
type Broadcaster struct {
	classifier     Classifier
	rentalPrograms map[string]bool
	now            func() time.Time
}

// NewBroadcaster creates a Broadcaster. rentalPrograms defaults to
// DefaultRentalPrograms when empty.
func NewBroadcaster(c Classifier, rentalPrograms []string) *Broadcaster {
	if len(rentalPrograms) == 0 {
		rentalPrograms = DefaultRentalPrograms
	}
	set := make(map[string]bool, len(rentalPrograms))
	for _, p := range rentalPrograms {
		set[p] = true
	}
	return &Broadcaster{classifier: c, rentalPrograms: set, now: time.Now}
}

type member struct {
	index    int
	features Features
	deposit  float64
}

type group struct {
	key     string
	rep     member
	members []int
}

// Broadcast returns a copy of records with Predicted set on every record
// that has a positive area. Records sharing a group key always receive the
// same tier. The input slice is not modified.
func (b *Broadcaster) Broadcast(ctx context.Context, records []model.PriceRecord, ac Context) ([]model.PriceRecord, error) {
	out := make([]model.PriceRecord, len(records))
	copy(out, records)

	groups := b.group(records, ac)
	if len(groups) == 0 {
		return out, nil
	}
	if b.classifier == nil {
		return out, eris.New("tier: no classifier configured")
	}

	rows := make([]Features, len(groups))
	for i, g := range groups {
		rows[i] = g.rep.features
	}

	probs, err := b.classifier.PredictProba(ctx, rows)
	if err != nil {
		return out, eris.Wrap(err, "tier: predict")
	}
	if len(probs) != len(rows) {
		return out, eris.Errorf("tier: classifier returned %d rows for %d inputs", len(probs), len(rows))
	}

	for i, g := range groups {
		t := FromProbabilities(probs[i])
		for _, idx := range g.members {
			tt := t
			out[idx].Predicted = &tt
		}
		zap.L().Debug("tier: group classified",
			zap.String("group", g.key),
			zap.Int("members", len(g.members)),
			zap.Stringer("tier", t),
		)
	}
	return out, nil
}

// group builds one group per key in first-seen order. The representative is
// the member with the largest deposit; ties keep the earliest.
func (b *Broadcaster) group(records []model.PriceRecord, ac Context) []*group {
	year, month := b.period(ac.PostDate)
	region := "Unknown"
	if f := strings.Fields(ac.Address); len(f) > 0 {
		region = f[0]
	}

	var groups []*group
	byKey := make(map[string]*group)
	for i, r := range records {
		area := Area(r.UnitType)
		if area <= 0 {
			continue
		}
		deposit := r.DepositValue()
		sale := deposit
		if b.rentalPrograms[ac.HousingType] {
			sale = (deposit + r.RentValue()*rentMultiplier) / saleRatio
		}
		m := member{
			index:   i,
			deposit: deposit,
			features: Features{
				SalePrice:     sale,
				PricePerPyung: sale / (area / pyeong),
				TotalUnits:    ac.TotalHouseholds,
				AreaSize:      area,
				Organization:  ac.Organization,
				Region:        region,
				Year:          year,
				Month:         month,
			},
		}

		key := r.GroupKey()
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, rep: m}
			byKey[key] = g
			groups = append(groups, g)
		} else if m.deposit > g.rep.deposit {
			g.rep = m
		}
		g.members = append(g.members, i)
	}
	return groups
}

func (b *Broadcaster) period(postDate *time.Time) (int, int) {
	t := b.now()
	if postDate != nil && !postDate.IsZero() {
		t = *postDate
	}
	return t.Year(), int(t.Month())
}
