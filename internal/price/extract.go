// Package price turns located price tables into canonical price records.
package price

import (
	"strings"

	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/document"
	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/table"
	"github.com/InhaCentury20/pass/internal/units"
)

// rowState is the carry-forward accumulator of the row fold.
type rowState struct {
	channel string
	class   string
}

// FromDocument extracts price records from every price table in doc.
func FromDocument(doc *document.Document) []model.PriceRecord {
	return FromCandidates(table.Locate(doc))
}

// FromCandidates extracts price records from located price tables. Tables
// without a unit-type column are skipped with a warning.
func FromCandidates(cands []table.Candidate) []model.PriceRecord {
	var out []model.PriceRecord
	for _, c := range cands {
		schema := table.AnalyzeHeader(table.ResolveHeader(c.Table.Rows))
		if !schema.HasTypeColumn() {
			zap.L().Warn("price: no unit type column, skipping table",
				zap.Int("page", c.Page.Number),
				zap.Strings("header", c.Table.Rows[0]),
			)
			continue
		}
		divisor := units.DetectUnitDivisor(c.Page.Text())
		out = append(out, Extract(c.Table.Rows, schema, divisor, c.Context)...)
	}
	return out
}

// Extract folds over the data rows of a table and emits one record per row
// and price pair that carries a deposit or a rent. context is the channel
// named above the table.
func Extract(rows [][]string, schema table.Schema, divisor float64, context string) []model.PriceRecord {
	if !schema.HasTypeColumn() || len(rows) == 0 {
		return nil
	}

	start := 1
	if table.SplitHeader(rows) {
		start = 2
	}

	st := rowState{}
	if context != model.ChannelUnknown {
		st.channel = context
	}

	var out []model.PriceRecord
	for _, raw := range rows[min(start, len(rows)):] {
		var recs []model.PriceRecord
		st, recs = foldRow(st, raw, schema, divisor)
		out = append(out, recs...)
	}
	return out
}

func foldRow(st rowState, raw []string, schema table.Schema, divisor float64) (rowState, []model.PriceRecord) {
	row := make([]string, len(raw))
	for i, c := range raw {
		row[i] = table.CleanText(c)
	}
	if len(row) > 0 {
		first := strings.ReplaceAll(row[0], " ", "")
		if strings.Contains(first, "합계") || strings.Contains(first, "소계") {
			return st, nil
		}
	}

	text := strings.Join(row, " ")
	switch {
	case strings.Contains(text, "특별"):
		st.channel = model.ChannelSpecial
	case strings.Contains(text, "일반"):
		st.channel = model.ChannelGeneral
	}

	unitType := cell(row, schema.TypeColumn)
	if unitType == "" {
		return st, nil
	}

	parts := make([]string, 0, len(schema.SupplyColumns))
	for _, idx := range schema.SupplyColumns {
		parts = append(parts, cell(row, idx))
	}
	if supply := strings.Join(parts, " "); strings.TrimSpace(supply) != "" {
		if !isChannelLabel(supply) {
			st.class = Classify(supply)
		}
	}

	var out []model.PriceRecord
	for _, p := range schema.Pairs {
		deposit := units.ToNumeric(cell(row, p.Deposit), divisor)
		rent := units.ToNumeric(cell(row, p.Rent), divisor)
		if deposit == nil && rent == nil {
			continue
		}
		if strings.Contains(st.class, "공급") {
			// an unresolved header word, not a tenant class
			continue
		}
		out = append(out, model.PriceRecord{
			Channel:      st.channel,
			Class:        st.class,
			UnitType:     unitType,
			Deposit:      deposit,
			Rent:         rent,
			DepositRatio: p.Ratio,
		})
	}
	return st, out
}

// Classify maps a category cell to a canonical tenant class, or returns it
// unchanged when it names none.
func Classify(supply string) string {
	compact := strings.ReplaceAll(supply, " ", "")
	switch {
	case containsAny(compact, "청년또는신혼부부", "청년신혼부부", "청년⦁신혼부부"):
		return model.ClassYouthOrNewlywed
	case strings.Contains(compact, model.ClassYouth):
		return model.ClassYouth
	case strings.Contains(compact, model.ClassNewlywed):
		return model.ClassNewlywed
	default:
		return supply
	}
}

// isChannelLabel reports whether a category cell only names the supply
// channel. Such cells set the channel and leave the tenant class alone.
func isChannelLabel(supply string) bool {
	compact := strings.ReplaceAll(supply, " ", "")
	return compact == model.ChannelSpecial || compact == model.ChannelGeneral
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
