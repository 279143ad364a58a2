package table

import (
	"regexp"
	"strings"

	"github.com/InhaCentury20/pass/internal/document"
	"github.com/InhaCentury20/pass/internal/model"
)

var percentRe = regexp.MustCompile(`(\d+)%`)

// Pair locates one deposit/rent column pair.
type Pair struct {
	Deposit int
	Rent    int
	Ratio   string
}

// Schema is the column layout of a price table.
type Schema struct {
	// TypeColumn is the unit-type column, or -1 when none was found.
	TypeColumn    int
	SupplyColumns []int
	Pairs         []Pair
}

// HasTypeColumn reports whether rows can be read with this schema.
func (s Schema) HasTypeColumn() bool {
	return s.TypeColumn >= 0
}

// SplitHeader reports whether the second row continues the header, which is
// the case when it names a deposit or a rent.
func SplitHeader(rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	text := document.JoinNonEmpty(rows[1])
	return strings.Contains(text, "보증금") || strings.Contains(text, "임대료")
}

// ResolveHeader returns one header label per column. A split header is merged
// by carrying the last non-empty first-row label forward and appending the
// second-row label to it.
func ResolveHeader(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	if !SplitHeader(rows) {
		return rows[0]
	}

	row0, row1 := rows[0], rows[1]
	merged := make([]string, len(row0))
	last := ""
	for i := range row0 {
		if v := CleanText(row0[i]); v != "" {
			last = v
		}
		var v1 string
		if i < len(row1) {
			v1 = CleanText(row1[i])
		}
		merged[i] = strings.TrimSpace(last + " " + v1)
	}
	return merged
}

// AnalyzeHeader derives the column schema of a resolved header.
func AnalyzeHeader(header []string) Schema {
	cleaned := make([]string, len(header))
	for i, h := range header {
		cleaned[i] = CleanText(h)
	}

	s := Schema{TypeColumn: -1}
	for i, text := range cleaned {
		if strings.Contains(text, "타입") || strings.Contains(text, "전용") {
			s.TypeColumn = i
			break
		}
	}

	limit := s.TypeColumn
	if limit < 0 {
		limit = len(cleaned)
	}
	for i := 0; i < limit; i++ {
		text := cleaned[i]
		switch {
		case strings.Contains(text, "호수"):
			// unit counts, never a category
		case containsAny(text, "유형", "대상", "계층"):
			s.SupplyColumns = append(s.SupplyColumns, i)
		case text == "" && len(s.SupplyColumns) > 0 && s.SupplyColumns[len(s.SupplyColumns)-1] == i-1:
			// merged continuation of the previous category column
			s.SupplyColumns = append(s.SupplyColumns, i)
		}
	}

	for i := 0; i < len(cleaned)-1; {
		if strings.Contains(cleaned[i], "보증금") && strings.Contains(cleaned[i+1], "임대료") {
			s.Pairs = append(s.Pairs, Pair{Deposit: i, Rent: i + 1, Ratio: ratioLabel(cleaned[i])})
			i += 2
			continue
		}
		i++
	}
	return s
}

// ratioLabel returns the first "NN%" in a deposit header, or "N/A".
func ratioLabel(cell string) string {
	if m := percentRe.FindString(cell); m != "" {
		return m
	}
	return model.RatioUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
