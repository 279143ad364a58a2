// Package table finds price tables in a notice document and reduces their
// irregular headers to a column schema.
package table

import (
	"strings"

	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/document"
	"github.com/InhaCentury20/pass/internal/model"
)

// DefaultContextWindow is the height in points of the strip above a table
// that is searched for a supply-channel heading.
const DefaultContextWindow = 40.0

// Candidate is a price table together with the page it came from and the
// supply channel named just above it.
type Candidate struct {
	Page    *document.Page
	Table   document.Table
	Context string
}

// Locator finds price tables.
type Locator struct {
	Window float64
}

// Locate finds price tables using the default context window.
func Locate(doc *document.Document) []Candidate {
	return Locator{Window: DefaultContextWindow}.Locate(doc)
}

// Locate walks every table on every page and keeps those whose first row
// looks like a price header.
func (l Locator) Locate(doc *document.Document) []Candidate {
	if doc == nil {
		return nil
	}
	var out []Candidate
	for pi := range doc.Pages {
		page := &doc.Pages[pi]
		for _, t := range page.Tables {
			if len(t.Rows) == 0 || !IsPriceHeader(t.Rows[0]) {
				continue
			}
			c := Candidate{Page: page, Table: t, Context: l.context(page, t)}
			zap.L().Debug("table: price table found",
				zap.Int("page", page.Number),
				zap.Int("rows", len(t.Rows)),
				zap.String("context", c.Context),
			)
			out = append(out, c)
		}
	}
	return out
}

func (l Locator) context(page *document.Page, t document.Table) string {
	top := t.BBox.Top
	above := page.TextIn(document.BBox{
		X0:     0,
		Top:    max(0, top-l.Window),
		X1:     page.Width,
		Bottom: top,
	})
	return ContextLabel(above)
}

// ContextLabel classifies heading text as special supply, general supply or
// unknown. Special wins when both appear.
func ContextLabel(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	switch {
	case strings.Contains(text, model.ChannelSpecial):
		return model.ChannelSpecial
	case strings.Contains(text, model.ChannelGeneral):
		return model.ChannelGeneral
	default:
		return model.ChannelUnknown
	}
}

// IsPriceHeader reports whether a first row names a deposit together with a
// unit type or a category.
func IsPriceHeader(row []string) bool {
	text := document.JoinNonEmpty(row)
	return strings.Contains(text, "보증금") &&
		(strings.Contains(text, "타입") || strings.Contains(text, "유형"))
}

// CleanText flattens newlines, drops thousands separators and trims.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}
