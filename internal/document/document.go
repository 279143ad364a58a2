// Package document models a paginated notice as positioned words and the
// tables reconstructed from them.
package document

import (
	"sort"
	"strings"
)

// BBox is a rectangle in PDF points with the origin at the top-left corner.
type BBox struct {
	X0     float64 `json:"x0"`
	Top    float64 `json:"top"`
	X1     float64 `json:"x1"`
	Bottom float64 `json:"bottom"`
}

// Contains reports whether the center of b lies inside box.
func (box BBox) Contains(b BBox) bool {
	cx := (b.X0 + b.X1) / 2
	cy := (b.Top + b.Bottom) / 2
	return cx >= box.X0 && cx <= box.X1 && cy >= box.Top && cy <= box.Bottom
}

// Word is a run of text with its bounding box.
type Word struct {
	Text string `json:"text"`
	BBox
}

// Table is a grid of cell texts. Cells spanning several columns keep their
// text in the first column and leave the others empty.
type Table struct {
	BBox BBox       `json:"bbox"`
	Rows [][]string `json:"rows"`
}

// Cell returns the text at (row, col), or "" when out of range.
func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// RowText joins the non-empty cells of a row with single spaces.
func (t Table) RowText(row int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	return JoinNonEmpty(t.Rows[row])
}

// Page is one page of a document.
type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Words  []Word  `json:"words"`
	Tables []Table `json:"tables"`
}

// Text renders all words of the page as lines.
func (p Page) Text() string {
	return renderLines(p.Words)
}

// TextIn renders the words whose centers fall inside box.
func (p Page) TextIn(box BBox) string {
	var in []Word
	for _, w := range p.Words {
		if box.Contains(w.BBox) {
			in = append(in, w)
		}
	}
	return renderLines(in)
}

// Landscape reports whether the page is wider than it is tall.
func (p Page) Landscape() bool {
	return p.Width > p.Height
}

// Document is a loaded paginated attachment.
type Document struct {
	Pages []Page `json:"pages"`
}

// TwoUp reports whether the document is laid out as two-page spreads,
// judged from its first page.
func (d *Document) TwoUp() bool {
	if d == nil || len(d.Pages) == 0 {
		return false
	}
	return d.Pages[0].Landscape()
}

// JoinNonEmpty joins the non-empty strings of parts with a space.
func JoinNonEmpty(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func renderLines(words []Word) string {
	lines := groupLines(words, DefaultLayout.LineTolerance)
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		parts := make([]string, len(ln.words))
		for i, w := range ln.words {
			parts[i] = w.Text
		}
		out = append(out, strings.Join(parts, " "))
	}
	return strings.Join(out, "\n")
}

type line struct {
	top, bottom float64
	words       []Word
}

// groupLines clusters words whose tops are within tol of each other and
// orders each line left to right.
func groupLines(words []Word, tol float64) []line {
	if len(words) == 0 {
		return nil
	}
	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Top != sorted[j].Top {
			return sorted[i].Top < sorted[j].Top
		}
		return sorted[i].X0 < sorted[j].X0
	})

	var lines []line
	for _, w := range sorted {
		n := len(lines)
		if n > 0 && w.Top-lines[n-1].top <= tol {
			lines[n-1].words = append(lines[n-1].words, w)
			if w.Bottom > lines[n-1].bottom {
				lines[n-1].bottom = w.Bottom
			}
			continue
		}
		lines = append(lines, line{top: w.Top, bottom: w.Bottom, words: []Word{w}})
	}
	for i := range lines {
		ws := lines[i].words
		sort.SliceStable(ws, func(a, b int) bool { return ws[a].X0 < ws[b].X0 })
	}
	return lines
}
