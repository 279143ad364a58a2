package document

import (
	"math"
	"strings"
)

// Layout tunes table reconstruction from positioned words. Distances are in
// PDF points.
type Layout struct {
	// LineTolerance is the maximum difference between word tops on one line.
	LineTolerance float64
	// CellGap is the minimum horizontal gap that separates two cells.
	CellGap float64
	// RowGap is the maximum vertical gap between consecutive table rows.
	RowGap float64
	// MinRows is the minimum number of rows for a region to count as a table.
	MinRows int
}

// DefaultLayout matches the notices published on the housing boards.
var DefaultLayout = Layout{
	LineTolerance: 3,
	CellGap:       6,
	RowGap:        18,
	MinRows:       2,
}

type cell struct {
	text   string
	x0, x1 float64
}

type cellRow struct {
	top, bottom float64
	cells       []cell
}

// DetectTables reconstructs tables from the words of one page: lines that
// split into at least two cells and follow each other closely form a table,
// and the row with the most cells defines the column bands.
func (l Layout) DetectTables(words []Word) []Table {
	var tables []Table
	var run []cellRow

	flush := func() {
		if len(run) >= l.MinRows {
			tables = append(tables, l.buildTable(run))
		}
		run = nil
	}

	for _, ln := range groupLines(words, l.LineTolerance) {
		row := cellRow{top: ln.top, bottom: ln.bottom, cells: l.splitCells(ln.words)}
		if len(row.cells) < 2 {
			flush()
			continue
		}
		if n := len(run); n > 0 && row.top-run[n-1].bottom > l.RowGap {
			flush()
		}
		run = append(run, row)
	}
	flush()
	return tables
}

func (l Layout) splitCells(words []Word) []cell {
	var cells []cell
	for _, w := range words {
		n := len(cells)
		if n > 0 && w.X0-cells[n-1].x1 < l.CellGap {
			cells[n-1].text += " " + w.Text
			cells[n-1].x1 = math.Max(cells[n-1].x1, w.X1)
			continue
		}
		cells = append(cells, cell{text: w.Text, x0: w.X0, x1: w.X1})
	}
	return cells
}

func (l Layout) buildTable(rows []cellRow) Table {
	var bands []cell
	for _, r := range rows {
		if len(r.cells) > len(bands) {
			bands = r.cells
		}
	}

	t := Table{
		BBox: BBox{X0: math.Inf(1), Top: rows[0].top, X1: math.Inf(-1), Bottom: rows[len(rows)-1].bottom},
		Rows: make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		out := make([]string, len(bands))
		for _, c := range r.cells {
			i := bandFor(bands, c)
			out[i] = strings.TrimSpace(strings.TrimSpace(out[i]) + " " + c.text)
			t.BBox.X0 = math.Min(t.BBox.X0, c.x0)
			t.BBox.X1 = math.Max(t.BBox.X1, c.x1)
		}
		t.Rows = append(t.Rows, out)
	}
	return t
}

// bandFor picks the column band for c. The leftmost band covered for at
// least half of its own width (or half of the cell) wins, so a cell spanning
// several columns lands in its first one. Otherwise the band with the largest
// overlap, and failing that the band with the nearest center.
func bandFor(bands []cell, c cell) int {
	best, bestOverlap := -1, 0.0
	for i, b := range bands {
		overlap := math.Min(b.x1, c.x1) - math.Max(b.x0, c.x0)
		if overlap <= 0 {
			continue
		}
		if overlap >= (b.x1-b.x0)/2 || overlap >= (c.x1-c.x0)/2 {
			return i
		}
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	if best >= 0 {
		return best
	}
	center := (c.x0 + c.x1) / 2
	best, bestDist := 0, math.Inf(1)
	for i, b := range bands {
		d := math.Abs((b.x0+b.x1)/2 - center)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
