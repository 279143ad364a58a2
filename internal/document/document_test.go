package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// word builds a word of height 10 starting at (x, top), 8pt per rune.
func word(text string, x, top float64) Word {
	w := float64(len([]rune(text))) * 8
	return Word{Text: text, BBox: BBox{X0: x, Top: top, X1: x + w, Bottom: top + 10}}
}

func TestPage_TextGroupsLines(t *testing.T) {
	p := Page{Words: []Word{
		word("신청자격", 60, 100),
		word("일반공급", 10, 101),
		word("①", 10, 120),
		word("만19세", 30, 120),
	}}
	assert.Equal(t, "일반공급 신청자격\n① 만19세", p.Text())
}

func TestPage_TextIn(t *testing.T) {
	p := Page{Width: 800, Height: 600, Words: []Word{
		word("왼쪽", 10, 10),
		word("오른쪽", 500, 10),
	}}
	assert.Equal(t, "왼쪽", p.TextIn(BBox{X0: 0, Top: 0, X1: 400, Bottom: 600}))
	assert.Equal(t, "오른쪽", p.TextIn(BBox{X0: 400, Top: 0, X1: 800, Bottom: 600}))
	assert.True(t, p.Landscape())
}

func TestDocument_TwoUp(t *testing.T) {
	var nilDoc *Document
	assert.False(t, nilDoc.TwoUp())
	assert.False(t, (&Document{}).TwoUp())
	assert.True(t, (&Document{Pages: []Page{{Width: 842, Height: 595}}}).TwoUp())
	assert.False(t, (&Document{Pages: []Page{{Width: 595, Height: 842}}}).TwoUp())
}

func TestTable_CellOutOfRange(t *testing.T) {
	tbl := Table{Rows: [][]string{{"a", "b"}, {"c"}}}
	assert.Equal(t, "b", tbl.Cell(0, 1))
	assert.Equal(t, "", tbl.Cell(1, 1))
	assert.Equal(t, "", tbl.Cell(5, 0))
	assert.Equal(t, "c", tbl.RowText(1))
	assert.Equal(t, "", tbl.RowText(-1))
}

func TestDetectTables_ReconstructsGrid(t *testing.T) {
	words := []Word{
		word("임대조건", 10, 50),
		word("공급유형", 10, 100), word("타입", 100, 100), word("보증금(53%)", 200, 100), word("임대료", 320, 100),
		word("특별공급", 10, 115), word("23.68㎡", 100, 115), word("(23A)", 152, 115), word("53,000,000", 200, 115), word("374,100", 320, 115),
		word("비고", 10, 300),
	}
	tables := DefaultLayout.DetectTables(words)
	require.Len(t, tables, 1)

	tbl := tables[0]
	assert.Equal(t, [][]string{
		{"공급유형", "타입", "보증금(53%)", "임대료"},
		{"특별공급", "23.68㎡ (23A)", "53,000,000", "374,100"},
	}, tbl.Rows)
	assert.Equal(t, 100.0, tbl.BBox.Top)
	assert.Equal(t, 125.0, tbl.BBox.Bottom)
}

func TestDetectTables_SpanningHeaderGoesLeft(t *testing.T) {
	words := []Word{
		word("구분", 10, 100),
		{Text: "임대조건", BBox: BBox{X0: 200, Top: 100, X1: 330, Bottom: 110}},
		word("타입", 10, 115), word("A", 100, 115), word("보증금", 200, 115), word("임대료", 300, 115),
		word("1", 10, 130), word("23A", 100, 130), word("5,000", 200, 130), word("300", 300, 130),
	}
	tables := DefaultLayout.DetectTables(words)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"구분", "", "임대조건", ""}, tables[0].Rows[0])
	assert.Equal(t, []string{"타입", "A", "보증금", "임대료"}, tables[0].Rows[1])
}

func TestDetectTables_SplitsOnVerticalGap(t *testing.T) {
	words := []Word{
		word("a", 10, 10), word("b", 100, 10),
		word("c", 10, 25), word("d", 100, 25),
		word("e", 10, 200), word("f", 100, 200),
		word("g", 10, 215), word("h", 100, 215),
	}
	tables := DefaultLayout.DetectTables(words)
	require.Len(t, tables, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, tables[0].Rows)
	assert.Equal(t, [][]string{{"e", "f"}, {"g", "h"}}, tables[1].Rows)
}

func TestDetectTables_SingleRowIsNotATable(t *testing.T) {
	words := []Word{word("a", 10, 10), word("b", 100, 10)}
	assert.Empty(t, DefaultLayout.DetectTables(words))
}
