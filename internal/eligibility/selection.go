package eligibility

import (
	"regexp"
	"strings"

	"github.com/InhaCentury20/pass/internal/model"
)

var (
	incomeStartRe = regexp.MustCompile(`(?:1\)|①)\s*소득`)
	regionStartRe = regexp.MustCompile(`(?:2\)|②)\s*지역`)
	starNoteRe    = regexp.MustCompile(`\n\*`)

	rankHeadRe = regexp.MustCompile(`-\s*(\d+)순위\s*[:：]\s*`)
	rankNextRe = regexp.MustCompile(`-\s*\d+순위`)
)

// parseSelection reads the income and region ranking tables. ok reports
// whether either block was present.
func parseSelection(text string) (model.Selection, bool) {
	income, hasIncome := rankBlock(text, incomeStartRe, func(from int) int {
		return earliest(indexFrom(text, "2)", from), indexFrom(text, "②", from))
	})
	region, hasRegion := rankBlock(text, regionStartRe, func(from int) int {
		note, _ := matchFrom(noteLineRe, text, from)
		star, _ := matchFrom(starNoteRe, text, from)
		if e := earliest(note, star); e >= 0 {
			return e
		}
		return len(text)
	})
	return model.Selection{
		Income: ranks(income),
		Region: ranks(region),
	}, hasIncome || hasRegion
}

// rankBlock returns the text from a heading match, past its first "순위", up
// to the position reported by end.
func rankBlock(text string, start *regexp.Regexp, end func(from int) int) (string, bool) {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	r := indexFrom(text, "순위", loc[1])
	if r < 0 {
		return "", false
	}
	j := end(r + len("순위"))
	if j < 0 {
		return "", false
	}
	return text[loc[0]:j], true
}

// ranks collects "- N순위 : text" entries in order. Each text runs to the next
// "- N순위" or the end of the block, with whitespace collapsed.
func ranks(b string) model.RankTable {
	out := model.RankTable{}
	pos := 0
	for pos < len(b) {
		m := rankHeadRe.FindStringSubmatchIndex(b[pos:])
		if m == nil {
			break
		}
		label := b[pos+m[2]:pos+m[3]] + "순위"
		start := pos + m[1]
		end := len(b)
		if next, _ := matchFrom(rankNextRe, b, start); next >= 0 {
			end = next
		}
		out.Set(label, strings.Join(strings.Fields(b[start:end]), " "))
		pos = end
	}
	return out
}
