// Package eligibility segments the applicant-eligibility prose of a notice
// into per-channel, per-class criteria.
//
// Go's regexp package has no lookahead, so every "from marker A up to the
// first marker B" rule is evaluated by index scanning.
package eligibility

import (
	"regexp"
	"strings"

	"github.com/InhaCentury20/pass/internal/model"
)

const (
	specialAnchor = "특별공급 신청자격"
	generalAnchor = "일반공급 신청자격"
)

var (
	generalEndRe = regexp.MustCompile(`5\s*청약|5\.\s*청약`)

	youthStartRe    = regexp.MustCompile(`(?:1\)|①)\s*청년 계층 신청자격`)
	newlywedStartRe = regexp.MustCompile(`(?:2\)|②)\s*(?:\(예비\))?\s*신혼부부`)

	earningsNoteRe = regexp.MustCompile(`※\s*(?:해당 세대의|세대구성원)`)
	dashLineRe     = regexp.MustCompile(`\n\s*-`)
	noteLineRe     = regexp.MustCompile(`\n\s*※`)
)

// Extract segments text into an eligibility profile. Criteria that cannot be
// located read "내용 없음". When no anchor is found anywhere the generic
// template is returned unchanged and found is false.
func Extract(text string) (profile model.EligibilityProfile, found bool) {
	special, hasSpecial := block(text, specialAnchor, func(from int) int {
		return indexFrom(text, generalAnchor, from)
	})
	general, hasGeneral := block(text, generalAnchor, func(from int) int {
		start, _ := matchFrom(generalEndRe, text, from)
		return start
	})
	selection, hasSelection := parseSelection(text)

	if !hasSpecial && !hasGeneral && !hasSelection {
		return Default(), false
	}

	return model.EligibilityProfile{
		Special: model.ChannelProfile{
			Youth:     criteria(youthSection(special)),
			Newlywed:  criteria(newlywedSection(special)),
			Selection: &selection,
		},
		General: model.ChannelProfile{
			Youth:    criteria(youthSection(general)),
			Newlywed: criteria(newlywedSection(general)),
		},
	}, true
}

// block returns text from the first occurrence of anchor up to the position
// reported by end, which is searched from just after the anchor.
func block(text, anchor string, end func(from int) int) (string, bool) {
	i := strings.Index(text, anchor)
	if i < 0 {
		return "", false
	}
	j := end(i + len(anchor))
	if j < 0 {
		return "", false
	}
	return text[i:j], true
}

func youthSection(b string) string {
	loc := youthStartRe.FindStringIndex(b)
	if loc == nil {
		return ""
	}
	end, _ := matchFrom(newlywedStartRe, b, loc[1])
	if end < 0 {
		return ""
	}
	return b[loc[0]:end]
}

// newlywedSection runs from the newlywed heading, past its "신청자격", up to a
// "3)" that introduces the selection rules, the document checklist, or the
// end of the block.
func newlywedSection(b string) string {
	loc := newlywedStartRe.FindStringIndex(b)
	if loc == nil {
		return ""
	}
	q := indexFrom(b, "신청자격", loc[1])
	if q < 0 {
		return ""
	}
	q += len("신청자격")

	end := len(b)
	if p := indexFrom(b, "3)", q); p >= 0 && strings.Contains(b[p+len("3)"):], "선정") {
		end = p
	}
	if p := indexFrom(b, "제출서류", q); p >= 0 && p < end {
		end = p
	}
	return b[loc[0]:end]
}

func criteria(section string) model.Criteria {
	c := model.EmptyCriteria()
	if section == "" {
		return c
	}
	set := func(dst *string) func(string, bool) {
		return func(v string, ok bool) {
			if ok {
				*dst = clean(v)
			}
		}
	}

	set(&c.Age)(between(section, "①", literal(section, "②")))
	set(&c.Marriage)(between(section, "②", literal(section, "③")))
	set(&c.Household)(between(section, "③", literal(section, "④")))
	set(&c.Earnings)(earnings(section))
	set(&c.Car)(between(section, "⑤", func(from int) int {
		start, _ := matchFrom(dashLineRe, section, from)
		return earliest(indexFrom(section, "⑥", from), start)
	}))
	set(&c.Asset)(between(section, "⑥", func(from int) int {
		dash, _ := matchFrom(dashLineRe, section, from)
		note, _ := matchFrom(noteLineRe, section, from)
		if e := earliest(dash, note, indexFrom(section, "신혼부부는", from)); e >= 0 {
			return e
		}
		return len(section)
	}))
	return c
}

// earnings reads the income criterion after ④. A note starting right at the
// marker wins, then text ending in "요건 없음", then the first household
// income note further on. Each runs to the next ※ or ⑤.
func earnings(s string) (string, bool) {
	i := strings.Index(s, "④")
	if i < 0 {
		return "", false
	}
	a := i + len("④")
	stop := func(from int) int {
		return earliest(indexFrom(s, "※", from), indexFrom(s, "⑤", from))
	}

	note := earningsNoteRe.FindStringIndex(s[a:])
	if note != nil && note[0] == 0 {
		if j := stop(a + note[1]); j >= 0 {
			return s[a:j], true
		}
	}
	if k := indexFrom(s, "요건 없음", a); k >= 0 {
		if j := stop(k + len("요건 없음")); j >= 0 {
			return s[a:j], true
		}
	}
	if note != nil {
		if j := stop(a + note[1]); j >= 0 {
			return s[a+note[0] : j], true
		}
	}
	return "", false
}

// between returns the text after the first open marker up to the position
// reported by end. The leading whitespace is dropped by clean.
func between(s, open string, end func(from int) int) (string, bool) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	from := i + len(open)
	j := end(from)
	if j < 0 {
		return "", false
	}
	return s[from:j], true
}

func literal(s, marker string) func(int) int {
	return func(from int) int { return indexFrom(s, marker, from) }
}

func indexFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}
	k := strings.Index(s[from:], sub)
	if k < 0 {
		return -1
	}
	return from + k
}

func matchFrom(re *regexp.Regexp, s string, from int) (int, int) {
	if from > len(s) {
		return -1, -1
	}
	loc := re.FindStringIndex(s[from:])
	if loc == nil {
		return -1, -1
	}
	return from + loc[0], from + loc[1]
}

// earliest returns the smallest non-negative index, or -1.
func earliest(idx ...int) int {
	best := -1
	for _, i := range idx {
		if i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// clean flattens newlines, drops thousands separators and trims.
func clean(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}
