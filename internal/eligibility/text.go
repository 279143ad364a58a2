package eligibility

import (
	"math"
	"regexp"
	"strings"

	"github.com/InhaCentury20/pass/internal/document"
)

var newlinesRe = regexp.MustCompile(`\n+`)

// DocumentText renders the document for prose extraction. Two-up spreads are
// read one half-page at a time so lines never run across the gutter.
func DocumentText(doc *document.Document) string {
	if doc == nil {
		return ""
	}
	twoUp := doc.TwoUp()

	var b strings.Builder
	for _, p := range doc.Pages {
		text := p.Text()
		if twoUp {
			half := p.Width / 2
			left := p.TextIn(document.BBox{X0: 0, Top: 0, X1: half, Bottom: p.Height})
			right := p.TextIn(document.BBox{X0: math.Nextafter(half, math.Inf(1)), Top: 0, X1: p.Width, Bottom: p.Height})
			text = left + "\n" + right
		}
		if text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	return newlinesRe.ReplaceAllString(b.String(), "\n")
}
