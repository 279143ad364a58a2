package pdfdoc

import (
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/InhaCentury20/pass/internal/document"
)

// ParseBBoxLayout reads the XHTML produced by `pdftotext -bbox-layout` and
// reconstructs each page's words and tables. Word text is NFC-normalized so
// decomposed Hangul from some PDF producers matches composed keywords.
func ParseBBoxLayout(r io.Reader, layout document.Layout) (*document.Document, error) {
	dom, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "pdfdoc: parse bbox layout")
	}

	doc := &document.Document{}
	var parseErr error
	dom.Find("page").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		page := document.Page{Number: i + 1}
		if page.Width, parseErr = floatAttr(sel, "width"); parseErr != nil {
			return false
		}
		if page.Height, parseErr = floatAttr(sel, "height"); parseErr != nil {
			return false
		}
		sel.Find("word").EachWithBreak(func(_ int, w *goquery.Selection) bool {
			text := norm.NFC.String(strings.TrimSpace(w.Text()))
			if text == "" {
				return true
			}
			var box document.BBox
			if box, parseErr = wordBox(w); parseErr != nil {
				return false
			}
			page.Words = append(page.Words, document.Word{Text: text, BBox: box})
			return true
		})
		if parseErr != nil {
			return false
		}
		page.Tables = layout.DetectTables(page.Words)
		doc.Pages = append(doc.Pages, page)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return doc, nil
}

func wordBox(sel *goquery.Selection) (document.BBox, error) {
	var box document.BBox
	var err error
	// the HTML parser lowercases attribute names
	if box.X0, err = floatAttr(sel, "xmin"); err != nil {
		return box, err
	}
	if box.Top, err = floatAttr(sel, "ymin"); err != nil {
		return box, err
	}
	if box.X1, err = floatAttr(sel, "xmax"); err != nil {
		return box, err
	}
	if box.Bottom, err = floatAttr(sel, "ymax"); err != nil {
		return box, err
	}
	return box, nil
}

func floatAttr(sel *goquery.Selection, name string) (float64, error) {
	raw, ok := sel.Attr(name)
	if !ok {
		return 0, eris.Errorf("pdfdoc: missing %s attribute on <%s>", name, goquery.NodeName(sel))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "pdfdoc: bad %s attribute %q", name, raw)
	}
	return v, nil
}
