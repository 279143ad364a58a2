// Package crawl walks the SOCO notice board newest first, gated by the crawl
// checkpoint, and hands every new notice to the extraction pipeline.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/InhaCentury20/pass/internal/fetcher"
	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/units"
)

// Board defaults for the SOCO youth housing notice board.
const (
	DefaultListURL   = "https://soco.seoul.go.kr/youth/pgm/home/yohome/bbsListJson.json"
	DefaultDetailURL = "https://soco.seoul.go.kr/youth/bbs/BMSR00015/view.do"
	DefaultBoardID   = "BMSR00015"
	DefaultMenuNo    = "400008"
)

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
	default:
		*s = flexString(b)
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string. Blank values are 0.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return eris.Wrapf(err, "crawl: not a number: %q", string(s))
	}
	*n = flexInt(v)
	return nil
}

// ListRow is one row of the board list API.
type ListRow struct {
	BoardID    flexString `json:"boardId"`
	Title      flexString `json:"nttSj"`
	Department flexString `json:"optn3"`
	PostDate   flexString `json:"ntceBgnde"`
	ApplyDate  flexString `json:"optn4"`
	Type       flexString `json:"optn2"`
	TypeName   flexString `json:"optn2Nm"`
	Stage      flexString `json:"optn5"`
}

// PagingInfo is the paging block of a list response.
type PagingInfo struct {
	TotRow    flexInt `json:"totRow"`
	RowStart  flexInt `json:"rowStart"`
	PageIndex flexInt `json:"pageIndex"`
	TotPage   flexInt `json:"totPage"`
}

// ListPage is one decoded list response.
type ListPage struct {
	Rows   []ListRow  `json:"resultList"`
	Paging PagingInfo `json:"pagingInfo"`
}

// Number is the visible listing number of the row at idx.
func (p *ListPage) Number(idx int) int64 {
	return int64(p.Paging.TotRow) - int64(p.Paging.RowStart) - int64(idx)
}

// HasNext reports whether a later page exists.
func (p *ListPage) HasNext() bool {
	return p.Paging.PageIndex < p.Paging.TotPage
}

// ClientOptions locates the board endpoints.
type ClientOptions struct {
	ListURL   string
	DetailURL string
	BoardID   string
	MenuNo    string
	// HousingType is stamped on every announcement of the board.
	HousingType string
}

// Client reads the SOCO board list API and detail pages.
type Client struct {
	fetcher fetcher.Fetcher
	opts    ClientOptions
}

// NewClient creates a Client. Empty options fall back to the board defaults.
func NewClient(f fetcher.Fetcher, opts ClientOptions) *Client {
	if opts.ListURL == "" {
		opts.ListURL = DefaultListURL
	}
	if opts.DetailURL == "" {
		opts.DetailURL = DefaultDetailURL
	}
	if opts.BoardID == "" {
		opts.BoardID = DefaultBoardID
	}
	if opts.MenuNo == "" {
		opts.MenuNo = DefaultMenuNo
	}
	return &Client{fetcher: f, opts: opts}
}

// List fetches one list page. Pages start at 1.
func (c *Client) List(ctx context.Context, page int) (*ListPage, error) {
	form := url.Values{
		"bbsId":           {c.opts.BoardID},
		"pageIndex":       {strconv.Itoa(page)},
		"searchAdresGu":   {""},
		"searchCondition": {""},
		"searchKeyword":   {""},
		"optn2":           {""},
		"optn5":           {""},
	}
	body, err := c.fetcher.PostForm(ctx, c.opts.ListURL, form)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: list page %d", page)
	}
	var out ListPage
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrapf(err, "crawl: decode list page %d", page)
	}
	if out.Paging.PageIndex == 0 {
		out.Paging.PageIndex = flexInt(page)
	}
	return &out, nil
}

// DetailURL returns the detail page address of a board post.
func (c *Client) DetailURL(boardID string) string {
	q := url.Values{"menuNo": {c.opts.MenuNo}, "boardId": {boardID}}
	return c.opts.DetailURL + "?" + q.Encode()
}

// Detail fetches and parses the detail page of row.
func (c *Client) Detail(ctx context.Context, row ListRow, number int64) (*model.Announcement, error) {
	pageURL := c.DetailURL(string(row.BoardID))
	body, err := c.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: detail %d", number)
	}
	a, err := ParseDetail(body, pageURL, row)
	if err != nil {
		return nil, err
	}
	a.ListingNumber = &number
	a.HousingType = c.opts.HousingType
	return a, nil
}

var departmentRe = regexp.MustCompile(`(?:담당부서|담당자)\s*[:：]\s*(\S+)`)

var contentSelectors = []string{".view_cont", ".view_content", ".bbs_view", ".board_view"}

// ParseDetail builds an announcement from a detail page. List row values win
// over values scraped from the page.
func ParseDetail(html []byte, pageURL string, row ListRow) (*model.Announcement, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse detail html")
	}

	a := &model.Announcement{
		BoardID:   string(row.BoardID),
		SourceURL: pageURL,
	}

	a.Title = string(row.Title)
	if a.Title == "" {
		a.Title = pageTitle(doc, pageURL)
	}
	a.Title = norm.NFC.String(a.Title)

	a.Department = string(row.Department)
	if a.Department == "" {
		if m := departmentRe.FindStringSubmatch(textNodes(doc.Find("body"), " ")); m != nil {
			a.Department = m[1]
		}
	}
	a.Organization = a.Department

	a.PostDate = cleanDate(firstNonEmpty(string(row.PostDate), tableValue(doc, "공고게시일")))
	a.ApplyDate = cleanDate(firstNonEmpty(string(row.ApplyDate), tableValue(doc, "청약신청일")))

	a.Category = categoryLabel(row)
	if a.Category == "" {
		a.Category = tableValue(doc, "카테고리")
	}

	a.ApplicationLink = paragraphLink(doc, pageURL, "청약신청 페이지")
	a.HomepageLink = paragraphLink(doc, pageURL, "단지 홈페이지")
	if href, ok := doc.Find(`ul.view_data span.file a[href*="fileDown.do"]`).First().Attr("href"); ok {
		a.PDFURL = resolve(pageURL, href)
	}

	a.BoardText = norm.NFC.String(boardText(doc))
	return a, nil
}

func pageTitle(doc *goquery.Document, pageURL string) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(doc.Find("title").First().Text()); v != "" {
		return v
	}
	return pageURL
}

// tableValue returns the text of the cell following the <th> containing label.
func tableValue(doc *goquery.Document, label string) string {
	var out string
	doc.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if !strings.Contains(strings.Join(strings.Fields(th.Text()), " "), label) {
			return true
		}
		out = textNodes(th.NextAllFiltered("td").First(), " ")
		return false
	})
	return out
}

func paragraphLink(doc *goquery.Document, pageURL, label string) string {
	var out string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if !strings.Contains(p.Text(), label) {
			return true
		}
		if href, ok := p.Find("a[href]").First().Attr("href"); ok {
			out = resolve(pageURL, href)
			return false
		}
		return true
	})
	return out
}

func boardText(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return textNodes(s, "\n")
		}
	}
	return textNodes(doc.Find("body"), "\n")
}

// textNodes joins the trimmed text nodes under sel with sep, in document order.
func textNodes(sel *goquery.Selection, sep string) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style":
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return strings.Join(parts, sep)
}

func categoryLabel(row ListRow) string {
	var labels []string
	switch row.Type {
	case "1":
		labels = append(labels, "공공")
	case "2":
		labels = append(labels, "민간")
	}
	switch row.Stage {
	case "1":
		labels = append(labels, "최초")
	case "2":
		labels = append(labels, "추가")
	}
	if len(labels) == 0 && row.TypeName != "" {
		labels = append(labels, string(row.TypeName))
	}
	return strings.Join(labels, " ")
}

func cleanDate(value string) *time.Time {
	t, ok := units.CleanDate(value)
	if !ok {
		return nil
	}
	return &t
}

func resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
