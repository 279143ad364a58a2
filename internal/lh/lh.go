// Package lh imports lease notices from the LH open API into the
// announcement sink.
package lh

import (
	"context"
	"encoding/json"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/db"
	"github.com/InhaCentury20/pass/internal/fetcher"
	"github.com/InhaCentury20/pass/internal/resilience"
)

// DefaultBaseURL is the LH lease notice endpoint.
const DefaultBaseURL = "https://apis.data.go.kr/B552555/lhLeaseNoticeInfo1/lhLeaseNoticeInfo1"

// Organization is stamped on every imported notice.
const Organization = "LH"

const (
	dateLayout        = "2006.01.02"
	consultationState = "상담요청"
)

// Notice is one normalized LH lease notice.
type Notice struct {
	Title           string
	SourceURL       string
	HousingType     string
	Region          string
	PostDate        *time.Time
	ApplicationEnd  *time.Time
	ApplicationLink string
}

// Query selects a window of notices. Dates use the API's YYYY.MM.DD form.
type Query struct {
	PostFrom string
	CloseTo  string
	// Pages is the number of pages to walk starting at 1. 0 means 1.
	Pages int
}

// Client reads the LH lease notice API.
type Client struct {
	fetcher    fetcher.Fetcher
	baseURL    string
	serviceKey string
	pageSize   int
	retry      resilience.RetryConfig
}

// NewClient creates a Client. A URL-encoded service key is decoded first.
func NewClient(f fetcher.Fetcher, baseURL, serviceKey string, pageSize int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if strings.Contains(serviceKey, "%") {
		if decoded, err := url.QueryUnescape(serviceKey); err == nil {
			serviceKey = decoded
		}
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("lh", "fetch page")
	return &Client{fetcher: f, baseURL: baseURL, serviceKey: serviceKey, pageSize: pageSize, retry: retry}
}

// Page fetches one page and returns its normalized notices. Transient
// failures are retried with backoff.
func (c *Client) Page(ctx context.Context, q Query, page int) ([]Notice, error) {
	params := url.Values{
		"ServiceKey": {c.serviceKey},
		"PG_SZ":      {strconv.Itoa(c.pageSize)},
		"PAGE":       {strconv.Itoa(page)},
	}
	if q.PostFrom != "" {
		params.Set("PAN_NT_ST_DT", q.PostFrom)
	}
	if q.CloseTo != "" {
		params.Set("CLSG_DT", q.CloseTo)
	}

	target := c.baseURL + "?" + params.Encode()
	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.fetcher.Get(ctx, target)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "lh: fetch page %d", page)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrapf(err, "lh: decode page %d", page)
	}

	var out []Notice
	for _, item := range ExtractItems(payload) {
		if n, ok := Normalize(item); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// ExtractItems walks the response and collects every object carrying both a
// notice name and a detail URL, at any depth.
func ExtractItems(payload any) []map[string]any {
	var out []map[string]any
	var walk func(any)
	walk = func(node any) {
		switch v := node.(type) {
		case []any:
			for _, e := range v {
				walk(e)
			}
		case map[string]any:
			_, hasName := v["PAN_NM"]
			_, hasURL := v["DTL_URL"]
			if hasName && hasURL {
				out = append(out, v)
			}
			for _, k := range sortedKeys(v) {
				walk(v[k])
			}
		}
	}
	walk(payload)
	return out
}

// Normalize maps an API item onto a Notice. Items without a name are dropped.
func Normalize(item map[string]any) (Notice, bool) {
	n := Notice{
		Title:           str(item["PAN_NM"]),
		SourceURL:       str(item["DTL_URL"]),
		HousingType:     str(item["AIS_TP_CD_NM"]),
		Region:          str(item["CNP_CD_NM"]),
		PostDate:        parseDate(str(item["PAN_NT_ST_DT"])),
		ApplicationLink: str(item["DTL_URL"]),
	}
	if n.Title == "" {
		return Notice{}, false
	}
	if str(item["PAN_SS"]) != consultationState {
		n.ApplicationEnd = parseDate(str(item["CLSG_DT"]))
	}
	return n, true
}

// Importer loads LH notices into the announcements table.
type Importer struct {
	client *Client
	pool   db.Pool
}

// NewImporter creates an Importer.
func NewImporter(client *Client, pool db.Pool) *Importer {
	return &Importer{client: client, pool: pool}
}

var upsertConfig = db.UpsertConfig{
	Table: "announcements",
	Columns: []string{
		"title", "source_organization", "source_url", "housing_type",
		"region", "post_date", "application_end_date", "application_link",
	},
	ConflictKeys: []string{"source_url"},
	UpdateCols: []string{
		"housing_type", "region", "post_date", "application_end_date", "application_link",
	},
}

// Import walks q.Pages pages and upserts their notices keyed on the detail
// URL. Walking stops early at an empty page. A notice listed twice keeps its
// later values.
func (im *Importer) Import(ctx context.Context, q Query) (int64, error) {
	pages := max(q.Pages, 1)
	var rows [][]any
	for page := 1; page <= pages; page++ {
		notices, err := im.client.Page(ctx, q, page)
		if err != nil {
			return 0, err
		}
		if len(notices) == 0 {
			break
		}
		for _, n := range notices {
			if n.SourceURL == "" {
				continue
			}
			rows = append(rows, []any{
				n.Title, Organization, n.SourceURL, nullable(n.HousingType),
				nullable(n.Region), n.PostDate, n.ApplicationEnd, nullable(n.ApplicationLink),
			})
		}
	}

	affected, err := db.BulkUpsert(ctx, im.pool, upsertConfig, rows)
	if err != nil {
		return 0, eris.Wrap(err, "lh: upsert notices")
	}
	zap.L().Info("lh: notices imported",
		zap.Int("notices", len(rows)),
		zap.Int64("affected", affected),
	)
	return affected, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
