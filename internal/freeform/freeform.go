// Package freeform recovers prices, schedules, links and counts from the free
// text of a board post.
package freeform

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/price"
	"github.com/InhaCentury20/pass/internal/units"
)

// SeoulRegion is the region recorded for every post with a housing address.
const SeoulRegion = "서울특별시"

var (
	chunkSepRe  = regexp.MustCompile(`[■\[]`)
	urlRe       = regexp.MustCompile(`https?://\S+`)
	totalUnitRe = regexp.MustCompile(`총\s*(\d+)세대`)
	typePriceRe = regexp.MustCompile(`(일반공급|특별공급)?\s*(\d+[A-Za-z0-9/]*)\s*(?:타입|형).*?보증금\D*?([0-9,]+).*?(?:임대료|월)\D*?([0-9,]+)`)

	addressHeadRe = regexp.MustCompile(`주택위치\s*:\s*`)
	addressStopRe = regexp.MustCompile(`\s*[(■□]`)

	privateUnitRe  = regexp.MustCompile(`공공지원민간임대\s*(\d+)세대`)
	applyLinkRe    = regexp.MustCompile(`청약신청\s*페이지\s*:\s*(https?://\S+)`)
	homepageLinkRe = regexp.MustCompile(`사업자\s*홈페이지\s*:\s*(https?://\S+)`)
	scheduleRe     = regexp.MustCompile(`(?s)\[공급일정\](.*?)\[청약신청\]`)
)

// Result holds what could be read from a post. Empty strings mean "not found".
type Result struct {
	AddressDetail   string
	Region          string
	TotalHouseholds int
	ApplicationLink string
	HomepageLink    string
	Schedule        model.Schedule
	Deadline        string
	Prices          []model.PriceRecord
	Summary         price.Summary
}

// Extract reads a post that has no attached document. The text is split into
// chunks at "■" and "[" and each chunk is classified on its own; later chunks
// overwrite earlier findings of the same kind.
func Extract(text string) Result {
	var r Result
	r.AddressDetail, r.Region = Address(text)

	for _, chunk := range chunkSepRe.Split(text, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		if strings.Contains(chunk, "바로가기") || strings.Contains(chunk, "링크") {
			if u := urlRe.FindString(chunk); u != "" {
				r.ApplicationLink = u
			}
		}

		if strings.Contains(chunk, "공급호수") {
			if m := totalUnitRe.FindStringSubmatch(chunk); m != nil {
				r.TotalHouseholds, _ = strconv.Atoi(m[1])
			}
		}

		if containsAny(chunk, "신청기간", "청약신청", "당첨자", "계약") {
			r.scheduleChunk(chunk)
		}

		if strings.Contains(chunk, "보증금") && strings.Contains(chunk, "임대료") {
			r.Prices = append(r.Prices, pricesIn(chunk)...)
		}
	}

	r.Summary = price.SummarizeLowestRent(r.Prices)
	return r
}

func (r *Result) scheduleChunk(chunk string) {
	dates := chunkDates(chunk)
	if len(dates) == 0 {
		return
	}
	switch {
	case strings.Contains(chunk, "신청"):
		r.Schedule.Set(model.ScheduleApplication, dates)
		r.Deadline = dates[len(dates)-1]
	case strings.Contains(chunk, "당첨"):
		r.Schedule.Set(model.ScheduleWinners, dates[:1])
	case strings.Contains(chunk, "계약"):
		r.Schedule.Set(model.ScheduleContract, dates)
	}
}

// chunkDates returns the dates of a schedule chunk. A "~" range is read with
// the year carried over to segments that omit it; the plain date scan is kept
// when it finds more.
func chunkDates(chunk string) []string {
	dates := units.FindDates(chunk)
	if !strings.Contains(chunk, "~") {
		return dates
	}
	value := chunk
	if _, after, ok := strings.Cut(chunk, ":"); ok {
		value = after
	}
	if ranged := units.ParseDateRange(value); len(ranged) > 0 && len(ranged) >= len(dates) {
		return ranged
	}
	return dates
}

// pricesIn reads every "type ... 보증금 N ... 임대료 M" tuple of a chunk.
// Amounts are in KRW and converted to 10,000 KRW.
func pricesIn(chunk string) []model.PriceRecord {
	var out []model.PriceRecord
	for _, m := range typePriceRe.FindAllStringSubmatch(chunk, -1) {
		deposit, err := strconv.Atoi(strings.ReplaceAll(m[3], ",", ""))
		if err != nil {
			continue
		}
		rent, err := strconv.Atoi(strings.ReplaceAll(m[4], ",", ""))
		if err != nil {
			continue
		}
		channel := m[1]
		if channel == "" {
			channel = model.ChannelGeneral
		}
		out = append(out, model.PriceRecord{
			Channel:      channel,
			UnitType:     m[2],
			Deposit:      model.Float(float64(deposit) / units.DefaultDivisor),
			Rent:         model.Float(float64(rent) / units.DefaultDivisor),
			DepositRatio: model.RatioUnknown,
		})
	}
	return out
}

// ParseBoard reads a post whose details live in an attached document: the
// address, household count, the two links and the [공급일정] schedule.
func ParseBoard(text string) Result {
	var r Result
	r.AddressDetail, r.Region = Address(text)

	if m := privateUnitRe.FindStringSubmatch(text); m != nil {
		r.TotalHouseholds, _ = strconv.Atoi(m[1])
	} else if m := totalUnitRe.FindStringSubmatch(text); m != nil {
		r.TotalHouseholds, _ = strconv.Atoi(m[1])
	}

	if m := applyLinkRe.FindStringSubmatch(text); m != nil {
		r.ApplicationLink = m[1]
	}
	if m := homepageLinkRe.FindStringSubmatch(text); m != nil {
		r.HomepageLink = m[1]
	}

	if m := scheduleRe.FindStringSubmatch(text); m != nil {
		for _, item := range strings.Split(m[1], "■") {
			key, val, ok := strings.Cut(strings.TrimSpace(item), ":")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			dates := units.ParseDateRange(strings.TrimSpace(val))
			if len(dates) == 0 {
				continue
			}
			r.Schedule.Set(key, dates)
			if strings.Contains(key, "청약신청") {
				r.Deadline = dates[len(dates)-1]
			}
		}
	}
	return r
}

// Address reads the "주택위치 :" line up to a parenthesis or a bullet. A
// leading "서울시" is spelled out, and any found address sets the region.
func Address(text string) (detail, region string) {
	for _, head := range addressHeadRe.FindAllStringIndex(text, -1) {
		rest := text[head[1]:]
		stop := addressStopRe.FindStringIndex(rest)
		if stop == nil {
			continue
		}
		addr := rest[:stop[0]]
		if strings.Contains(addr, "\n") {
			continue
		}
		parts := strings.Split(strings.TrimSpace(addr), " ")
		if parts[0] == "서울시" {
			parts[0] = SeoulRegion
		}
		return strings.Join(parts, " "), SeoulRegion
	}
	return "", ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
