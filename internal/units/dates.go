package units

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// 2024년 4월 5일, 24.04.05, 2024-04-05
	looseDateRe = regexp.MustCompile(`(\d{2,4})[년.-]\s*(\d{1,2})[월.-]\s*(\d{1,2})일?`)
	// '25. 12. 02.
	fullDateRe = regexp.MustCompile(`['‘]?(\d{2,4})\.\s*(\d{1,2})\.\s*(\d{1,2})\.?`)
	// 12. 04.
	shortDateRe = regexp.MustCompile(`(\d{1,2})\.\s*(\d{1,2})\.?`)
)

var cleanLayouts = []string{
	"2006-1-2 15:04:05",
	"2006-1-2",
	"2006.1.2",
	"2006/1/2",
}

// FindDates returns every year-month-day date in text as YYYY-MM-DD, in order
// of first appearance and without duplicates. Two-digit years get a "20" prefix.
func FindDates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range looseDateRe.FindAllStringSubmatch(text, -1) {
		d := formatDate(expandYear(m[1]), m[2], m[3])
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// ParseDateRange parses a "~"-separated range. A segment without a year
// inherits the year of the closest preceding dated segment, so
// "'25. 12. 02. (화) ~ 12. 04. (목)" yields 2025-12-02 and 2025-12-04.
func ParseDateRange(text string) []string {
	var out []string
	lastYear := ""
	for _, part := range strings.Split(text, "~") {
		part = strings.TrimSpace(part)
		if m := fullDateRe.FindStringSubmatch(part); m != nil {
			lastYear = expandYear(m[1])
			out = append(out, formatDate(lastYear, m[2], m[3]))
			continue
		}
		if lastYear == "" {
			continue
		}
		if m := shortDateRe.FindStringSubmatch(part); m != nil {
			out = append(out, formatDate(lastYear, m[1], m[2]))
		}
	}
	return out
}

// CleanDate parses the date formats used by the notice boards.
func CleanDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range cleanLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(value string) (time.Time, bool) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func expandYear(y string) string {
	if len(y) == 2 {
		return "20" + y
	}
	return y
}

func formatDate(year, month, day string) string {
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	return fmt.Sprintf("%s-%02d-%02d", year, m, d)
}
