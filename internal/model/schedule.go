package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Schedule labels written by the extractors.
const (
	ScheduleApplication = "청약신청"
	ScheduleWinners     = "당첨자발표"
	ScheduleContract    = "계약체결 및 원본서류 제출"
)

// ScheduleEvent is a labelled key date or date range. Dates are YYYY-MM-DD.
type ScheduleEvent struct {
	Label string
	Dates []string
}

// Start returns the first date, or "".
func (e ScheduleEvent) Start() string {
	if len(e.Dates) == 0 {
		return ""
	}
	return e.Dates[0]
}

// End returns the last date, or "".
func (e ScheduleEvent) End() string {
	if len(e.Dates) == 0 {
		return ""
	}
	return e.Dates[len(e.Dates)-1]
}

// Value renders the dates as "a ~ b".
func (e ScheduleEvent) Value() string {
	return strings.Join(e.Dates, " ~ ")
}

// Schedule is an ordered list of events serialized as a JSON object of
// label → "start ~ end".
type Schedule []ScheduleEvent

// Set inserts or replaces the event for label.
func (s *Schedule) Set(label string, dates []string) {
	for i := range *s {
		if (*s)[i].Label == label {
			(*s)[i].Dates = dates
			return
		}
	}
	*s = append(*s, ScheduleEvent{Label: label, Dates: dates})
}

// Get returns the event stored under label.
func (s Schedule) Get(label string) (ScheduleEvent, bool) {
	for _, e := range s {
		if e.Label == label {
			return e, true
		}
	}
	return ScheduleEvent{}, false
}

// MarshalJSON writes the schedule as an ordered JSON object.
func (s Schedule) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value())
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an ordered JSON object back into events.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var table RankTable
	if err := table.UnmarshalJSON(data); err != nil {
		return eris.Wrap(err, "model: schedule")
	}
	out := Schedule{}
	for _, r := range table {
		var dates []string
		for _, d := range strings.Split(r.Text, "~") {
			if d = strings.TrimSpace(d); d != "" {
				dates = append(dates, d)
			}
		}
		out.Set(r.Label, dates)
	}
	*s = out
	return nil
}
