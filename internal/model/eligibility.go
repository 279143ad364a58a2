package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// NoContent marks a criterion whose text could not be located.
const NoContent = "내용 없음"

// Criteria holds the six fixed eligibility criteria of one tenant class.
type Criteria struct {
	Age       string `json:"age" yaml:"age"`
	Marriage  string `json:"marriage" yaml:"marriage"`
	Household string `json:"household" yaml:"household"`
	Earnings  string `json:"earnings" yaml:"earnings"`
	Car       string `json:"car" yaml:"car"`
	Asset     string `json:"asset" yaml:"asset"`
}

// EmptyCriteria returns criteria with every field set to NoContent.
func EmptyCriteria() Criteria {
	return Criteria{
		Age:       NoContent,
		Marriage:  NoContent,
		Household: NoContent,
		Earnings:  NoContent,
		Car:       NoContent,
		Asset:     NoContent,
	}
}

// Rank is one "N순위" entry of a selection table.
type Rank struct {
	Label string
	Text  string
}

// RankTable is an ordered label→text mapping. It serializes as a JSON object
// whose keys keep insertion order.
type RankTable []Rank

// Set inserts or replaces label, keeping the position of an existing entry.
func (t *RankTable) Set(label, text string) {
	for i := range *t {
		if (*t)[i].Label == label {
			(*t)[i].Text = text
			return
		}
	}
	*t = append(*t, Rank{Label: label, Text: text})
}

// Get returns the text stored under label.
func (t RankTable) Get(label string) (string, bool) {
	for _, r := range t {
		if r.Label == label {
			return r.Text, true
		}
	}
	return "", false
}

// MarshalJSON writes the table as an ordered JSON object.
func (t RankTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(r.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Text)
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

// UnmarshalJSON reads a JSON object preserving key order.
func (t *RankTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "model: rank table")
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eris.Errorf("model: rank table: expected object, got %v", tok)
	}
	out := RankTable{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "model: rank table key")
		}
		key, _ := kt.(string)
		var text string
		if err := dec.Decode(&text); err != nil {
			return eris.Wrapf(err, "model: rank table value for %q", key)
		}
		out.Set(key, text)
	}
	*t = out
	return nil
}

// UnmarshalYAML reads a YAML mapping preserving key order.
func (t *RankTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return eris.Errorf("model: rank table: expected mapping at line %d", node.Line)
	}
	out := RankTable{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		out.Set(node.Content[i].Value, node.Content[i+1].Value)
	}
	*t = out
	return nil
}

// Selection holds the ranking tables used to order applicants.
type Selection struct {
	Income RankTable `json:"소득기준" yaml:"소득기준"`
	Region RankTable `json:"지역기준" yaml:"지역기준"`
}

// ChannelProfile groups the tenant classes of one supply channel.
type ChannelProfile struct {
	Youth     Criteria   `json:"청년계층" yaml:"청년계층"`
	Newlywed  Criteria   `json:"신혼부부계층" yaml:"신혼부부계층"`
	Selection *Selection `json:"선정기준,omitempty" yaml:"선정기준,omitempty"`
}

// EligibilityProfile is {supply channel → {tenant class → {criterion → text}}}
// plus the selection ranks of the special channel.
type EligibilityProfile struct {
	Special ChannelProfile `json:"특별공급" yaml:"특별공급"`
	General ChannelProfile `json:"일반공급" yaml:"일반공급"`
}
