package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRankTable_PreservesOrder(t *testing.T) {
	var rt RankTable
	rt.Set("2순위", "b")
	rt.Set("1순위", "a")
	rt.Set("10순위", "c")

	b, err := json.Marshal(rt)
	require.NoError(t, err)
	assert.Equal(t, `{"2순위":"b","1순위":"a","10순위":"c"}`, string(b))

	var back RankTable
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rt, back)
}

func TestRankTable_UnmarshalNull(t *testing.T) {
	var rt RankTable
	require.NoError(t, json.Unmarshal([]byte("null"), &rt))
	assert.Nil(t, rt)
}

func TestRankTable_UnmarshalRejectsArray(t *testing.T) {
	var rt RankTable
	err := json.Unmarshal([]byte(`["a"]`), &rt)
	require.Error(t, err)
}

func TestRankTable_YAMLOrder(t *testing.T) {
	var sel Selection
	err := yaml.Unmarshal([]byte("소득기준:\n  3순위: c\n  1순위: a\n지역기준: {}\n"), &sel)
	require.NoError(t, err)
	require.Len(t, sel.Income, 2)
	assert.Equal(t, "3순위", sel.Income[0].Label)
	assert.Equal(t, "1순위", sel.Income[1].Label)
	assert.Empty(t, sel.Region)
}

func TestEligibilityProfile_RoundTrip(t *testing.T) {
	p := EligibilityProfile{
		Special: ChannelProfile{
			Youth:    EmptyCriteria(),
			Newlywed: EmptyCriteria(),
			Selection: &Selection{
				Income: RankTable{{Label: "1순위", Text: "기준소득 100% 이하"}},
				Region: RankTable{},
			},
		},
		General: ChannelProfile{Youth: EmptyCriteria(), Newlywed: EmptyCriteria()},
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"선정기준":{"소득기준":{"1순위":"기준소득 100% 이하"},"지역기준":{}}`)
	general, err := json.Marshal(p.General)
	require.NoError(t, err)
	assert.NotContains(t, string(general), "선정기준")

	var back EligibilityProfile
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, p, back)

	again, err := json.Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, b, again)
}
