package tier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/resilience"
)

type stubClassifier struct {
	calls int
	rows  [][]Features
	fn    func(rows []Features) ([]Probabilities, error)
}

func (s *stubClassifier) PredictProba(_ context.Context, rows []Features) ([]Probabilities, error) {
	s.calls++
	s.rows = append(s.rows, rows)
	return s.fn(rows)
}

// byDeposit predicts high for deposits above 6000, moderate above 3000.
func byDeposit(rows []Features) ([]Probabilities, error) {
	out := make([]Probabilities, len(rows))
	for i, r := range rows {
		switch {
		case r.SalePrice > 6000:
			out[i] = Probabilities{0.1, 0.1, 0.8}
		case r.SalePrice > 3000:
			out[i] = Probabilities{0.3, 0.5, 0.2}
		default:
			out[i] = Probabilities{0.9, 0.05, 0.05}
		}
	}
	return out, nil
}

func rec(unitType, channel string, deposit, rent float64) model.PriceRecord {
	return model.PriceRecord{
		Channel:  channel,
		UnitType: unitType,
		Deposit:  model.Float(deposit),
		Rent:     model.Float(rent),
	}
}

func TestFromProbabilities(t *testing.T) {
	tests := []struct {
		p    Probabilities
		want model.Tier
	}{
		{Probabilities{0.1, 0.1, 0.21}, model.TierHigh},
		{Probabilities{0.1, 0.7, 0.2}, model.TierModerate},
		{Probabilities{0.55, 0.4, 0.05}, model.TierLow},
		{Probabilities{0.3, 0.41, 0.29}, model.TierHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromProbabilities(tt.p), "%v", tt.p)
	}
}

func TestArea(t *testing.T) {
	assert.Equal(t, 23.68, Area("23.68㎡ (23A)"))
	assert.Equal(t, 17.0, Area("17A"))
	assert.Equal(t, 0.0, Area("A타입"))
	assert.Equal(t, 0.0, Area("0㎡"))
}

func TestBroadcast_OneRowPerGroup(t *testing.T) {
	records := []model.PriceRecord{
		rec("23.68㎡ (23A)", model.ChannelSpecial, 5300, 37.41),
		rec("23.68㎡ (23A)", model.ChannelSpecial, 7000, 20),
		rec("23.68㎡ (23A)", model.ChannelGeneral, 2000, 50),
		rec("36㎡", "일반공급 2순위", 3500, 10),
		rec("36㎡", model.ChannelGeneral, 1000, 10),
		rec("타입 미정", model.ChannelGeneral, 9000, 10),
	}
	stub := &stubClassifier{fn: byDeposit}
	b := NewBroadcaster(stub, []string{"행복주택"})

	out, err := b.Broadcast(context.Background(), records, Context{HousingType: "청년안심주택"})
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls)
	require.Len(t, stub.rows[0], 3, "one row per distinct group key")

	require.NotNil(t, out[0].Predicted)
	assert.Equal(t, model.TierHigh, *out[0].Predicted)
	assert.Equal(t, *out[0].Predicted, *out[1].Predicted)
	assert.Equal(t, model.TierLow, *out[2].Predicted)
	assert.Equal(t, model.TierModerate, *out[3].Predicted)
	assert.Equal(t, *out[3].Predicted, *out[4].Predicted)
	assert.Nil(t, out[5].Predicted, "records without an area are not classified")

	for _, r := range records {
		assert.Nil(t, r.Predicted, "input must not be modified")
	}
}

func TestBroadcast_GroupConsistency(t *testing.T) {
	records := []model.PriceRecord{
		rec("17A", model.ChannelSpecial, 1000, 10),
		rec("17A", model.ChannelSpecial, 9000, 10),
		rec("17A", "특별공급(청년)", 4000, 10),
		rec("17A", model.ChannelGeneral, 4000, 10),
		rec("26B", "", 6500, 10),
		rec("26B", model.ChannelUnknown, 100, 10),
	}
	out, err := NewBroadcaster(&stubClassifier{fn: byDeposit}, nil).
		Broadcast(context.Background(), records, Context{})
	require.NoError(t, err)

	tiers := map[string]model.Tier{}
	for _, r := range out {
		require.NotNil(t, r.Predicted)
		if prev, ok := tiers[r.GroupKey()]; ok {
			assert.Equal(t, prev, *r.Predicted, r.GroupKey())
		}
		tiers[r.GroupKey()] = *r.Predicted
	}
	assert.Len(t, tiers, 3)
}

func TestBroadcast_RepresentativeFirstOnTie(t *testing.T) {
	records := []model.PriceRecord{
		rec("17A", model.ChannelGeneral, 4000, 10),
		rec("17A", model.ChannelGeneral, 4000, 90),
	}
	stub := &stubClassifier{fn: byDeposit}
	_, err := NewBroadcaster(stub, nil).Broadcast(context.Background(), records, Context{HousingType: "청년안심주택"})
	require.NoError(t, err)

	row := stub.rows[0][0]
	assert.InDelta(t, (4000.0+10*200)/0.6, row.SalePrice, 1e-9)
}

func TestBroadcast_Features(t *testing.T) {
	post := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	records := []model.PriceRecord{rec("33.058㎡", model.ChannelGeneral, 5000, 30)}
	stub := &stubClassifier{fn: byDeposit}

	_, err := NewBroadcaster(stub, nil).Broadcast(context.Background(), records, Context{
		HousingType:     "행복주택",
		Organization:    "SH",
		Address:         "서울특별시 중랑구 면목동",
		TotalHouseholds: 120,
		PostDate:        &post,
	})
	require.NoError(t, err)

	assert.Equal(t, Features{
		SalePrice:     5000,
		PricePerPyung: 500,
		TotalUnits:    120,
		AreaSize:      33.058,
		Organization:  "SH",
		Region:        "서울특별시",
		Year:          2025,
		Month:         3,
	}, stub.rows[0][0])
}

func TestBroadcast_DefaultsWithoutContext(t *testing.T) {
	stub := &stubClassifier{fn: byDeposit}
	b := NewBroadcaster(stub, nil)
	b.now = func() time.Time { return time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC) }

	_, err := b.Broadcast(context.Background(), []model.PriceRecord{rec("17A", "", 1, 0)}, Context{})
	require.NoError(t, err)

	row := stub.rows[0][0]
	assert.Equal(t, "Unknown", row.Region)
	assert.Equal(t, 2026, row.Year)
	assert.Equal(t, 7, row.Month)
}

func TestBroadcast_Errors(t *testing.T) {
	records := []model.PriceRecord{rec("17A", "", 1000, 10)}

	t.Run("classifier failure", func(t *testing.T) {
		stub := &stubClassifier{fn: func([]Features) ([]Probabilities, error) { return nil, errors.New("boom") }}
		out, err := NewBroadcaster(stub, nil).Broadcast(context.Background(), records, Context{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		require.Len(t, out, 1)
		assert.Nil(t, out[0].Predicted)
	})

	t.Run("row count mismatch", func(t *testing.T) {
		stub := &stubClassifier{fn: func([]Features) ([]Probabilities, error) { return nil, nil }}
		_, err := NewBroadcaster(stub, nil).Broadcast(context.Background(), records, Context{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "0 rows for 1 inputs")
	})

	t.Run("no classifier", func(t *testing.T) {
		_, err := NewBroadcaster(nil, nil).Broadcast(context.Background(), records, Context{})
		require.Error(t, err)
	})

	t.Run("nothing to classify", func(t *testing.T) {
		stub := &stubClassifier{fn: byDeposit}
		out, err := NewBroadcaster(stub, nil).Broadcast(context.Background(), []model.PriceRecord{rec("미정", "", 1, 1)}, Context{})
		require.NoError(t, err)
		assert.Equal(t, 0, stub.calls)
		assert.Nil(t, out[0].Predicted)
	})
}

func TestHTTPClassifier(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probabilities":[[0.1,0.2,0.7],[0.5,0.45,0.05]]}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, 5*time.Second)
	probs, err := c.PredictProba(context.Background(), []Features{{AreaSize: 17}, {AreaSize: 26}})
	require.NoError(t, err)

	require.Len(t, got.Rows, 2)
	assert.Equal(t, 26.0, got.Rows[1].AreaSize)
	assert.Equal(t, []Probabilities{{0.1, 0.2, 0.7}, {0.5, 0.45, 0.05}}, probs)
	assert.Equal(t, model.TierHigh, FromProbabilities(probs[0]))
	assert.Equal(t, model.TierModerate, FromProbabilities(probs[1]))
}

func TestHTTPClassifier_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"model not loaded"}`, "status 500"},
		{"wrong class count", http.StatusOK, `{"probabilities":[[0.5,0.5]]}`, "2 classes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClassifier(srv.URL, time.Second).PredictProba(context.Background(), []Features{{}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWithBreaker_StopsCallingAfterFailures(t *testing.T) {
	stub := &stubClassifier{fn: func([]Features) ([]Probabilities, error) { return nil, errors.New("connection refused") }}
	c := WithBreaker(stub, resilience.NewBreaker(resilience.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour}))

	for range 2 {
		_, err := c.PredictProba(context.Background(), []Features{{}})
		require.Error(t, err)
	}
	_, err := c.PredictProba(context.Background(), []Features{{}})
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, 2, stub.calls)
}

func TestWithBreaker_PassesThrough(t *testing.T) {
	stub := &stubClassifier{fn: byDeposit}
	c := WithBreaker(stub, resilience.NewBreaker(resilience.BreakerConfig{}))

	out, err := NewBroadcaster(c, nil).Broadcast(context.Background(), []model.PriceRecord{rec("26A", "", 7000, 40)}, Context{})
	require.NoError(t, err)
	require.NotNil(t, out[0].Predicted)
	assert.Equal(t, model.TierHigh, *out[0].Predicted)
}
