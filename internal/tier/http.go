package tier

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/InhaCentury20/pass/internal/resilience"
)

// HTTPClassifier calls a model server that exposes predict_proba over JSON.
//
// Request:  {"rows": [Features, ...]}
// Response: {"probabilities": [[p0, p1, p2], ...]}
type HTTPClassifier struct {
	client   *resty.Client
	endpoint string
}

type predictRequest struct {
	Rows []Features `json:"rows"`
}

type predictResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
}

// NewHTTPClassifier creates a classifier client for endpoint.
func NewHTTPClassifier(endpoint string, timeout time.Duration) *HTTPClassifier {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	return &HTTPClassifier{client: client, endpoint: endpoint}
}

// PredictProba implements Classifier.
func (c *HTTPClassifier) PredictProba(ctx context.Context, rows []Features) ([]Probabilities, error) {
	var body predictResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(predictRequest{Rows: rows}).
		SetResult(&body).
		Post(c.endpoint)
	if err != nil {
		return nil, eris.Wrap(err, "tier: classifier request")
	}
	if resp.IsError() {
		return nil, eris.Errorf("tier: classifier returned status %d", resp.StatusCode())
	}

	out := make([]Probabilities, len(body.Probabilities))
	for i, p := range body.Probabilities {
		if len(p) != len(Probabilities{}) {
			return nil, eris.Errorf("tier: row %d has %d classes, want 3", i, len(p))
		}
		copy(out[i][:], p)
	}
	return out, nil
}

// guarded skips the wrapped classifier while its breaker is open.
type guarded struct {
	next    Classifier
	breaker *resilience.Breaker
}

// WithBreaker wraps c so that repeated failures stop further calls for the
// breaker's cooldown. Rejected calls return resilience.ErrOpen.
func WithBreaker(c Classifier, b *resilience.Breaker) Classifier {
	return &guarded{next: c, breaker: b}
}

func (g *guarded) PredictProba(ctx context.Context, rows []Features) ([]Probabilities, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) ([]Probabilities, error) {
		return g.next.PredictProba(ctx, rows)
	})
}
