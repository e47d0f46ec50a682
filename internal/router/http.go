package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"darpnav/internal/darp"
)

// HTTPOracle queries an external routing service for travel times.
// Requests are rate limited so dispatch bursts cannot overwhelm the
// backend's quota.
type HTTPOracle struct {
	base    string
	mode    string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPOracle builds an oracle against base. rps bounds outbound
// queries per second; zero means 10.
func NewHTTPOracle(base, mode string, rps float64) *HTTPOracle {
	if rps <= 0 {
		rps = 10
	}
	return &HTTPOracle{
		base:    base,
		mode:    mode,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

type routeResponse struct {
	DurationSec float64 `json:"durationSec"`
}

func (o *HTTPOracle) TravelTime(ctx context.Context, from, to darp.Location) (float64, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	q := url.Values{}
	q.Set("from", string(from))
	q.Set("to", string(to))
	if o.mode != "" {
		q.Set("mode", o.mode)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/route?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("routing backend: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("routing backend: status %d for %s -> %s", resp.StatusCode, from, to)
	}
	var rr routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return 0, fmt.Errorf("routing backend: decode: %w", err)
	}
	if rr.DurationSec < 0 {
		return 0, fmt.Errorf("routing backend: negative duration for %s -> %s", from, to)
	}
	return rr.DurationSec, nil
}
