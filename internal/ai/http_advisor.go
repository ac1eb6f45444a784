package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lifescore_backend/internal/logger"
)

// HTTPAdvisor posts the profile to a remote recommendation endpoint.
type HTTPAdvisor struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	fallback   Advisor
}

// NewHTTPAdvisor creates a client for endpoint. fallback, if set, answers
// when the remote call fails.
func NewHTTPAdvisor(endpoint, apiKey string, timeout time.Duration, fallback Advisor) *HTTPAdvisor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdvisor{
		endpoint: endpoint,
		apiKey:   apiKey,
		fallback: fallback,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type recommendResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
}

func (a *HTTPAdvisor) Recommend(ctx context.Context, p Profile) ([]Recommendation, error) {
	recs, err := a.call(ctx, p)
	if err == nil {
		return recs, nil
	}
	if a.fallback == nil || ctx.Err() != nil {
		return nil, err
	}
	logger.Warn("ai advisor failed, using catalog", "user_id", p.UserID, "error", err)
	return a.fallback.Recommend(ctx, p)
}

func (a *HTTPAdvisor) call(ctx context.Context, p Profile) ([]Recommendation, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("advisor error: %d - %s", resp.StatusCode, string(msg))
	}

	var out recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode advisor response: %w", err)
	}
	return out.Recommendations, nil
}
