package insightapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

const maxErrorBody = 4 << 10

// Client posts symptom and weather aggregates to the analysis endpoint.
type Client struct {
	endpoint   string
	tokens     oauth2.TokenSource
	httpClient *http.Client
}

// NewClient builds a client for baseURL. tokens may be nil for unauthenticated endpoints.
func NewClient(baseURL string, tokens oauth2.TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/analyze",
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// Send performs a single POST /analyze. It never retries.
func (c *Client) Send(ctx context.Context, req insight.InsightRequest, timeout time.Duration) (insight.InsightResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(req.Wire())
	if err != nil {
		return insight.InsightResult{}, insight.DecodeError(fmt.Errorf("encode analyze request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return insight.InsightResult{}, insight.NetworkError(fmt.Errorf("build analyze request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return insight.InsightResult{}, insight.NetworkError(fmt.Errorf("acquire token: %w", err))
		}
		token.SetAuthHeader(httpReq)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return insight.InsightResult{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return insight.InsightResult{}, insight.ServerError(resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return insight.InsightResult{}, transportError(ctx, err)
	}
	return decodeResponse(payload)
}

type analyzeResponse struct {
	Message   *string  `json:"message"`
	Citations []string `json:"citations"`
}

func decodeResponse(payload []byte) (insight.InsightResult, error) {
	var raw analyzeResponse
	if err := json.Unmarshal(payload, &raw); err != nil {
		return insight.InsightResult{}, insight.DecodeError(fmt.Errorf("decode analyze response: %w", err))
	}
	if raw.Message == nil {
		return insight.InsightResult{}, insight.DecodeError(errors.New("analyze response missing message"))
	}
	citations := raw.Citations
	if citations == nil {
		citations = []string{}
	}
	return insight.InsightResult{Message: *raw.Message, Citations: citations}, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return insight.TimeoutError(err)
	}
	return insight.NetworkError(err)
}
