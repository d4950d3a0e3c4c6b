// internal/api/client.go
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleetgrid/fleettrack/internal/dates"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

// TokenProvider supplies an optional bearer token. Requests proceed
// unauthenticated when it returns false.
type TokenProvider func() (string, bool)

// Client talks to the two track endpoints. It does no payload
// interpretation; that belongs to the track service.
type Client struct {
	baseURL         string
	fallbackBaseURL string
	token           TokenProvider
	httpClient      *http.Client
}

// New creates an API client. fallbackBaseURL may equal baseURL when
// both endpoint generations are served by one host.
func New(baseURL, fallbackBaseURL string, token TokenProvider) *Client {
	if fallbackBaseURL == "" {
		fallbackBaseURL = baseURL
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		fallbackBaseURL: strings.TrimRight(fallbackBaseURL, "/"),
		token:           token,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchPrimary calls the v3 telemetry endpoint with ISO-8601 bounds.
func (c *Client) FetchPrimary(ctx context.Context, imei string, r core.DateRange) ([]byte, error) {
	u := fmt.Sprintf("%s/api/telemetry/v3/%s/track?startTime=%s&endTime=%s",
		c.baseURL,
		url.PathEscape(imei),
		url.QueryEscape(dates.SerializeISO(r.Start)),
		url.QueryEscape(dates.SerializeISO(r.End)),
	)
	return c.get(ctx, u)
}

// FetchFallback calls the v1 tracks endpoint with calendar-day bounds.
func (c *Client) FetchFallback(ctx context.Context, imei string, r core.DateRange) ([]byte, error) {
	u := fmt.Sprintf("%s/api/v1/tracks/%s?from=%s&to=%s",
		c.fallbackBaseURL,
		url.PathEscape(imei),
		dates.DayString(r.Start),
		dates.DayString(r.End),
	)
	return c.get(ctx, u)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if tok, ok := c.token(); ok && tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("track request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("track request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
