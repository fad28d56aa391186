package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/storage"
)

// HTTPClient implements DataSource by calling the TCXStat REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("httpclient: %s: %w", path, storage.ErrNotFound)
	default:
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}
}

// getJSON fetches path and decodes the response into a T.
func getJSON[T any](ctx context.Context, c *HTTPClient, path string, params url.Values) (T, error) {
	var v T
	body, err := c.get(ctx, path, params)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return v, nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func (c *HTTPClient) QueryActivities(ctx context.Context, f storage.ActivityFilter, _ int) ([]models.ActivityRow, error) {
	params := url.Values{}
	if !f.Start.IsZero() {
		end := f.End
		if end.IsZero() {
			end = time.Now()
		}
		params = timeParams(f.Start, end)
	}
	if f.Sport != "" {
		params.Set("sport", f.Sport)
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	return getJSON[[]models.ActivityRow](ctx, c, "/api/v1/activities", params)
}

func (c *HTTPClient) GetActivity(ctx context.Context, id uuid.UUID, _ int) (*storage.ActivityDetail, error) {
	return getJSON[*storage.ActivityDetail](ctx, c, "/api/v1/activities/"+id.String(), nil)
}

func (c *HTTPClient) QueryTrackpoints(ctx context.Context, id uuid.UUID, lapIndex, _ int) ([]models.TrackpointRow, error) {
	params := url.Values{}
	if lapIndex >= 0 {
		params.Set("lap", strconv.Itoa(lapIndex))
	}
	return getJSON[[]models.TrackpointRow](ctx, c, "/api/v1/activities/"+id.String()+"/trackpoints", params)
}

func (c *HTTPClient) SportTotals(ctx context.Context, start, end time.Time, _ int) ([]storage.SportStat, error) {
	return getJSON[[]storage.SportStat](ctx, c, "/api/v1/stats/sports", timeParams(start, end))
}

func (c *HTTPClient) GetDataStats(ctx context.Context, _ int) (*storage.DataStats, error) {
	return getJSON[*storage.DataStats](ctx, c, "/api/v1/stats", nil)
}
