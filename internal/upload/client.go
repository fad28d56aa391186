package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/meltforce/tcxstat/internal/ingest"
)

// TCXContentType is the media type Garmin uses for Training Center XML.
const TCXContentType = "application/vnd.garmin.tcx+xml"

// errPermanent marks a response that retrying cannot fix.
var errPermanent = errors.New("permanent failure")

// Client sends activity files to the TCXStat server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the TCXStat server. apiKey may be
// empty when the server is reached over the tailnet.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// SendActivity POSTs one TCX document, gzip-compressed, to the server's
// ingest endpoint. Retries up to 3 times with exponential backoff on
// transport errors, 429 and 5xx responses.
func (c *Client) SendActivity(ctx context.Context, tcx []byte) (*ingest.Result, error) {
	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	if _, err := zw.Write(tcx); err != nil {
		return nil, fmt.Errorf("compressing activity: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing activity: %w", err)
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff << (attempt - 1)):
			}
		}

		result, err := c.post(ctx, body.Bytes())
		if err == nil {
			return result, nil
		}
		if isPermanent(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("after 3 attempts: %w", lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (*ingest.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/v1/ingest/tcx", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", TCXContentType)
	req.Header.Set("Content-Encoding", "gzip")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("ingest failed (status %d): %s", resp.StatusCode, respBody)
	default:
		return nil, fmt.Errorf("%w: ingest rejected (status %d): %s", errPermanent, resp.StatusCode, respBody)
	}

	var result ingest.Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding ingest response: %v", errPermanent, err)
	}
	return &result, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}
