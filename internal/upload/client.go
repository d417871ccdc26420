// Package upload sends samples read from a local export to a remote server.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/claude/gbinsight/internal/ingest"
	"github.com/claude/gbinsight/internal/models"
)

// DefaultBatchSize is the number of samples sent per request.
const DefaultBatchSize = 5000

// Client sends payloads to the ingest endpoint of a server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	batchSize  int
	attempts   int
	backoff    time.Duration
	httpClient *http.Client
}

// NewClient creates a client for serverURL. A batch size below one uses
// DefaultBatchSize.
func NewClient(serverURL, apiKey string, batchSize int) *Client {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		batchSize: batchSize,
		attempts:  3,
		backoff:   time.Second,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Ingest sends payload in batches and sums the server's results.
func (c *Client) Ingest(ctx context.Context, payload *models.IngestPayload) (*ingest.Result, error) {
	total := &ingest.Result{}
	for i, batch := range Batches(payload, c.batchSize) {
		res, err := c.SendPayload(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("batch %d: %w", i+1, err)
		}
		total.DeviceID = res.DeviceID
		total.ActivityReceived += res.ActivityReceived
		total.ActivityInserted += res.ActivityInserted
		total.ActivitySkipped += res.ActivitySkipped
		total.ActivityRejected += res.ActivityRejected
		total.StressReceived += res.StressReceived
		total.StressInserted += res.StressInserted
		total.StressSkipped += res.StressSkipped
		total.StressRejected += res.StressRejected
	}
	return total, nil
}

// SendPayload POSTs one payload to the server's ingest endpoint.
// Retries with exponential backoff on failure; client errors are not retried.
func (c *Client) SendPayload(ctx context.Context, payload *models.IngestPayload) (*ingest.Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	var lastErr error
	for attempt := range c.attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		res, retry, err := c.post(ctx, data)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) post(ctx context.Context, data []byte) (*ingest.Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/v1/ingest", bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ingest failed (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
		return nil, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
	}

	var res ingest.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, false, fmt.Errorf("decoding ingest result: %w", err)
	}
	return &res, false, nil
}

// Batches splits payload so no part carries more than size samples. Each
// part repeats the device.
func Batches(payload *models.IngestPayload, size int) []*models.IngestPayload {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out []*models.IngestPayload
	for a := payload.ActivitySamples; len(a) > 0; {
		n := min(size, len(a))
		out = append(out, &models.IngestPayload{Device: payload.Device, ActivitySamples: a[:n]})
		a = a[n:]
	}
	for s := payload.StressSamples; len(s) > 0; {
		n := min(size, len(s))
		out = append(out, &models.IngestPayload{Device: payload.Device, StressSamples: s[:n]})
		s = s[n:]
	}
	return out
}
