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

	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/report"
	"github.com/claude/gbinsight/internal/storage"
	"github.com/google/uuid"
)

// HTTPClient implements DataSource by calling the gbinsight REST API.
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

// ParseDay checks the date locally; the server cuts the day in its own zone.
func (c *HTTPClient) ParseDay(raw string) (time.Time, error) {
	if raw == "" {
		y, m, d := time.Now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", report.ErrInvalidDate, raw)
	}
	return day, nil
}

// get fetches path and decodes the JSON body into out. A 404 wraps
// storage.ErrNotFound.
func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("httpclient: %s: %w", path, storage.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func devicePath(id uuid.UUID, suffix string) string {
	return "/api/v1/devices/" + id.String() + suffix
}

func dayParams(day time.Time) url.Values {
	v := url.Values{}
	v.Set("date", day.Format(time.DateOnly))
	return v
}

func periodParams(end time.Time, n int) url.Values {
	v := url.Values{}
	v.Set("end", end.Format(time.DateOnly))
	v.Set("days", strconv.Itoa(n))
	return v
}

// fetch decodes a GET response into a fresh T.
func fetch[T any](ctx context.Context, c *HTTPClient, path string, params url.Values) (*T, error) {
	var out T
	if err := c.get(ctx, path, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Devices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	if err := c.get(ctx, "/api/v1/devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *HTTPClient) Device(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	return fetch[models.Device](ctx, c, devicePath(id, ""), nil)
}

func (c *HTTPClient) Steps(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.StepReport, error) {
	return fetch[report.StepReport](ctx, c, devicePath(deviceID, "/steps"), dayParams(day))
}

func (c *HTTPClient) Sleep(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.SleepReport, error) {
	return fetch[report.SleepReport](ctx, c, devicePath(deviceID, "/sleep"), dayParams(day))
}

func (c *HTTPClient) Stress(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.StressReport, error) {
	return fetch[report.StressReport](ctx, c, devicePath(deviceID, "/stress"), dayParams(day))
}

func (c *HTTPClient) HeartRate(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.HeartRateReport, error) {
	return fetch[report.HeartRateReport](ctx, c, devicePath(deviceID, "/heartrate"), dayParams(day))
}

func (c *HTTPClient) Amounts(ctx context.Context, deviceID uuid.UUID, day time.Time, sleepDay bool) (*report.AmountsReport, error) {
	params := dayParams(day)
	if sleepDay {
		params.Set("sleep", "true")
	}
	return fetch[report.AmountsReport](ctx, c, devicePath(deviceID, "/amounts"), params)
}

func (c *HTTPClient) StepPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.StepPeriod, error) {
	return fetch[report.StepPeriod](ctx, c, devicePath(deviceID, "/steps/period"), periodParams(end, n))
}

func (c *HTTPClient) SleepPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.SleepPeriod, error) {
	return fetch[report.SleepPeriod](ctx, c, devicePath(deviceID, "/sleep/period"), periodParams(end, n))
}

func (c *HTTPClient) StressPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.StressPeriod, error) {
	return fetch[report.StressPeriod](ctx, c, devicePath(deviceID, "/stress/period"), periodParams(end, n))
}

func (c *HTTPClient) HeartRatePeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.HeartRatePeriod, error) {
	return fetch[report.HeartRatePeriod](ctx, c, devicePath(deviceID, "/heartrate/period"), periodParams(end, n))
}
