package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/report"
	"github.com/claude/gbinsight/internal/server"
	"github.com/claude/gbinsight/internal/storage"
	"github.com/google/uuid"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// newAPIServer serves the real REST API over the in-memory source.
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := report.New(newMemSource(), report.DefaultOptions(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(server.New(svc, nil, nil, "key", testLogger()))
	t.Cleanup(ts.Close)
	return ts
}

// TestPeriodParams verifies the HTTP client sends the end date and length.
func TestPeriodParams(t *testing.T) {
	id := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/devices/" + id.String() + "/sleep/period": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("end"); got != "2024-05-01" {
				t.Errorf("end=%q, want 2024-05-01", got)
			}
			if got := r.URL.Query().Get("days"); got != "14" {
				t.Errorf("days=%q, want 14", got)
			}
			writeTestJSON(t, w, report.SleepPeriod{DeviceID: id, Nights: 5, AvgBedtime: "23:10"})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL + "/")
	p, err := client.SleepPeriod(context.Background(), id, testDay, 14)
	if err != nil {
		t.Fatal(err)
	}
	if p.Nights != 5 || p.AvgBedtime != "23:10" {
		t.Errorf("period = %+v", p)
	}
}

// TestHTTPClientServerError verifies the client returns an error on non-200
// responses and maps 404 to ErrNotFound.
func TestHTTPClientServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/devices": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"database down"}`))
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	if _, err := client.Devices(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}

	api := NewHTTPClient(newAPIServer(t).URL)
	if _, err := api.Device(context.Background(), uuid.New()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown device err = %v, want ErrNotFound", err)
	}
}

// TestHTTPClientRoundTrip verifies that reports served by the REST API
// decode into the same values the local service returns.
func TestHTTPClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := NewHTTPClient(newAPIServer(t).URL)
	local := newTestHandlers(t).ds

	devices, err := client.Devices(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Identifier != testAddr {
		t.Fatalf("devices = %+v", devices)
	}
	id := devices[0].ID

	day, err := client.ParseDay("2024-05-01")
	if err != nil {
		t.Fatal(err)
	}

	steps, err := client.Steps(ctx, id, day)
	if err != nil {
		t.Fatal(err)
	}
	want, err := local.Steps(ctx, id, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if steps.Summary.TotalDaySteps != want.Summary.TotalDaySteps || len(steps.Sessions) != len(want.Sessions) {
		t.Fatalf("remote steps = %d/%d sessions, local %d/%d",
			steps.Summary.TotalDaySteps, len(steps.Sessions), want.Summary.TotalDaySteps, len(want.Sessions))
	}
	if steps.Sessions[0].Kind != want.Sessions[0].Kind || steps.Sessions[0].Type != want.Sessions[0].Type {
		t.Errorf("remote session = %+v, local %+v", steps.Sessions[0], want.Sessions[0])
	}

	stress, err := client.Stress(ctx, id, day)
	if err != nil {
		t.Fatal(err)
	}
	if stress.Tally[models.StressMild] != 1800 || stress.Tally.Known() != 1800 {
		t.Errorf("remote stress = %v", stress.Tally)
	}

	hr, err := client.HeartRatePeriod(ctx, id, day, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hr.Average == nil || hr.Average.Mean != 80 {
		t.Errorf("remote heart rate period = %+v", hr.Average)
	}

	if _, err := client.ParseDay("01.05.2024"); !errors.Is(err, report.ErrInvalidDate) {
		t.Errorf("ParseDay err = %v, want ErrInvalidDate", err)
	}
}
