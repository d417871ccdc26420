package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claude/gbinsight/internal/analysis"
	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/storage"
	"github.com/google/uuid"
)

var _ SampleSource = (*storage.DB)(nil)

// memSource serves samples from memory and counts queries.
type memSource struct {
	devices  map[uuid.UUID]models.Device
	activity []models.Sample
	stress   []models.StressSample
	queries  atomic.Int32
}

func (m *memSource) GetDevice(_ context.Context, id uuid.UUID) (*models.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &d, nil
}

func (m *memSource) ListDevices(context.Context) ([]models.Device, error) {
	var out []models.Device
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *memSource) QueryActivitySamples(_ context.Context, _ uuid.UUID, start, end int64) ([]models.Sample, error) {
	m.queries.Add(1)
	var out []models.Sample
	for _, s := range m.activity {
		if s.Timestamp >= start && s.Timestamp < end {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSource) QueryStressSamples(_ context.Context, _ uuid.UUID, start, end int64) ([]models.StressSample, error) {
	m.queries.Add(1)
	var out []models.StressSample
	for _, s := range m.stress {
		if s.Timestamp >= start && s.Timestamp < end {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestService(t *testing.T, src *memSource, opts Options) *Service {
	t.Helper()
	svc, err := New(src, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func testDevice(typ string) models.Device {
	return models.Device{ID: models.DeviceID("AA:BB:CC:DD:EE:FF"), Identifier: "AA:BB:CC:DD:EE:FF", Type: typ}
}

func date(t *testing.T, loc *time.Location, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// walk appends n one-minute samples with steps starting at ts.
func walk(samples []models.Sample, ts int64, steps, n int) []models.Sample {
	for i := 0; i < n; i++ {
		samples = append(samples, models.Sample{
			Timestamp: ts + int64(i)*60,
			Steps:     models.Int(steps),
			Intensity: 0.5,
			Kind:      models.KindWalking,
		})
	}
	return samples
}

// sleepAt appends n one-minute light sleep samples starting at ts.
func sleepAt(samples []models.Sample, ts int64, n int) []models.Sample {
	for i := 0; i < n; i++ {
		samples = append(samples, models.Sample{Timestamp: ts + int64(i)*60, Kind: models.KindLightSleep})
	}
	return samples
}

// TestDayWindow verifies calendar and sleep day windows in a non-UTC zone,
// including a DST change.
func TestDayWindow(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions()
	opts.Location = berlin
	svc := newTestService(t, &memSource{}, opts)

	tests := []struct {
		name      string
		day       string
		offset    time.Duration
		wantStart string
		wantLen   int64
	}{
		{"calendar day", "2024-03-01", 0, "2024-03-01T00:00:00+01:00", 86400},
		{"sleep day", "2024-03-01", -12 * time.Hour, "2024-02-29T12:00:00+01:00", 86400},
		{"dst start", "2024-03-31", 0, "2024-03-31T00:00:00+01:00", 23 * 3600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, w := svc.dayWindow(date(t, berlin, tt.day).Add(15*time.Hour), tt.offset)
			if d != tt.day {
				t.Errorf("date = %s, want %s", d, tt.day)
			}
			if got := time.Unix(w.Start, 0).In(berlin).Format(time.RFC3339); got != tt.wantStart {
				t.Errorf("start = %s, want %s", got, tt.wantStart)
			}
			if w.End-w.Start != tt.wantLen {
				t.Errorf("length = %d, want %d", w.End-w.Start, tt.wantLen)
			}
		})
	}
}

// TestSteps_CacheAndInvalidate verifies that a day is analysed once until
// the device is invalidated.
func TestSteps_CacheAndInvalidate(t *testing.T) {
	dev := testDevice("generic")
	day0 := date(t, time.UTC, "2024-03-01")
	src := &memSource{
		devices:  map[uuid.UUID]models.Device{dev.ID: dev},
		activity: walk(nil, day0.Unix()+3600, 100, 10),
	}
	svc := newTestService(t, src, DefaultOptions())
	ctx := context.Background()

	r, err := svc.Steps(ctx, dev.ID, day0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Summary.TotalDaySteps != 1000 || len(r.Sessions) != 1 {
		t.Errorf("summary = %+v, sessions = %d", r.Summary, len(r.Sessions))
	}
	if r.CumulativeOrigin != day0.Unix()+3600 {
		t.Errorf("CumulativeOrigin = %d, want %d", r.CumulativeOrigin, day0.Unix()+3600)
	}
	if last := r.Cumulative[len(r.Cumulative)-1]; last.Total != 1000 {
		t.Errorf("last cumulative total = %d, want 1000", last.Total)
	}

	if _, err := svc.Steps(ctx, dev.ID, day0.Add(5*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if n := src.queries.Load(); n != 1 {
		t.Errorf("queries = %d, want 1", n)
	}

	svc.Invalidate(dev.ID)
	if _, err := svc.Steps(ctx, dev.ID, day0); err != nil {
		t.Fatal(err)
	}
	if n := src.queries.Load(); n != 2 {
		t.Errorf("queries after invalidate = %d, want 2", n)
	}
}

// TestSteps_CacheExpires verifies that samples written behind the
// service's back show up once the cached day expires.
func TestSteps_CacheExpires(t *testing.T) {
	dev := testDevice("generic")
	day0 := date(t, time.UTC, "2024-03-01")
	src := &memSource{devices: map[uuid.UUID]models.Device{dev.ID: dev}}
	opts := DefaultOptions()
	opts.CacheTTL = 20 * time.Millisecond
	svc := newTestService(t, src, opts)
	ctx := context.Background()

	before, err := svc.Steps(ctx, dev.ID, day0)
	if err != nil {
		t.Fatal(err)
	}
	if before.Summary.TotalDaySteps != 0 {
		t.Fatalf("steps before import = %d, want 0", before.Summary.TotalDaySteps)
	}

	src.activity = walk(nil, day0.Unix()+3600, 100, 20)
	time.Sleep(50 * time.Millisecond)

	after, err := svc.Steps(ctx, dev.ID, day0)
	if err != nil {
		t.Fatal(err)
	}
	if after.Summary.TotalDaySteps != 2000 || len(after.Sessions) != 1 {
		t.Errorf("steps after import = %d in %d sessions, want 2000 in 1",
			after.Summary.TotalDaySteps, len(after.Sessions))
	}
}

// TestStress_DeviceProfile verifies that the device type selects the ranges.
func TestStress_DeviceProfile(t *testing.T) {
	dev := testDevice("huawei")
	day0 := date(t, time.UTC, "2024-03-01")
	src := &memSource{
		devices: map[uuid.UUID]models.Device{dev.ID: dev},
		stress:  []models.StressSample{{Timestamp: day0.Unix(), Stress: models.Int(45)}},
	}
	opts := DefaultOptions()
	opts.Stress = func(typ string) analysis.StressConfig {
		cfg := analysis.DefaultStressConfig()
		if typ == "huawei" {
			cfg.Ranges = [4]int{1, 50, 70, 90}
		}
		return cfg
	}
	svc := newTestService(t, src, opts)

	r, err := svc.Stress(context.Background(), dev.ID, day0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Ranges != [4]int{1, 50, 70, 90} {
		t.Errorf("Ranges = %v", r.Ranges)
	}
	if r.Tally[models.StressRelaxed] != 60 {
		t.Errorf("relaxed = %d, want 60", r.Tally[models.StressRelaxed])
	}
	if r.Tally.Total() != 86400 {
		t.Errorf("tally total = %d, want 86400", r.Tally.Total())
	}
}

// TestStress_UnknownDevice verifies that a missing device surfaces as not found.
func TestStress_UnknownDevice(t *testing.T) {
	svc := newTestService(t, &memSource{}, DefaultOptions())
	_, err := svc.Stress(context.Background(), uuid.New(), time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestStressPeriod verifies that days without readings are listed but left
// out of the period tally and average.
func TestStressPeriod(t *testing.T) {
	dev := testDevice("generic")
	d1 := date(t, time.UTC, "2024-03-01").Unix()
	d3 := date(t, time.UTC, "2024-03-03").Unix()
	src := &memSource{
		devices: map[uuid.UUID]models.Device{dev.ID: dev},
		stress: []models.StressSample{
			{Timestamp: d1 + 600, Stress: models.Int(20)},
			{Timestamp: d3 + 600, Stress: models.Int(30)},
		},
	}
	svc := newTestService(t, src, DefaultOptions())

	p, err := svc.StressPeriod(context.Background(), dev.ID, date(t, time.UTC, "2024-03-03"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if p.From != "2024-03-01" || p.To != "2024-03-03" || len(p.Days) != 3 {
		t.Fatalf("period = %s..%s with %d days", p.From, p.To, len(p.Days))
	}
	if p.DaysWithData != 2 {
		t.Errorf("DaysWithData = %d, want 2", p.DaysWithData)
	}
	if p.Tally[models.StressRelaxed] != 120 {
		t.Errorf("relaxed = %d, want 120", p.Tally[models.StressRelaxed])
	}
	if p.Average == nil || p.Average.Mean != 25 || p.Average.StdDev != 5 {
		t.Errorf("Average = %+v, want mean 25 stddev 5", p.Average)
	}
}

// TestSleepPeriod verifies nightly totals and the bedtime average across
// midnight.
func TestSleepPeriod(t *testing.T) {
	dev := testDevice("generic")
	var samples []models.Sample
	samples = sleepAt(samples, date(t, time.UTC, "2024-03-01").Unix()+23*3600, 60)
	samples = sleepAt(samples, date(t, time.UTC, "2024-03-03").Unix()+1*3600, 60)
	src := &memSource{devices: map[uuid.UUID]models.Device{dev.ID: dev}, activity: samples}
	svc := newTestService(t, src, DefaultOptions())

	p, err := svc.SleepPeriod(context.Background(), dev.ID, date(t, time.UTC, "2024-03-03"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Nights != 2 {
		t.Fatalf("Nights = %d, want 2", p.Nights)
	}
	if p.Days[0].Date != "2024-03-02" || p.Days[0].AsleepSec != 3540 {
		t.Errorf("first night = %+v", p.Days[0])
	}
	if p.AvgBedtime != "00:00" {
		t.Errorf("AvgBedtime = %s, want 00:00", p.AvgBedtime)
	}
	if p.AvgWaketime != "00:59" {
		t.Errorf("AvgWaketime = %s, want 00:59", p.AvgWaketime)
	}
}

// TestHeartRatePeriod verifies the spread of daily averages and the period extremes.
func TestHeartRatePeriod(t *testing.T) {
	dev := testDevice("generic")
	d1 := date(t, time.UTC, "2024-03-01").Unix()
	d2 := date(t, time.UTC, "2024-03-02").Unix()
	src := &memSource{
		devices: map[uuid.UUID]models.Device{dev.ID: dev},
		activity: []models.Sample{
			{Timestamp: d1, HeartRate: models.Int(60)},
			{Timestamp: d2, HeartRate: models.Int(80)},
			{Timestamp: d2 + 60, HeartRate: models.Int(80)},
		},
	}
	svc := newTestService(t, src, DefaultOptions())

	p, err := svc.HeartRatePeriod(context.Background(), dev.ID, date(t, time.UTC, "2024-03-02"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Average == nil || p.Average.Mean != 70 {
		t.Errorf("Average = %+v, want mean 70", p.Average)
	}
	if *p.Min != 60 || *p.Max != 80 {
		t.Errorf("min/max = %d/%d, want 60/80", *p.Min, *p.Max)
	}
}

// TestDays verifies period bounds.
func TestDays(t *testing.T) {
	svc := newTestService(t, &memSource{}, DefaultOptions())
	if _, err := svc.Days(time.Now(), 0); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("Days(0) err = %v", err)
	}
	if _, err := svc.Days(time.Now(), MaxPeriodDays+1); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("Days(max+1) err = %v", err)
	}
	days, err := svc.Days(date(t, time.UTC, "2024-03-01"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if days[0].Format(time.DateOnly) != "2024-02-29" {
		t.Errorf("first day = %s", days[0])
	}
}

// TestParseDay verifies dates are read in the service's zone.
func TestParseDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	opts := DefaultOptions()
	opts.Location = loc
	svc := newTestService(t, &memSource{}, opts)

	day, err := svc.ParseDay("2024-06-01")
	if err != nil {
		t.Fatal(err)
	}
	if day.Location() != loc || day.Day() != 1 || day.Hour() != 0 {
		t.Errorf("ParseDay = %s", day)
	}
	if _, err := svc.ParseDay("06/01/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("ParseDay(bad) err = %v, want ErrInvalidDate", err)
	}
	if now, err := svc.ParseDay(""); err != nil || now.IsZero() {
		t.Errorf("ParseDay(\"\") = %s, %v", now, err)
	}
}

// TestCircularMeanStd verifies that times near midnight average across the
// 24 to 0 boundary instead of producing 12:00.
func TestCircularMeanStd(t *testing.T) {
	tests := []struct {
		name     string
		hours    []float64
		wantMean float64
		spread   bool
	}{
		{"same time", []float64{22, 22, 22}, 22, false},
		{"around midnight", []float64{23, 1}, 0, true},
		{"morning cluster", []float64{7, 7.5, 8}, 7.5, true},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, std := circularMeanStd(tt.hours)
			diff := math.Abs(mean - tt.wantMean)
			if diff > 0.1 && math.Abs(diff-24) > 0.1 {
				t.Errorf("mean = %.2f, want %.2f", mean, tt.wantMean)
			}
			if tt.spread != (std > 0.01) {
				t.Errorf("std = %.4f, spread %v", std, tt.spread)
			}
		})
	}
}

// TestHoursToHHMM verifies the fractional hours formatting.
func TestHoursToHHMM(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, "00:00"},
		{7.5, "07:30"},
		{22.75, "22:45"},
		{24, "00:00"},
		{23.99999, "00:00"},
		{-1, "23:00"},
	}
	for _, tt := range tests {
		if got := hoursToHHMM(tt.hours); got != tt.want {
			t.Errorf("hoursToHHMM(%.5f) = %q, want %q", tt.hours, got, tt.want)
		}
	}
}
