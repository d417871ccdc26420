// Package report loads samples for a device and day, runs the analyzers and
// caches the results.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/gbinsight/internal/analysis"
	"github.com/claude/gbinsight/internal/cache"
	"github.com/claude/gbinsight/internal/models"
	"github.com/google/uuid"
)

// SampleSource is the read side of the sample store.
type SampleSource interface {
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	QueryActivitySamples(ctx context.Context, deviceID uuid.UUID, start, end int64) ([]models.Sample, error)
	QueryStressSamples(ctx context.Context, deviceID uuid.UUID, start, end int64) ([]models.StressSample, error)
}

// Options configures the analyzers and day boundaries.
type Options struct {
	Steps     analysis.StepConfig
	Sleep     analysis.SleepConfig
	HeartRate analysis.HeartRateConfig
	// Stress returns the stress settings for a device type.
	Stress   func(deviceType string) analysis.StressConfig
	Location *time.Location
	// SleepDayOffset moves the sleep day window, usually -12h so a night
	// belongs to the day it ends on.
	SleepDayOffset time.Duration
	SampleSeconds  int64
	CacheSize      int
	// CacheTTL bounds how long a computed day is served from the cache.
	// Zero keeps days until Invalidate or eviction.
	CacheTTL time.Duration
	// Workers bounds the days analysed concurrently in period reports.
	Workers int
}

// DefaultOptions returns the analyzer defaults with UTC days.
func DefaultOptions() Options {
	return Options{
		Steps:          analysis.DefaultStepConfig(),
		Sleep:          analysis.DefaultSleepConfig(),
		HeartRate:      analysis.DefaultHeartRateConfig(),
		Stress:         func(string) analysis.StressConfig { return analysis.DefaultStressConfig() },
		Location:       time.UTC,
		SleepDayOffset: -12 * time.Hour,
		SampleSeconds:  60,
		CacheSize:      512,
		CacheTTL:       5 * time.Minute,
		Workers:        4,
	}
}

// Service produces day and period reports.
type Service struct {
	src  SampleSource
	log  *slog.Logger
	opts Options

	steps *analysis.StepAnalyzer
	sleep *analysis.SleepAnalyzer
	hr    *analysis.HeartRateAnalyzer

	stepDays   *cache.DayCache[*StepReport]
	sleepDays  *cache.DayCache[*SleepReport]
	stressDays *cache.DayCache[*StressReport]
	hrDays     *cache.DayCache[*HeartRateReport]
	amountDays *cache.DayCache[*AmountsReport]

	mu          sync.Mutex
	classifiers map[string]*analysis.StressClassifier
}

// New validates opts and returns a Service.
func New(src SampleSource, opts Options, log *slog.Logger) (*Service, error) {
	s := &Service{src: src, log: log, opts: opts, classifiers: map[string]*analysis.StressClassifier{}}
	if s.opts.Location == nil {
		s.opts.Location = time.UTC
	}
	if s.opts.Stress == nil {
		s.opts.Stress = DefaultOptions().Stress
	}
	if s.opts.Workers <= 0 {
		s.opts.Workers = 1
	}
	if s.opts.SampleSeconds <= 0 {
		s.opts.SampleSeconds = 60
	}

	var err error
	if s.steps, err = analysis.NewStepAnalyzer(opts.Steps); err != nil {
		return nil, err
	}
	if s.sleep, err = analysis.NewSleepAnalyzer(opts.Sleep); err != nil {
		return nil, err
	}
	if s.hr, err = analysis.NewHeartRateAnalyzer(opts.HeartRate); err != nil {
		return nil, err
	}
	if s.stepDays, err = cache.New[*StepReport](opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if s.sleepDays, err = cache.New[*SleepReport](opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if s.stressDays, err = cache.New[*StressReport](opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if s.hrDays, err = cache.New[*HeartRateReport](opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if s.amountDays, err = cache.New[*AmountsReport](opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	return s, nil
}

// Invalidate drops all cached days of a device, after new samples arrived.
func (s *Service) Invalidate(deviceID uuid.UUID) {
	n := s.stepDays.InvalidateDevice(deviceID) +
		s.sleepDays.InvalidateDevice(deviceID) +
		s.stressDays.InvalidateDevice(deviceID) +
		s.hrDays.InvalidateDevice(deviceID) +
		s.amountDays.InvalidateDevice(deviceID)
	if n > 0 {
		s.log.Debug("report cache invalidated", "device", deviceID, "entries", n)
	}
}

func (s *Service) Devices(ctx context.Context) ([]models.Device, error) {
	return s.src.ListDevices(ctx)
}

func (s *Service) Device(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	return s.src.GetDevice(ctx, id)
}

// Location is the time zone days are cut in.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// ParseDay reads a YYYY-MM-DD date in the service's zone. An empty string is
// today.
func (s *Service) ParseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().In(s.opts.Location), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, s.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidDate, raw)
	}
	return day, nil
}

// Window is a half-open [Start, End) range of unix seconds.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// dayWindow returns the calendar day containing day, in the service's zone,
// shifted by offset.
func (s *Service) dayWindow(day time.Time, offset time.Duration) (string, Window) {
	y, m, d := day.In(s.opts.Location).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.opts.Location)
	return midnight.Format(time.DateOnly), Window{
		Start: midnight.Add(offset).Unix(),
		End:   midnight.AddDate(0, 0, 1).Add(offset).Unix(),
	}
}

func (s *Service) classifier(deviceType string) (*analysis.StressClassifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.classifiers[deviceType]; ok {
		return c, nil
	}
	c, err := analysis.NewStressClassifier(s.opts.Stress(deviceType))
	if err != nil {
		return nil, fmt.Errorf("device type %q: %w", deviceType, err)
	}
	s.classifiers[deviceType] = c
	return c, nil
}

// StepReport is the step analysis of one day.
type StepReport struct {
	DeviceID uuid.UUID `json:"device_id"`
	Date     string    `json:"date"`
	Window   Window    `json:"window"`
	analysis.StepDay
	CumulativeOrigin int64                `json:"cumulative_origin"`
	Cumulative       []analysis.StepPoint `json:"cumulative"`
}

// Steps returns the activity sessions of the day containing day.
func (s *Service) Steps(ctx context.Context, deviceID uuid.UUID, day time.Time) (*StepReport, error) {
	date, w := s.dayWindow(day, 0)
	return s.stepDays.GetOrCompute(cache.DayKey{DeviceID: deviceID, DayStart: w.Start}, func() (*StepReport, error) {
		samples, err := s.src.QueryActivitySamples(ctx, deviceID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("loading samples for %s: %w", date, err)
		}
		r := &StepReport{DeviceID: deviceID, Date: date, Window: w, StepDay: s.steps.Analyze(samples)}
		r.CumulativeOrigin, r.Cumulative = analysis.CumulativeSteps(samples)
		return r, nil
	})
}

// SleepReport is the sleep analysis of one night.
type SleepReport struct {
	DeviceID uuid.UUID `json:"device_id"`
	Date     string    `json:"date"`
	Window   Window    `json:"window"`
	analysis.SleepDay
}

// Sleep returns the sleep sessions of the night ending on day.
func (s *Service) Sleep(ctx context.Context, deviceID uuid.UUID, day time.Time) (*SleepReport, error) {
	date, w := s.dayWindow(day, s.opts.SleepDayOffset)
	return s.sleepDays.GetOrCompute(cache.DayKey{DeviceID: deviceID, DayStart: w.Start}, func() (*SleepReport, error) {
		samples, err := s.src.QueryActivitySamples(ctx, deviceID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("loading samples for %s: %w", date, err)
		}
		return &SleepReport{DeviceID: deviceID, Date: date, Window: w, SleepDay: s.sleep.Analyze(samples)}, nil
	})
}

// StressReport is the stress analysis of one day.
type StressReport struct {
	DeviceID uuid.UUID `json:"device_id"`
	Date     string    `json:"date"`
	Window   Window    `json:"window"`
	Ranges   [4]int    `json:"ranges"`
	analysis.StressDay
}

// Stress returns the zone timeline and tally of the day containing day.
func (s *Service) Stress(ctx context.Context, deviceID uuid.UUID, day time.Time) (*StressReport, error) {
	date, w := s.dayWindow(day, 0)
	return s.stressDays.GetOrCompute(cache.DayKey{DeviceID: deviceID, DayStart: w.Start}, func() (*StressReport, error) {
		dev, err := s.src.GetDevice(ctx, deviceID)
		if err != nil {
			return nil, fmt.Errorf("loading device: %w", err)
		}
		c, err := s.classifier(dev.Type)
		if err != nil {
			return nil, err
		}
		samples, err := s.src.QueryStressSamples(ctx, deviceID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("loading stress samples for %s: %w", date, err)
		}
		return &StressReport{
			DeviceID:  deviceID,
			Date:      date,
			Window:    w,
			Ranges:    c.Config().Ranges,
			StressDay: c.Analyze(samples, w.Start, w.End),
		}, nil
	})
}

// HeartRateReport is the heart-rate analysis of one day.
type HeartRateReport struct {
	DeviceID uuid.UUID `json:"device_id"`
	Date     string    `json:"date"`
	Window   Window    `json:"window"`
	analysis.HeartRateDay
}

// HeartRate returns the heart-rate summary and series of the day containing day.
func (s *Service) HeartRate(ctx context.Context, deviceID uuid.UUID, day time.Time) (*HeartRateReport, error) {
	date, w := s.dayWindow(day, 0)
	return s.hrDays.GetOrCompute(cache.DayKey{DeviceID: deviceID, DayStart: w.Start}, func() (*HeartRateReport, error) {
		samples, err := s.src.QueryActivitySamples(ctx, deviceID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("loading samples for %s: %w", date, err)
		}
		hr, err := s.hr.Analyze(samples)
		if err != nil {
			return nil, fmt.Errorf("analysing heart rate for %s: %w", date, err)
		}
		return &HeartRateReport{DeviceID: deviceID, Date: date, Window: w, HeartRateDay: hr}, nil
	})
}

// AmountsReport is the per-kind breakdown of one day.
type AmountsReport struct {
	DeviceID uuid.UUID `json:"device_id"`
	Date     string    `json:"date"`
	Window   Window    `json:"window"`
	analysis.ActivityAmounts
}

// Amounts returns time and steps per activity kind. With sleepDay set the
// window is the sleep day of the date instead of the calendar day.
func (s *Service) Amounts(ctx context.Context, deviceID uuid.UUID, day time.Time, sleepDay bool) (*AmountsReport, error) {
	offset := time.Duration(0)
	if sleepDay {
		offset = s.opts.SleepDayOffset
	}
	date, w := s.dayWindow(day, offset)
	return s.amountDays.GetOrCompute(cache.DayKey{DeviceID: deviceID, DayStart: w.Start}, func() (*AmountsReport, error) {
		samples, err := s.src.QueryActivitySamples(ctx, deviceID, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("loading samples for %s: %w", date, err)
		}
		return &AmountsReport{
			DeviceID:        deviceID,
			Date:            date,
			Window:          w,
			ActivityAmounts: analysis.CalculateActivityAmounts(samples, s.opts.SampleSeconds),
		}, nil
	})
}
