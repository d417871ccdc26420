package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/claude/gbinsight/internal/models"
)

// SleepConfig holds the thresholds of sleep session detection, in seconds.
type SleepConfig struct {
	// MinSessionLength is the asleep time a session must exceed to be kept.
	MinSessionLength int64
	// MaxWakePhase is the longest non-sleep stretch inside one session.
	MaxWakePhase int64
}

func DefaultSleepConfig() SleepConfig {
	return SleepConfig{
		MinSessionLength: 5 * 60,
		MaxWakePhase:     2 * 60 * 60,
	}
}

func (c SleepConfig) validate() error {
	if c.MinSessionLength < 0 {
		return errors.New("min session length must not be negative")
	}
	if c.MaxWakePhase <= 0 {
		return errors.New("max wake phase must be positive")
	}
	return nil
}

// SleepAnalyzer groups sleep-stage samples into sleep sessions.
type SleepAnalyzer struct {
	cfg SleepConfig
}

func NewSleepAnalyzer(cfg SleepConfig) (*SleepAnalyzer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sleep config: %w", err)
	}
	return &SleepAnalyzer{cfg: cfg}, nil
}

// SleepTotals sums stage durations over several sessions, in seconds.
type SleepTotals struct {
	LightSec  int64 `json:"light_sec"`
	DeepSec   int64 `json:"deep_sec"`
	REMSec    int64 `json:"rem_sec"`
	AwakeSec  int64 `json:"awake_sec"`
	AsleepSec int64 `json:"asleep_sec"`
}

// SleepDay is the sleep picture of one night.
type SleepDay struct {
	Sessions     []models.SleepSession `json:"sessions"`
	Totals       SleepTotals           `json:"totals"`
	HeartRateAvg *float64              `json:"heart_rate_avg,omitempty"`
	HeartRateMin *float64              `json:"heart_rate_min,omitempty"`
	HeartRateMax *float64              `json:"heart_rate_max,omitempty"`
}

// Analyze finds the sessions in samples and sums them up.
func (a *SleepAnalyzer) Analyze(samples []models.Sample) SleepDay {
	sessions := a.Sessions(samples)
	day := SleepDay{Sessions: sessions, Totals: Totals(sessions)}

	var hr Accumulator
	for _, s := range samples {
		if !s.Kind.IsSleep() {
			continue
		}
		if v, ok := s.ValidHeartRate(); ok {
			hr.Add(float64(v))
		}
	}
	day.HeartRateAvg, day.HeartRateMin, day.HeartRateMax = accStats(&hr)
	return day
}

// Sessions walks samples ordered by timestamp. Inside a session the time
// since the previous sample is credited to the current sample's stage, or to
// the wake timer if the sample is not a sleep stage. A session closes once
// the wake timer exceeds MaxWakePhase.
func (a *SleepAnalyzer) Sessions(samples []models.Sample) []models.SleepSession {
	var (
		result    []models.SleepSession
		cur       *sleepBuilder
		sinceLast int64
		prev      *models.Sample
	)
	for i := range samples {
		s := &samples[i]
		if s.Boundary {
			continue
		}
		opened := false
		if s.Kind.IsSleep() {
			if cur == nil {
				cur = &sleepBuilder{start: s.Timestamp}
				opened = true
			}
			cur.end = s.Timestamp
			sinceLast = 0
		}
		switch {
		case opened:
			cur.credit(s, 0)
		case prev == nil:
		case cur != nil && s.Kind.IsSleep():
			cur.credit(s, s.Timestamp-prev.Timestamp)
		default:
			sinceLast += s.Timestamp - prev.Timestamp
		}
		if cur != nil && sinceLast > a.cfg.MaxWakePhase {
			if cur.asleep() > a.cfg.MinSessionLength {
				result = append(result, cur.build())
			}
			cur = nil
		}
		prev = s
	}
	if cur != nil && cur.asleep() > a.cfg.MinSessionLength {
		result = append(result, cur.build())
	}
	return result
}

// Totals sums stage durations over sessions.
func Totals(sessions []models.SleepSession) SleepTotals {
	var t SleepTotals
	for _, s := range sessions {
		t.LightSec += s.LightSec
		t.DeepSec += s.DeepSec
		t.REMSec += s.REMSec
		t.AwakeSec += s.AwakeSec
	}
	t.AsleepSec = t.LightSec + t.DeepSec + t.REMSec
	return t
}

type sleepBuilder struct {
	start, end              int64
	light, deep, rem, awake int64
	hr                      Accumulator
	intensity               float64
}

func (b *sleepBuilder) credit(s *models.Sample, d int64) {
	switch s.Kind {
	case models.KindLightSleep:
		b.light += d
		b.intensity += s.Intensity
	case models.KindDeepSleep:
		b.deep += d
		b.intensity += s.Intensity
	case models.KindREMSleep:
		b.rem += d
	case models.KindAwakeSleep:
		b.awake += d
	}
	if v, ok := s.ValidHeartRate(); ok {
		b.hr.Add(float64(v))
	}
}

func (b *sleepBuilder) asleep() int64 {
	return b.light + b.deep + b.rem
}

func (b *sleepBuilder) build() models.SleepSession {
	s := models.SleepSession{
		Start:          time.Unix(b.start, 0).UTC(),
		End:            time.Unix(b.end, 0).UTC(),
		LightSec:       b.light,
		DeepSec:        b.deep,
		REMSec:         b.rem,
		AwakeSec:       b.awake,
		IntensityTotal: b.intensity,
	}
	s.HeartRateAvg, s.HeartRateMin, s.HeartRateMax = accStats(&b.hr)
	return s
}

// accStats returns avg, min and max of acc, all nil when it is empty.
func accStats(acc *Accumulator) (avg, lo, hi *float64) {
	if acc.Count() == 0 {
		return nil, nil, nil
	}
	a, _ := acc.Average()
	l, _ := acc.Min()
	h, _ := acc.Max()
	return &a, &l, &h
}
