package analysis

import (
	"fmt"
	"math"

	"github.com/claude/gbinsight/internal/models"
)

// HeartRateConfig controls heart-rate aggregation, in seconds.
type HeartRateConfig struct {
	// MaxGap is how long a reading stays representative. Longer gaps split
	// the series and stop weighting the previous reading.
	MaxGap int64
	// Bucket is the weight of the final reading.
	Bucket int64
}

func DefaultHeartRateConfig() HeartRateConfig {
	return HeartRateConfig{MaxGap: 10 * 60, Bucket: 60}
}

// HeartRatePoint is one valid reading.
type HeartRatePoint struct {
	Timestamp int64 `json:"ts"`
	BPM       int   `json:"bpm"`
}

// HeartRateDay summarises one day of readings.
type HeartRateDay struct {
	Average *int `json:"average,omitempty"`
	Min     *int `json:"min,omitempty"`
	Max     *int `json:"max,omitempty"`
	Count   int  `json:"count"`
	// Series holds the readings split into runs without long gaps.
	Series [][]HeartRatePoint `json:"series"`
}

type HeartRateAnalyzer struct {
	cfg HeartRateConfig
}

func NewHeartRateAnalyzer(cfg HeartRateConfig) (*HeartRateAnalyzer, error) {
	if _, err := NewTimeWeightedAverage(cfg.MaxGap, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("heart rate config: %w", err)
	}
	return &HeartRateAnalyzer{cfg: cfg}, nil
}

// Analyze computes the time-weighted average and extremes of valid readings.
func (a *HeartRateAnalyzer) Analyze(samples []models.Sample) (HeartRateDay, error) {
	avg, _ := NewTimeWeightedAverage(a.cfg.MaxGap, a.cfg.Bucket)
	var (
		day  HeartRateDay
		run  []HeartRatePoint
		last int64
	)
	for _, s := range samples {
		if s.Boundary {
			continue
		}
		hr, ok := s.ValidHeartRate()
		if !ok {
			continue
		}
		if err := avg.Add(s.Timestamp, float64(hr)); err != nil {
			return HeartRateDay{}, fmt.Errorf("heart rate at %d: %w", s.Timestamp, err)
		}
		if len(run) > 0 && s.Timestamp-last > a.cfg.MaxGap {
			day.Series = append(day.Series, run)
			run = nil
		}
		run = append(run, HeartRatePoint{Timestamp: s.Timestamp, BPM: hr})
		last = s.Timestamp
	}
	if len(run) > 0 {
		day.Series = append(day.Series, run)
	}
	day.Count = avg.Count()
	if v, ok := avg.Average(); ok {
		day.Average = roundPtr(v)
	}
	if v, ok := avg.Min(); ok {
		day.Min = roundPtr(v)
	}
	if v, ok := avg.Max(); ok {
		day.Max = roundPtr(v)
	}
	return day, nil
}

func roundPtr(v float64) *int {
	r := int(math.Round(v))
	return &r
}
