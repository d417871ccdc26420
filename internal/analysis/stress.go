package analysis

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/claude/gbinsight/internal/models"
)

// StressConfig describes how a device reports stress.
type StressConfig struct {
	// Ranges are the lower bounds of relaxed, mild, moderate and high.
	// Readings below Ranges[0] are unknown.
	Ranges [4]int
	// SampleRate is the nominal spacing of readings in seconds.
	SampleRate int64
	// Interval is the bucket length of devices that report one value per
	// bucket, in seconds. Zero means readings are continuous.
	Interval int64
	// Delta is the gap left at both edges of an interval bucket.
	Delta int64
}

// DefaultStressConfig matches a continuous device reporting once a minute.
func DefaultStressConfig() StressConfig {
	return StressConfig{
		Ranges:     [4]int{1, 40, 60, 80},
		SampleRate: 60,
	}
}

func (c StressConfig) validate() error {
	for i := 1; i < len(c.Ranges); i++ {
		if c.Ranges[i] <= c.Ranges[i-1] {
			return fmt.Errorf("ranges must be strictly ascending, got %v", c.Ranges)
		}
	}
	if c.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}
	if c.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if c.Interval > 0 && (c.Delta < 0 || 2*c.Delta >= c.Interval) {
		return fmt.Errorf("delta %d does not fit interval %d", c.Delta, c.Interval)
	}
	return nil
}

// Continuous-mode gap handling: a reading followed by a gap longer than
// gapFactor sample periods only holds for holdFactor periods.
const (
	gapFactor  = 10
	holdFactor = 5
)

// StressClassifier maps stress readings to zones and zone time.
type StressClassifier struct {
	cfg StressConfig
}

func NewStressClassifier(cfg StressConfig) (*StressClassifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("stress config: %w", err)
	}
	return &StressClassifier{cfg: cfg}, nil
}

func (c *StressClassifier) Config() StressConfig { return c.cfg }

// Zone classifies a single reading. Negative values mean no reading.
func (c *StressClassifier) Zone(stress int) models.StressZone {
	r := c.cfg.Ranges
	switch {
	case stress < 0 || stress < r[0]:
		return models.StressUnknown
	case stress < r[1]:
		return models.StressRelaxed
	case stress < r[2]:
		return models.StressMild
	case stress < r[3]:
		return models.StressModerate
	default:
		return models.StressHigh
	}
}

// StressSegment is a stretch [Start, End) spent in one zone.
type StressSegment struct {
	Start  int64             `json:"start"`
	End    int64             `json:"end"`
	Zone   models.StressZone `json:"zone"`
	Stress int               `json:"stress"`
}

// StressDay is the stress picture of one period.
type StressDay struct {
	Timeline []StressSegment   `json:"timeline"`
	Tally    models.StressTally `json:"tally"`
	Average  *int              `json:"average,omitempty"`
}

// Analyze builds the timeline, zone tally and average for [start, end).
func (c *StressClassifier) Analyze(samples []models.StressSample, start, end int64) StressDay {
	timeline := c.Timeline(samples, start, end)
	day := StressDay{Timeline: timeline, Tally: tallySegments(timeline)}
	if avg, ok := c.Average(samples); ok {
		day.Average = &avg
	}
	return day
}

// Timeline covers [start, end) with non-overlapping zone segments. Time
// without a reading is unknown.
func (c *StressClassifier) Timeline(samples []models.StressSample, start, end int64) []StressSegment {
	if end <= start {
		return nil
	}
	if !slices.IsSortedFunc(samples, byStressTime) {
		samples = slices.Clone(samples)
		slices.SortStableFunc(samples, byStressTime)
	}
	tl := timeline{start: start, end: end, cursor: start}
	if c.cfg.Interval > 0 {
		c.intervalTimeline(&tl, samples)
	} else {
		c.continuousTimeline(&tl, samples)
	}
	tl.push(StressSegment{Start: tl.cursor, End: end, Zone: models.StressUnknown, Stress: -1})
	return tl.segs
}

// Tally returns seconds per zone in [start, end). The sum never exceeds end-start.
func (c *StressClassifier) Tally(samples []models.StressSample, start, end int64) models.StressTally {
	return tallySegments(c.Timeline(samples, start, end))
}

// Average is the rounded mean of all positive readings.
func (c *StressClassifier) Average(samples []models.StressSample) (int, bool) {
	var acc Accumulator
	for _, s := range samples {
		if v := s.Value(); v > 0 {
			acc.Add(float64(v))
		}
	}
	avg, ok := acc.Average()
	if !ok {
		return 0, false
	}
	return int(math.Round(avg)), true
}

func (c *StressClassifier) continuousTimeline(tl *timeline, samples []models.StressSample) {
	rate := c.cfg.SampleRate
	for i, s := range samples {
		v := s.Value()
		seg := StressSegment{Start: s.Timestamp, Zone: c.Zone(v), Stress: v}
		next := s.Timestamp + rate
		if i+1 < len(samples) {
			next = samples[i+1].Timestamp
		}
		seg.End = next
		if next-s.Timestamp > gapFactor*rate {
			seg.End = s.Timestamp + holdFactor*rate
		}
		tl.unknownUntil(seg.Start)
		tl.push(seg)
	}
}

func (c *StressClassifier) intervalTimeline(tl *timeline, samples []models.StressSample) {
	iv, delta := c.cfg.Interval, c.cfg.Delta
	var (
		bucket int64
		value  = -1
	)
	flush := func() {
		if value < 0 {
			return
		}
		bs := bucket * iv
		seg := StressSegment{Start: bs + delta, End: bs + iv - delta, Zone: c.Zone(value), Stress: value}
		tl.unknownUntil(seg.Start)
		tl.push(seg)
	}
	for _, s := range samples {
		v := s.Value()
		if v <= 0 {
			continue
		}
		b := floorDiv(s.Timestamp, iv)
		if value >= 0 && b != bucket {
			flush()
		}
		bucket, value = b, v
	}
	flush()
}

type timeline struct {
	start, end int64
	cursor     int64
	segs       []StressSegment
}

func (tl *timeline) unknownUntil(ts int64) {
	tl.push(StressSegment{Start: tl.cursor, End: ts, Zone: models.StressUnknown, Stress: -1})
}

// push clips seg to the window and to the cursor, then appends it, joining
// it with the previous segment when both carry the same reading.
func (tl *timeline) push(seg StressSegment) {
	seg.Start = max(seg.Start, tl.start, tl.cursor)
	seg.End = min(seg.End, tl.end)
	if seg.End <= seg.Start {
		return
	}
	if n := len(tl.segs); n > 0 {
		last := &tl.segs[n-1]
		if last.End == seg.Start && last.Zone == seg.Zone && last.Stress == seg.Stress {
			last.End = seg.End
			tl.cursor = seg.End
			return
		}
	}
	tl.segs = append(tl.segs, seg)
	tl.cursor = seg.End
}

func tallySegments(segs []StressSegment) models.StressTally {
	tally := make(models.StressTally, len(models.StressZones))
	for _, z := range models.StressZones {
		tally[z] = 0
	}
	for _, s := range segs {
		tally[s.Zone] += s.End - s.Start
	}
	return tally
}

func byStressTime(a, b models.StressSample) int {
	return cmp.Compare(a.Timestamp, b.Timestamp)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
