package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionType tells how an ActivitySession came to be.
type SessionType int

const (
	// SessionRegular is a session that closed after an idle phase.
	SessionRegular SessionType = iota
	// SessionOngoing is still open at the end of the analysed samples.
	SessionOngoing
	// SessionSummary aggregates all sessions of a day.
	SessionSummary
	// SessionEmpty stands in where no session exists.
	SessionEmpty
)

func (t SessionType) String() string {
	switch t {
	case SessionRegular:
		return "regular"
	case SessionOngoing:
		return "ongoing"
	case SessionSummary:
		return "summary"
	case SessionEmpty:
		return "empty"
	}
	return fmt.Sprintf("SessionType(%d)", int(t))
}

func (t SessionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *SessionType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for c := SessionRegular; c <= SessionEmpty; c++ {
		if c.String() == name {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown session type %q", name)
}

// ActivitySession is a contiguous block of activity found by step segmentation.
type ActivitySession struct {
	Start            time.Time    `json:"start"`
	End              time.Time    `json:"end"`
	ActiveSteps      int          `json:"active_steps"`
	HeartRateAverage int          `json:"heart_rate_avg"`
	Intensity        float64      `json:"intensity"`
	DistanceM        float64      `json:"distance_m"`
	Kind             ActivityKind `json:"kind"`
	Type             SessionType  `json:"type"`
}

// Duration is End minus Start.
func (s ActivitySession) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// StepSummary is the SUMMARY session of a day plus its day-level counters.
type StepSummary struct {
	ActivitySession
	// DurationSec is the summed length of all sessions, not End minus Start.
	DurationSec   int64 `json:"duration_sec"`
	SessionCount  int   `json:"session_count"`
	TotalDaySteps int   `json:"total_day_steps"`
	Empty         bool  `json:"empty"`
}

// SleepSession is one uninterrupted sleep block with time per stage in seconds.
type SleepSession struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	LightSec       int64     `json:"light_sec"`
	DeepSec        int64     `json:"deep_sec"`
	REMSec         int64     `json:"rem_sec"`
	AwakeSec       int64     `json:"awake_sec"`
	HeartRateAvg   *float64  `json:"heart_rate_avg,omitempty"`
	HeartRateMin   *float64  `json:"heart_rate_min,omitempty"`
	HeartRateMax   *float64  `json:"heart_rate_max,omitempty"`
	IntensityTotal float64   `json:"intensity_total"`
}

// AsleepSec is light, deep and REM time together.
func (s SleepSession) AsleepSec() int64 {
	return s.LightSec + s.DeepSec + s.REMSec
}

// StressZone is a band of the 0-100 stress scale.
type StressZone int

const (
	StressUnknown StressZone = iota
	StressRelaxed
	StressMild
	StressModerate
	StressHigh
)

// StressZones lists the zones in ascending order.
var StressZones = []StressZone{StressUnknown, StressRelaxed, StressMild, StressModerate, StressHigh}

func (z StressZone) String() string {
	switch z {
	case StressUnknown:
		return "unknown"
	case StressRelaxed:
		return "relaxed"
	case StressMild:
		return "mild"
	case StressModerate:
		return "moderate"
	case StressHigh:
		return "high"
	}
	return fmt.Sprintf("StressZone(%d)", int(z))
}

func (z StressZone) MarshalJSON() ([]byte, error) {
	return json.Marshal(z.String())
}

func (z *StressZone) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	zone, ok := ParseStressZone(name)
	if !ok {
		return fmt.Errorf("unknown stress zone %q", name)
	}
	*z = zone
	return nil
}

// ParseStressZone looks up a zone by name.
func ParseStressZone(name string) (StressZone, bool) {
	for _, z := range StressZones {
		if z.String() == name {
			return z, true
		}
	}
	return StressUnknown, false
}

// StressTally holds seconds spent per zone.
type StressTally map[StressZone]int64

// Known sums all zones except unknown.
func (t StressTally) Known() int64 {
	var sum int64
	for z, sec := range t {
		if z != StressUnknown {
			sum += sec
		}
	}
	return sum
}

// Total sums all zones.
func (t StressTally) Total() int64 {
	var sum int64
	for _, sec := range t {
		sum += sec
	}
	return sum
}

// MarshalJSON renders the tally with zone names as keys.
func (t StressTally) MarshalJSON() ([]byte, error) {
	out := make(map[string]int64, len(StressZones))
	for _, z := range StressZones {
		out[z.String()] = t[z]
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a tally keyed by zone names. Unknown names are an error.
func (t *StressTally) UnmarshalJSON(data []byte) error {
	var in map[string]int64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(StressTally, len(in))
	for name, sec := range in {
		z, ok := ParseStressZone(name)
		if !ok {
			return fmt.Errorf("unknown stress zone %q", name)
		}
		out[z] = sec
	}
	*t = out
	return nil
}
