package analysis

import "github.com/claude/gbinsight/internal/models"

// TimestampTranslation shortens timestamps to offsets from the first one it
// sees, so that a day of seconds fits comfortably in float32 chart axes.
type TimestampTranslation struct {
	offset int64
	set    bool
}

func (t *TimestampTranslation) Shorten(ts int64) int64 {
	if !t.set {
		t.offset = ts
		t.set = true
	}
	return ts - t.offset
}

func (t *TimestampTranslation) Expand(short int64) int64 {
	return short + t.offset
}

// StepPoint is one point of a cumulative step curve.
type StepPoint struct {
	Offset int64 `json:"offset"`
	Total  int   `json:"total"`
}

// CumulativeSteps returns the running step total at every sample, with
// timestamps shortened relative to the first sample. The origin is returned
// alongside so callers can expand offsets again.
func CumulativeSteps(samples []models.Sample) (origin int64, points []StepPoint) {
	var (
		tt    TimestampTranslation
		total int
	)
	for _, s := range samples {
		if s.Boundary {
			continue
		}
		total += s.StepCount()
		points = append(points, StepPoint{Offset: tt.Shorten(s.Timestamp), Total: total})
	}
	return tt.Expand(0), points
}
