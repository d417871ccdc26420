package analysis

import (
	"slices"

	"github.com/claude/gbinsight/internal/models"
)

// ActivityAmount is the time and steps spent in one kind of activity.
type ActivityAmount struct {
	Kind  models.ActivityKind `json:"kind"`
	Sec   int64               `json:"sec"`
	Steps int                 `json:"steps"`
	First int64               `json:"first"`
	Last  int64               `json:"last"`
}

// ActivityAmounts breaks a day down by activity kind, ordered by kind.
type ActivityAmounts struct {
	Amounts    []ActivityAmount `json:"amounts"`
	TotalSec   int64            `json:"total_sec"`
	TotalSteps int              `json:"total_steps"`
}

// Seconds returns the time spent in kind.
func (a ActivityAmounts) Seconds(kind models.ActivityKind) int64 {
	for _, am := range a.Amounts {
		if am.Kind == kind {
			return am.Sec
		}
	}
	return 0
}

// AsleepSeconds sums light, deep and REM time.
func (a ActivityAmounts) AsleepSeconds() int64 {
	var sec int64
	for _, am := range a.Amounts {
		if am.Kind.IsAsleep() {
			sec += am.Sec
		}
	}
	return sec
}

// CalculateActivityAmounts attributes each sample to its kind. A sample
// stands for the time since the previous one, at most sampleSeconds; the
// first sample counts a full sampleSeconds.
func CalculateActivityAmounts(samples []models.Sample, sampleSeconds int64) ActivityAmounts {
	byKind := map[models.ActivityKind]*ActivityAmount{}
	var (
		out  ActivityAmounts
		prev *models.Sample
	)
	for i := range samples {
		s := &samples[i]
		if s.Boundary {
			continue
		}
		d := sampleSeconds
		if prev != nil {
			d = max(0, min(s.Timestamp-prev.Timestamp, sampleSeconds))
		}
		am, ok := byKind[s.Kind]
		if !ok {
			am = &ActivityAmount{Kind: s.Kind, First: s.Timestamp}
			byKind[s.Kind] = am
		}
		am.Sec += d
		am.Steps += s.StepCount()
		am.Last = s.Timestamp
		out.TotalSec += d
		out.TotalSteps += s.StepCount()
		prev = s
	}
	for _, am := range byKind {
		out.Amounts = append(out.Amounts, *am)
	}
	slices.SortFunc(out.Amounts, func(a, b ActivityAmount) int { return int(a.Kind) - int(b.Kind) })
	return out
}
