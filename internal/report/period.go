package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/claude/gbinsight/internal/models"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

// MaxPeriodDays bounds the length of a period report.
const MaxPeriodDays = 366

// ErrInvalidPeriod is returned for a period length outside 1..MaxPeriodDays.
var ErrInvalidPeriod = errors.New("invalid period length")

// ErrInvalidDate is returned for a day that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")

// Days returns the n calendar days ending on end, oldest first.
func (s *Service) Days(end time.Time, n int) ([]time.Time, error) {
	if n < 1 || n > MaxPeriodDays {
		return nil, fmt.Errorf("%w: %d days", ErrInvalidPeriod, n)
	}
	y, m, d := end.In(s.opts.Location).Date()
	days := make([]time.Time, n)
	for i := range n {
		days[i] = time.Date(y, m, d-(n-1-i), 0, 0, 0, 0, s.opts.Location)
	}
	return days, nil
}

// eachDay runs fn for every day concurrently, bounded by the worker limit.
// Results keep the order of days.
func eachDay[T any](ctx context.Context, workers int, days []time.Time, fn func(context.Context, time.Time) (T, error)) ([]T, error) {
	out := make([]T, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, day := range days {
		g.Go(func() error {
			r, err := fn(gctx, day)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Spread summarises a series of daily values.
type Spread struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// spread returns nil when values is empty.
func spread(values []float64) *Spread {
	if len(values) == 0 {
		return nil
	}
	mean, _ := stats.Mean(values)
	std, _ := stats.StandardDeviation(values)
	lo, _ := stats.Min(values)
	hi, _ := stats.Max(values)
	return &Spread{Mean: round2(mean), StdDev: round2(std), Min: lo, Max: hi}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// StressPeriodDay is one day of a stress period.
type StressPeriodDay struct {
	Date    string             `json:"date"`
	Tally   models.StressTally `json:"tally"`
	Average *int               `json:"average,omitempty"`
}

// StressPeriod aggregates stress zones over several days.
type StressPeriod struct {
	DeviceID     uuid.UUID          `json:"device_id"`
	From         string             `json:"from"`
	To           string             `json:"to"`
	Days         []StressPeriodDay  `json:"days"`
	Tally        models.StressTally `json:"tally"`
	DaysWithData int                `json:"days_with_data"`
	Average      *Spread            `json:"average,omitempty"`
}

// StressPeriod returns daily stress tallies for the n days ending on end.
// The period tally only counts days that have readings.
func (s *Service) StressPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*StressPeriod, error) {
	days, err := s.Days(end, n)
	if err != nil {
		return nil, err
	}
	reports, err := eachDay(ctx, s.opts.Workers, days, func(ctx context.Context, day time.Time) (*StressReport, error) {
		return s.Stress(ctx, deviceID, day)
	})
	if err != nil {
		return nil, err
	}

	p := &StressPeriod{
		DeviceID: deviceID,
		From:     reports[0].Date,
		To:       reports[len(reports)-1].Date,
		Tally:    models.StressTally{},
	}
	var averages []float64
	for _, r := range reports {
		p.Days = append(p.Days, StressPeriodDay{Date: r.Date, Tally: r.Tally, Average: r.Average})
		if r.Tally.Known() == 0 {
			continue
		}
		p.DaysWithData++
		for zone, sec := range r.Tally {
			p.Tally[zone] += sec
		}
		if r.Average != nil {
			averages = append(averages, float64(*r.Average))
		}
	}
	p.Average = spread(averages)
	return p, nil
}

// HeartRatePeriodDay is one day of a heart-rate period.
type HeartRatePeriodDay struct {
	Date    string `json:"date"`
	Average *int   `json:"average,omitempty"`
	Min     *int   `json:"min,omitempty"`
	Max     *int   `json:"max,omitempty"`
}

// HeartRatePeriod aggregates daily heart rate over several days.
type HeartRatePeriod struct {
	DeviceID uuid.UUID            `json:"device_id"`
	From     string               `json:"from"`
	To       string               `json:"to"`
	Days     []HeartRatePeriodDay `json:"days"`
	Average  *Spread              `json:"average,omitempty"`
	Min      *int                 `json:"min,omitempty"`
	Max      *int                 `json:"max,omitempty"`
}

// HeartRatePeriod returns the daily averages and extremes for the n days
// ending on end.
func (s *Service) HeartRatePeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*HeartRatePeriod, error) {
	days, err := s.Days(end, n)
	if err != nil {
		return nil, err
	}
	reports, err := eachDay(ctx, s.opts.Workers, days, func(ctx context.Context, day time.Time) (*HeartRateReport, error) {
		return s.HeartRate(ctx, deviceID, day)
	})
	if err != nil {
		return nil, err
	}

	p := &HeartRatePeriod{DeviceID: deviceID, From: reports[0].Date, To: reports[len(reports)-1].Date}
	var averages []float64
	for _, r := range reports {
		p.Days = append(p.Days, HeartRatePeriodDay{Date: r.Date, Average: r.Average, Min: r.Min, Max: r.Max})
		if r.Average == nil {
			continue
		}
		averages = append(averages, float64(*r.Average))
		if p.Min == nil || *r.Min < *p.Min {
			p.Min = r.Min
		}
		if p.Max == nil || *r.Max > *p.Max {
			p.Max = r.Max
		}
	}
	p.Average = spread(averages)
	return p, nil
}

// SleepPeriodDay is one night of a sleep period.
type SleepPeriodDay struct {
	Date      string `json:"date"`
	Sessions  int    `json:"sessions"`
	AsleepSec int64  `json:"asleep_sec"`
	LightSec  int64  `json:"light_sec"`
	DeepSec   int64  `json:"deep_sec"`
	REMSec    int64  `json:"rem_sec"`
	AwakeSec  int64  `json:"awake_sec"`
}

// SleepPeriod aggregates nights over several days. Bedtime and wake time are
// circular means of the first session start and last session end per night.
type SleepPeriod struct {
	DeviceID    uuid.UUID        `json:"device_id"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Days        []SleepPeriodDay `json:"days"`
	Nights      int              `json:"nights"`
	AsleepHours *Spread          `json:"asleep_hours,omitempty"`
	DeepHours   *Spread          `json:"deep_hours,omitempty"`
	AvgBedtime  string           `json:"avg_bedtime,omitempty"`
	AvgWaketime string           `json:"avg_waketime,omitempty"`
	// Consistency of bedtime and wake time as circular stddev in hours.
	BedtimeStdHr  float64 `json:"bedtime_stddev_hr"`
	WaketimeStdHr float64 `json:"waketime_stddev_hr"`
}

// SleepPeriod returns nightly sleep totals for the n nights ending on end.
func (s *Service) SleepPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*SleepPeriod, error) {
	days, err := s.Days(end, n)
	if err != nil {
		return nil, err
	}
	reports, err := eachDay(ctx, s.opts.Workers, days, func(ctx context.Context, day time.Time) (*SleepReport, error) {
		return s.Sleep(ctx, deviceID, day)
	})
	if err != nil {
		return nil, err
	}

	p := &SleepPeriod{DeviceID: deviceID, From: reports[0].Date, To: reports[len(reports)-1].Date}
	var asleep, deep, bedtimes, waketimes []float64
	for _, r := range reports {
		t := r.Totals
		p.Days = append(p.Days, SleepPeriodDay{
			Date:      r.Date,
			Sessions:  len(r.Sessions),
			AsleepSec: t.AsleepSec,
			LightSec:  t.LightSec,
			DeepSec:   t.DeepSec,
			REMSec:    t.REMSec,
			AwakeSec:  t.AwakeSec,
		})
		if len(r.Sessions) == 0 {
			continue
		}
		p.Nights++
		asleep = append(asleep, float64(t.AsleepSec)/3600)
		deep = append(deep, float64(t.DeepSec)/3600)
		bedtimes = append(bedtimes, hourOfDay(r.Sessions[0].Start.In(s.opts.Location)))
		waketimes = append(waketimes, hourOfDay(r.Sessions[len(r.Sessions)-1].End.In(s.opts.Location)))
	}
	p.AsleepHours = spread(asleep)
	p.DeepHours = spread(deep)
	if p.Nights > 0 {
		bed, bedStd := circularMeanStd(bedtimes)
		wake, wakeStd := circularMeanStd(waketimes)
		p.AvgBedtime = hoursToHHMM(bed)
		p.AvgWaketime = hoursToHHMM(wake)
		p.BedtimeStdHr = round2(bedStd)
		p.WaketimeStdHr = round2(wakeStd)
	}
	return p, nil
}

// StepPeriodDay is one day of a step period.
type StepPeriodDay struct {
	Date        string `json:"date"`
	Steps       int    `json:"steps"`
	ActiveSteps int    `json:"active_steps"`
	Sessions    int    `json:"sessions"`
	ActiveSec   int64  `json:"active_sec"`
}

// StepPeriod aggregates daily steps over several days.
type StepPeriod struct {
	DeviceID uuid.UUID       `json:"device_id"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Days     []StepPeriodDay `json:"days"`
	Total    int             `json:"total"`
	Steps    *Spread         `json:"steps,omitempty"`
}

// StepPeriod returns daily step totals for the n days ending on end. Days
// without any steps are left out of the spread.
func (s *Service) StepPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*StepPeriod, error) {
	days, err := s.Days(end, n)
	if err != nil {
		return nil, err
	}
	reports, err := eachDay(ctx, s.opts.Workers, days, func(ctx context.Context, day time.Time) (*StepReport, error) {
		return s.Steps(ctx, deviceID, day)
	})
	if err != nil {
		return nil, err
	}

	p := &StepPeriod{DeviceID: deviceID, From: reports[0].Date, To: reports[len(reports)-1].Date}
	var totals []float64
	for _, r := range reports {
		sum := r.Summary
		p.Days = append(p.Days, StepPeriodDay{
			Date:        r.Date,
			Steps:       sum.TotalDaySteps,
			ActiveSteps: sum.ActiveSteps,
			Sessions:    sum.SessionCount,
			ActiveSec:   sum.DurationSec,
		})
		p.Total += sum.TotalDaySteps
		if sum.TotalDaySteps > 0 {
			totals = append(totals, float64(sum.TotalDaySteps))
		}
	}
	p.Steps = spread(totals)
	return p, nil
}
