package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/claude/gbinsight/internal/models"
)

// StepConfig holds the thresholds of step session segmentation.
// Durations are in seconds.
type StepConfig struct {
	MinSessionLength        int64
	MaxIdlePhase            int64
	MinStepsPerMinute       int
	MinStepsPerMinuteForRun int
	// StepLengthCm converts steps to distance when a sample carries none.
	StepLengthCm int
}

// DefaultStepConfig mirrors the defaults of the phone app: five minute
// sessions, five minute idle tolerance, 40 spm active, 120 spm running.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		MinSessionLength:        5 * 60,
		MaxIdlePhase:            5 * 60,
		MinStepsPerMinute:       40,
		MinStepsPerMinuteForRun: 120,
		StepLengthCm:            75,
	}
}

func (c StepConfig) validate() error {
	if c.MinSessionLength <= 0 {
		return errors.New("min session length must be positive")
	}
	if c.MaxIdlePhase <= 0 {
		return errors.New("max idle phase must be positive")
	}
	if c.MinStepsPerMinute < 0 || c.MinStepsPerMinuteForRun < 0 {
		return errors.New("steps per minute thresholds must not be negative")
	}
	if c.StepLengthCm < 0 {
		return errors.New("step length must not be negative")
	}
	return nil
}

// Activity kind thresholds used when steps alone do not indicate running.
const (
	walkingMinSteps      = 200
	exerciseMinHR        = 90
	exerciseMinIntensity = 15
)

// StepAnalyzer finds activity sessions in a day of samples.
type StepAnalyzer struct {
	cfg          StepConfig
	minIntensity float64
}

// NewStepAnalyzer validates cfg and returns an analyzer.
func NewStepAnalyzer(cfg StepConfig) (*StepAnalyzer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("step config: %w", err)
	}
	minIntensity := float64(cfg.MinStepsPerMinute) * 0.01
	minIntensity = max(0, min(1, minIntensity))
	return &StepAnalyzer{cfg: cfg, minIntensity: minIntensity}, nil
}

// Config returns the analyzer's thresholds.
func (a *StepAnalyzer) Config() StepConfig { return a.cfg }

// Segmentation is the result of Segment.
type Segmentation struct {
	Sessions      []models.ActivitySession
	TotalDaySteps int
}

// StepDay bundles everything derived from one day of samples.
type StepDay struct {
	Sessions []models.ActivitySession `json:"sessions"`
	Ongoing  *models.ActivitySession  `json:"ongoing,omitempty"`
	Summary  models.StepSummary       `json:"summary"`
}

// Analyze segments samples and summarises the result.
func (a *StepAnalyzer) Analyze(samples []models.Sample) StepDay {
	seg := a.Segment(samples)
	day := StepDay{
		Sessions: seg.Sessions,
		Summary:  a.Summary(seg.Sessions, seg.TotalDaySteps),
	}
	if s, ok := OngoingSession(seg.Sessions); ok {
		day.Ongoing = &s
	}
	return day
}

// Segment splits samples, ordered by timestamp, into activity sessions.
// Boundary samples are ignored.
func (a *StepAnalyzer) Segment(samples []models.Sample) Segmentation {
	sg := segmenter{a: a}
	for _, s := range samples {
		if s.Boundary {
			continue
		}
		sg.totalSteps += s.StepCount()
		sg.feed(s)
	}
	sg.finish()
	return Segmentation{Sessions: sg.sessions, TotalDaySteps: sg.totalSteps}
}

// isActive decides whether a sample continues a session.
func (a *StepAnalyzer) isActive(s models.Sample) bool {
	steps := s.StepCount()
	return steps > a.cfg.MinStepsPerMinute || (s.Intensity > a.minIntensity && steps > 0)
}

func (a *StepAnalyzer) distanceCm(s models.Sample) int {
	if s.DistanceCm != nil && *s.DistanceCm >= 0 {
		return *s.DistanceCm
	}
	return s.StepCount() * a.cfg.StepLengthCm
}

// DetectActivityKind classifies a finished session. Steps per minute use
// whole minutes and integer division; a session under a minute has none.
func (a *StepAnalyzer) DetectActivityKind(lengthSec int64, activeSteps, avgHR int, intensity float64) models.ActivityKind {
	var spm int
	if minutes := int(lengthSec / 60); minutes > 0 {
		spm = activeSteps / minutes
	}
	switch {
	case spm > a.cfg.MinStepsPerMinuteForRun:
		return models.KindRunning
	case activeSteps > walkingMinSteps:
		return models.KindWalking
	case avgHR > exerciseMinHR && intensity > exerciseMinIntensity:
		return models.KindExercise
	default:
		return models.KindActivity
	}
}

// Summary aggregates sessions into a SUMMARY session. The heart rate is the
// plain mean of the per-session averages, sessions without readings included.
func (a *StepAnalyzer) Summary(sessions []models.ActivitySession, totalDaySteps int) models.StepSummary {
	sum := models.StepSummary{
		ActivitySession: models.ActivitySession{
			Kind: models.KindUnknown,
			Type: models.SessionSummary,
		},
		SessionCount:  len(sessions),
		TotalDaySteps: totalDaySteps,
		Empty:         len(sessions) == 0,
	}
	var hr Accumulator
	for i, s := range sessions {
		if i == 0 || s.Start.Before(sum.Start) {
			sum.Start = s.Start
		}
		if s.End.After(sum.End) {
			sum.End = s.End
		}
		sum.ActiveSteps += s.ActiveSteps
		sum.DistanceM += s.DistanceM
		sum.Intensity += s.Intensity
		sum.DurationSec += int64(s.Duration() / time.Second)
		hr.Add(float64(s.HeartRateAverage))
	}
	if avg, ok := hr.Average(); ok {
		sum.HeartRateAverage = int(avg)
	}
	return sum
}

// OngoingSession returns the session still open at the end of the samples.
// When there is none it returns an EMPTY session and false.
func OngoingSession(sessions []models.ActivitySession) (models.ActivitySession, bool) {
	for _, s := range sessions {
		if s.Type == models.SessionOngoing {
			return s, true
		}
	}
	return models.ActivitySession{Type: models.SessionEmpty}, false
}

type segState int

const (
	stateNoSession segState = iota
	stateInSession
	stateInShortBreak
)

// tally collects what a run of samples contributes to a session.
type tally struct {
	steps      int
	distanceCm int
	intensity  float64
	hr         Accumulator
}

func (t *tally) add(s models.Sample, distanceCm int) {
	t.steps += s.StepCount()
	t.distanceCm += distanceCm
	t.intensity += s.Intensity
	if hr, ok := s.ValidHeartRate(); ok {
		t.hr.Add(float64(hr))
	}
}

func (t *tally) merge(o *tally) {
	t.steps += o.steps
	t.distanceCm += o.distanceCm
	t.intensity += o.intensity
	if o.hr.count > 0 {
		if t.hr.count == 0 {
			t.hr.min, t.hr.max = o.hr.min, o.hr.max
		} else {
			t.hr.min = min(t.hr.min, o.hr.min)
			t.hr.max = max(t.hr.max, o.hr.max)
		}
		t.hr.count += o.hr.count
		t.hr.sum += o.hr.sum
	}
}

// segmenter is the session state machine. The candidate holds what is
// confirmed part of the session; pending holds the current idle stretch,
// which joins the candidate only if activity resumes.
type segmenter struct {
	a          *StepAnalyzer
	state      segState
	start      int64
	prevTS     int64
	idle       int64
	candidate  tally
	pending    tally
	sessions   []models.ActivitySession
	totalSteps int
}

func (sg *segmenter) feed(s models.Sample) {
	if sg.state == stateNoSession {
		sg.open(s)
		return
	}
	if sg.a.isActive(s) {
		sg.resume(s)
	} else {
		sg.pause(s)
	}
	sg.prevTS = s.Timestamp
	if sg.idle >= sg.a.cfg.MaxIdlePhase {
		sg.close(s.Timestamp)
	}
}

// open seeds a new candidate with s, whatever its activity level.
func (sg *segmenter) open(s models.Sample) {
	sg.state = stateInSession
	sg.start = s.Timestamp
	sg.prevTS = s.Timestamp
	sg.idle = 0
	sg.candidate = tally{}
	sg.pending = tally{}
	sg.candidate.add(s, sg.a.distanceCm(s))
}

func (sg *segmenter) resume(s models.Sample) {
	sg.candidate.merge(&sg.pending)
	sg.pending = tally{}
	sg.candidate.add(s, sg.a.distanceCm(s))
	sg.idle = 0
	sg.state = stateInSession
}

func (sg *segmenter) pause(s models.Sample) {
	dist := 0
	if s.DistanceCm != nil && *s.DistanceCm >= 0 {
		dist = *s.DistanceCm
	} else if s.StepCount() > 0 {
		dist = s.StepCount() * sg.a.cfg.StepLengthCm
	}
	sg.pending.add(s, dist)
	sg.idle += s.Timestamp - sg.prevTS
	sg.state = stateInShortBreak
}

// close ends the candidate after an idle phase that started at now minus
// the idle stretch, and emits it if it is long enough.
func (sg *segmenter) close(now int64) {
	sg.emit(now-sg.idle, now-sg.start-sg.idle, models.SessionRegular)
	sg.state = stateNoSession
}

// finish emits a candidate still open at the end of the samples. It ends at
// the last sample, but the trailing idle time does not count as length.
func (sg *segmenter) finish() {
	if sg.state == stateNoSession {
		return
	}
	sg.emit(sg.prevTS, sg.prevTS-sg.start-sg.idle, models.SessionOngoing)
	sg.state = stateNoSession
}

func (sg *segmenter) emit(end, length int64, typ models.SessionType) {
	if length >= sg.a.cfg.MinSessionLength {
		sg.sessions = append(sg.sessions, sg.session(end, length, typ))
	}
}

func (sg *segmenter) session(end, length int64, typ models.SessionType) models.ActivitySession {
	c := &sg.candidate
	hrAvg := 0
	if avg, ok := c.hr.Average(); ok {
		hrAvg = int(avg)
	}
	return models.ActivitySession{
		Start:            time.Unix(sg.start, 0).UTC(),
		End:              time.Unix(end, 0).UTC(),
		ActiveSteps:      c.steps,
		HeartRateAverage: hrAvg,
		Intensity:        c.intensity,
		DistanceM:        float64(c.distanceCm) * 0.01,
		Kind:             sg.a.DetectActivityKind(length, c.steps, hrAvg, c.intensity),
		Type:             typ,
	}
}
