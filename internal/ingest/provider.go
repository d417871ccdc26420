// Package ingest validates sample payloads and stores them.
package ingest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/claude/gbinsight/internal/models"
	"github.com/google/uuid"
)

// ErrInvalidPayload wraps every validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Result holds the outcome of an ingest operation.
type Result struct {
	DeviceID uuid.UUID `json:"device_id"`

	ActivityReceived int   `json:"activity_received"`
	ActivityInserted int64 `json:"activity_inserted"`
	ActivitySkipped  int64 `json:"activity_skipped"`
	ActivityRejected int   `json:"activity_rejected,omitempty"`

	StressReceived int   `json:"stress_received"`
	StressInserted int64 `json:"stress_inserted"`
	StressSkipped  int64 `json:"stress_skipped"`
	StressRejected int   `json:"stress_rejected,omitempty"`

	Message string `json:"message,omitempty"`
}

// Store is the write side of the sample store.
type Store interface {
	UpsertDevice(ctx context.Context, identifier, name, deviceType string) (*models.Device, error)
	InsertActivitySamples(ctx context.Context, deviceID uuid.UUID, samples []models.Sample) (int64, error)
	InsertStressSamples(ctx context.Context, deviceID uuid.UUID, samples []models.StressSample) (int64, error)
}

// Invalidator drops cached analysis of a device.
type Invalidator interface {
	Invalidate(deviceID uuid.UUID)
}

// Provider stores validated payloads.
type Provider struct {
	store Store
	cache Invalidator
	log   *slog.Logger
}

// NewProvider creates a provider. cache may be nil.
func NewProvider(store Store, cache Invalidator, log *slog.Logger) *Provider {
	return &Provider{store: store, cache: cache, log: log}
}

// Ingest validates payload, registers its device and inserts the samples.
// Samples already stored for the same timestamp are skipped.
func (p *Provider) Ingest(ctx context.Context, payload *models.IngestPayload) (*Result, error) {
	if err := Validate(payload); err != nil {
		return nil, err
	}
	activity, badActivity := CleanActivity(payload.ActivitySamples)
	stress, badStress := CleanStress(payload.StressSamples)

	result := &Result{
		ActivityReceived: len(payload.ActivitySamples),
		ActivityRejected: badActivity,
		StressReceived:   len(payload.StressSamples),
		StressRejected:   badStress,
	}

	d := payload.Device
	dev, err := p.store.UpsertDevice(ctx, d.Identifier, d.Name, d.Type)
	if err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}
	result.DeviceID = dev.ID

	if len(activity) > 0 {
		n, err := p.store.InsertActivitySamples(ctx, dev.ID, activity)
		if err != nil {
			return result, fmt.Errorf("storing activity samples: %w", err)
		}
		result.ActivityInserted = n
		result.ActivitySkipped = int64(len(activity)) - n
	}
	if len(stress) > 0 {
		n, err := p.store.InsertStressSamples(ctx, dev.ID, stress)
		if err != nil {
			return result, fmt.Errorf("storing stress samples: %w", err)
		}
		result.StressInserted = n
		result.StressSkipped = int64(len(stress)) - n
	}

	if p.cache != nil && (result.ActivityInserted > 0 || result.StressInserted > 0) {
		p.cache.Invalidate(dev.ID)
	}
	if result.ActivityRejected > 0 || result.StressRejected > 0 {
		result.Message = fmt.Sprintf("%d activity and %d stress samples were rejected: missing or duplicate timestamps",
			result.ActivityRejected, result.StressRejected)
	}

	p.log.Info("ingest complete",
		"device", dev.ID,
		"activity_inserted", result.ActivityInserted,
		"stress_inserted", result.StressInserted,
		"rejected", result.ActivityRejected+result.StressRejected,
	)
	return result, nil
}

// Validate checks the payload envelope. Individual bad samples are dropped
// by CleanActivity and CleanStress instead.
func Validate(payload *models.IngestPayload) error {
	if payload == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if strings.TrimSpace(payload.Device.Identifier) == "" {
		return fmt.Errorf("%w: device.identifier is required", ErrInvalidPayload)
	}
	if payload.Empty() {
		return fmt.Errorf("%w: no samples", ErrInvalidPayload)
	}
	return nil
}

// CleanActivity sorts samples by timestamp, drops samples without a
// positive timestamp or with a repeated one, and clears negative counters
// and out of range heart rates. It returns the kept samples and the number
// dropped.
func CleanActivity(samples []models.Sample) ([]models.Sample, int) {
	out := make([]models.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Timestamp <= 0 || s.Boundary {
			continue
		}
		if s.Steps != nil && *s.Steps < 0 {
			s.Steps = nil
		}
		if s.DistanceCm != nil && *s.DistanceCm < 0 {
			s.DistanceCm = nil
		}
		if s.HeartRate != nil && (*s.HeartRate < 0 || *s.HeartRate > 255) {
			s.HeartRate = nil
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b models.Sample) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	out = slices.CompactFunc(out, func(a, b models.Sample) bool { return a.Timestamp == b.Timestamp })
	return out, len(samples) - len(out)
}

// CleanStress sorts readings by timestamp and drops those without a
// positive timestamp or with a repeated one. Readings outside 0-100 become
// missing.
func CleanStress(samples []models.StressSample) ([]models.StressSample, int) {
	out := make([]models.StressSample, 0, len(samples))
	for _, s := range samples {
		if s.Timestamp <= 0 {
			continue
		}
		if s.Stress != nil && (*s.Stress < 0 || *s.Stress > 100) {
			s.Stress = nil
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b models.StressSample) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	out = slices.CompactFunc(out, func(a, b models.StressSample) bool { return a.Timestamp == b.Timestamp })
	return out, len(samples) - len(out)
}
