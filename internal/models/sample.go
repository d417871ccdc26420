package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Heart rate readings outside (MinValidHeartRate, MaxValidHeartRate) are
// sensor noise or "no contact" markers and are ignored by every aggregate.
const (
	MinValidHeartRate = 10
	MaxValidHeartRate = 250
)

// Sample is one activity measurement, usually one per minute.
// Nil pointer fields mean the device did not measure that value.
type Sample struct {
	Timestamp  int64        `json:"ts"`
	Steps      *int         `json:"steps,omitempty"`
	DistanceCm *int         `json:"distance_cm,omitempty"`
	HeartRate  *int         `json:"heart_rate,omitempty"`
	Intensity  float64      `json:"intensity"`
	Kind       ActivityKind `json:"kind"`
	// Boundary marks a synthetic sample that only pins a period edge.
	Boundary bool `json:"boundary,omitempty"`
}

// StepCount returns the measured steps, or 0 when missing or negative.
func (s Sample) StepCount() int {
	if s.Steps == nil || *s.Steps < 0 {
		return 0
	}
	return *s.Steps
}

// ValidHeartRate returns the heart rate and whether it is a plausible reading.
func (s Sample) ValidHeartRate() (int, bool) {
	if s.HeartRate == nil {
		return 0, false
	}
	hr := *s.HeartRate
	return hr, hr > MinValidHeartRate && hr < MaxValidHeartRate
}

// Time returns the sample timestamp as UTC time.
func (s Sample) Time() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// StressSample is one stress reading on a 0-100 scale.
type StressSample struct {
	Timestamp int64 `json:"ts"`
	Stress    *int  `json:"stress,omitempty"`
}

// Value returns the reading, or -1 when missing.
func (s StressSample) Value() int {
	if s.Stress == nil {
		return -1
	}
	return *s.Stress
}

// Int returns a pointer to v, for building samples with optional fields.
func Int(v int) *int {
	return &v
}

// Device is a wearable that produced samples.
type Device struct {
	ID         uuid.UUID `json:"id"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
}

// deviceNamespace scopes device UUIDs so the same hardware identifier
// always maps to the same ID across importer, uploader and server.
var deviceNamespace = uuid.MustParse("8f2b6c1e-4a4d-5d3b-9a57-3f1e0c7d2b90")

// DeviceID derives the stable device UUID for a hardware identifier (usually a MAC address).
func DeviceID(identifier string) uuid.UUID {
	return uuid.NewSHA1(deviceNamespace, []byte(NormalizeIdentifier(identifier)))
}

// NormalizeIdentifier is the stored form of a hardware identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}
