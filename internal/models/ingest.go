package models

// IngestDevice describes the device a payload belongs to.
type IngestDevice struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Type       string `json:"type"`
}

// IngestPayload is the body of POST /api/v1/ingest.
type IngestPayload struct {
	Device          IngestDevice   `json:"device"`
	ActivitySamples []Sample       `json:"activity_samples,omitempty"`
	StressSamples   []StressSample `json:"stress_samples,omitempty"`
}

// Empty reports whether the payload carries no samples.
func (p IngestPayload) Empty() bool {
	return len(p.ActivitySamples) == 0 && len(p.StressSamples) == 0
}
