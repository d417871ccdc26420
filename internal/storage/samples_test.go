package storage

import (
	"testing"
	"time"
)

// TestBuildInsert verifies placeholder numbering across rows, which must
// line up with the flattened argument list.
func TestBuildInsert(t *testing.T) {
	got := buildInsert("stress_samples", []string{"device_id", "ts", "stress"}, 2)
	want := "INSERT INTO stress_samples (device_id, ts, stress) VALUES ($1,$2,$3),($4,$5,$6) ON CONFLICT DO NOTHING"
	if got != want {
		t.Errorf("buildInsert() =\n%s\nwant\n%s", got, want)
	}
}

// TestMaxInsertParams verifies that a full statement of activity samples
// stays within the PostgreSQL bind parameter limit.
func TestMaxInsertParams(t *testing.T) {
	const cols = 7
	if perStmt := maxInsertParams / cols; perStmt*cols > 65535 {
		t.Errorf("%d rows x %d columns exceeds 65535 parameters", perStmt, cols)
	}
}

// TestUnixPtr verifies NULL handling of aggregate timestamps.
func TestUnixPtr(t *testing.T) {
	if unixPtr(nil) != nil {
		t.Error("unixPtr(nil) should be nil")
	}
	ts := int64(1700000000)
	got := unixPtr(&ts)
	if got == nil || !got.Equal(time.Unix(ts, 0)) || got.Location() != time.UTC {
		t.Errorf("unixPtr(%d) = %v", ts, got)
	}
}
