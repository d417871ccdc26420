package importer

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/claude/gbinsight/internal/analysis"
	"github.com/claude/gbinsight/internal/models"
	"github.com/tormoder/fit"
)

// Invalid field markers of the FIT protocol.
const (
	fitInvalidUint8  = 0xFF
	fitInvalidUint32 = 0xFFFFFFFF
)

// DecodeFIT reads an activity FIT file and condenses its records into one
// sample per minute.
func DecodeFIT(r io.Reader) ([]models.Sample, error) {
	f, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding FIT file: %w", err)
	}
	act, err := f.Activity()
	if err != nil {
		return nil, fmt.Errorf("reading FIT activity: %w", err)
	}
	return recordsToSamples(act.Records), nil
}

// FITFiles returns path itself, or the .fit files directly inside it
// when path is a directory.
func FITFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".fit") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// minute accumulates the records of one sample minute.
type minute struct {
	start    int64
	steps    float64
	hr       analysis.Accumulator
	distance int64
	hasDist  bool
}

// recordsToSamples buckets records by minute. Cadence is in strides per
// minute, so each record adds 2 * cadence * dt / 60 steps, with dt the time
// to the next record capped at one minute. Distance is cumulative in
// centimetres; a sample gets the distance covered since the previous one.
func recordsToSamples(records []*fit.RecordMsg) []models.Sample {
	var (
		out      []models.Sample
		cur      *minute
		lastDist int64 = -1
	)
	flush := func() {
		if cur == nil {
			return
		}
		s := models.Sample{Timestamp: cur.start, Kind: models.KindActivity}
		steps := int(math.Round(cur.steps))
		s.Steps = models.Int(steps)
		if steps > 0 {
			s.Kind = models.KindWalking
		}
		if avg, ok := cur.hr.Average(); ok {
			s.HeartRate = models.Int(int(math.Round(avg)))
		}
		if cur.hasDist {
			d := cur.distance
			if lastDist >= 0 {
				d -= lastDist
			}
			lastDist = cur.distance
			s.DistanceCm = models.Int(int(max(d, 0)))
		}
		out = append(out, s)
	}

	for i, rec := range records {
		if rec == nil || rec.Timestamp.IsZero() {
			continue
		}
		ts := rec.Timestamp.Unix()
		bucket := ts - ts%60
		if cur == nil || cur.start != bucket {
			flush()
			cur = &minute{start: bucket}
		}

		dt := int64(1)
		if next := nextRecord(records, i); next != nil {
			dt = min(max(next.Timestamp.Unix()-ts, 0), 60)
		}
		if rec.Cadence != fitInvalidUint8 {
			cur.steps += 2 * float64(rec.Cadence) * float64(dt) / 60
		}
		if rec.HeartRate != fitInvalidUint8 && rec.HeartRate > 0 {
			cur.hr.Add(float64(rec.HeartRate))
		}
		if rec.Distance != fitInvalidUint32 {
			cur.distance = int64(rec.Distance)
			cur.hasDist = true
		}
	}
	flush()
	return out
}

func nextRecord(records []*fit.RecordMsg, i int) *fit.RecordMsg {
	for _, r := range records[i+1:] {
		if r != nil && !r.Timestamp.IsZero() {
			return r
		}
	}
	return nil
}
