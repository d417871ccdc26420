package importer

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/claude/gbinsight/internal/config"
	"github.com/claude/gbinsight/internal/ingest"
	"github.com/claude/gbinsight/internal/models"
	"github.com/tormoder/fit"
)

func nullInt(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }

func garminTable() config.ActivityTable {
	return config.ActivityTable{
		Table:           "GARMIN_ACTIVITY_SAMPLE",
		DistanceColumn:  "DISTANCE_CM",
		IntensityScale:  100,
		CumulativeSteps: true,
		TimestampShift:  -60,
		Kinds:           config.DefaultKinds,
	}
}

// TestConvertActivity verifies cumulative step deltas with a counter reset,
// the timestamp shift, intensity scaling and missing-value handling. The
// first counter value carries the day so far, so it yields no steps.
func TestConvertActivity(t *testing.T) {
	raw := []activityRow{
		{Timestamp: 120, Steps: nullInt(100), Intensity: nullInt(50), Kind: nullInt(32), HeartRate: nullInt(80)},
		{Timestamp: 180, Steps: nullInt(150), Kind: nullInt(2), HeartRate: nullInt(255)},
		{Timestamp: 240, Steps: nullInt(30), Kind: nullInt(999), HeartRate: nullInt(-1), Distance: nullInt(-1)},
		{Timestamp: 300, Distance: nullInt(500)},
	}
	got := convertActivity(raw, garminTable())

	steps := []*int{nil, models.Int(50), models.Int(30), nil}
	for i, s := range got {
		if !reflect.DeepEqual(s.Steps, steps[i]) {
			t.Errorf("sample %d steps = %v, want %v", i, s.Steps, steps[i])
		}
	}
	if got[0].Timestamp != 60 || got[0].Intensity != 0.5 || got[0].Kind != models.KindWalking {
		t.Errorf("sample 0 = %+v", got[0])
	}
	if got[1].Kind != models.KindLightSleep || got[1].HeartRate != nil {
		t.Errorf("sample 1 = %+v, want light sleep without heart rate", got[1])
	}
	if got[2].Kind != models.KindUnknown || got[2].HeartRate != nil || got[2].DistanceCm != nil {
		t.Errorf("sample 2 = %+v", got[2])
	}
	if got[3].DistanceCm == nil || *got[3].DistanceCm != 500 {
		t.Errorf("sample 3 distance = %v, want 500", got[3].DistanceCm)
	}
}

// TestConvertActivity_PlainSteps verifies that non-cumulative tables keep
// the raw step values.
func TestConvertActivity_PlainSteps(t *testing.T) {
	tbl := config.ActivityTable{Table: "X", IntensityScale: 1}
	got := convertActivity([]activityRow{
		{Timestamp: 60, Steps: nullInt(10)},
		{Timestamp: 120, Steps: nullInt(5)},
	}, tbl)
	if *got[0].Steps != 10 || *got[1].Steps != 5 {
		t.Errorf("steps = %d, %d, want 10, 5", *got[0].Steps, *got[1].Steps)
	}
}

// TestRecordsToSamples verifies per-minute bucketing of FIT records.
func TestRecordsToSamples(t *testing.T) {
	rec := func(ts int64, cadence, hr uint8, dist uint32) *fit.RecordMsg {
		return &fit.RecordMsg{Timestamp: time.Unix(ts, 0).UTC(), Cadence: cadence, HeartRate: hr, Distance: dist}
	}
	records := []*fit.RecordMsg{
		rec(60, 60, 100, 0),
		rec(90, 60, 110, 5000),
		rec(120, fitInvalidUint8, fitInvalidUint8, fitInvalidUint32),
		rec(150, 0, 90, 9000),
	}
	got := recordsToSamples(records)
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}

	// 2 * 60 * 30/60 twice
	first := got[0]
	if first.Timestamp != 60 || *first.Steps != 120 || *first.HeartRate != 105 || *first.DistanceCm != 5000 {
		t.Errorf("first = ts %d steps %d hr %d dist %d", first.Timestamp, *first.Steps, *first.HeartRate, *first.DistanceCm)
	}
	if first.Kind != models.KindWalking {
		t.Errorf("first kind = %s, want walking", first.Kind)
	}
	second := got[1]
	if *second.Steps != 0 || *second.HeartRate != 90 || *second.DistanceCm != 4000 {
		t.Errorf("second = steps %d hr %d dist %d", *second.Steps, *second.HeartRate, *second.DistanceCm)
	}
	if second.Kind != models.KindActivity {
		t.Errorf("second kind = %s, want activity", second.Kind)
	}
}

// TestStateDB verifies that a file is done only for the same target, size and hash.
func TestStateDB(t *testing.T) {
	st, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if err := st.MarkDone("import", "/a.db", 10, "h1"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		target, path string
		size         int64
		hash         string
		want         bool
	}{
		{"import", "/a.db", 10, "h1", true},
		{"import", "/a.db", 10, "h2", false},
		{"import", "/a.db", 11, "h1", false},
		{"https://x", "/a.db", 10, "h1", false},
	}
	for _, tt := range tests {
		got, err := st.Done(tt.target, tt.path, tt.size, tt.hash)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Done(%s, %s, %d, %s) = %v, want %v", tt.target, tt.path, tt.size, tt.hash, got, tt.want)
		}
	}
}

// TestFITFiles verifies directory listing picks only .fit files in order.
func TestFITFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.fit", "a.FIT", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.fit"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := FITFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.FIT"), filepath.Join(dir, "b.fit")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FITFiles(dir) = %v, want %v", got, want)
	}

	single := filepath.Join(dir, "b.fit")
	if got, err := FITFiles(single); err != nil || len(got) != 1 || got[0] != single {
		t.Errorf("FITFiles(file) = %v, %v", got, err)
	}
	if _, err := FITFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing path")
	}
}

// writeExport creates a minimal export database with one device.
func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Gadgetbridge.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE DEVICE (_id INTEGER PRIMARY KEY, NAME TEXT, IDENTIFIER TEXT, TYPE_NAME TEXT)`,
		`CREATE TABLE GARMIN_ACTIVITY_SAMPLE (TIMESTAMP INTEGER, DEVICE_ID INTEGER, USER_ID INTEGER,
			RAW_INTENSITY INTEGER, STEPS INTEGER, RAW_KIND INTEGER, HEART_RATE INTEGER, DISTANCE_CM INTEGER)`,
		`CREATE TABLE GARMIN_STRESS_SAMPLE (TIMESTAMP INTEGER, DEVICE_ID INTEGER, USER_ID INTEGER, STRESS INTEGER)`,
		`INSERT INTO DEVICE VALUES (1, 'Forerunner', 'aa:bb:cc:dd:ee:ff', 'GARMIN_FORERUNNER_255')`,
		`INSERT INTO DEVICE VALUES (2, 'Empty', '11:22:33:44:55:66', 'GARMIN_VENU')`,
		`INSERT INTO GARMIN_ACTIVITY_SAMPLE VALUES (1060, 1, 1, 20, 100, 32, 90, 7000)`,
		`INSERT INTO GARMIN_ACTIVITY_SAMPLE VALUES (1120, 1, 1, 30, 160, 32, 95, 4500)`,
		`INSERT INTO GARMIN_STRESS_SAMPLE VALUES (1000000, 1, 1, 25)`,
		`INSERT INTO GARMIN_STRESS_SAMPLE VALUES (1060000, 1, 1, -1)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
	return path
}

type recordingIngester struct {
	payloads []*models.IngestPayload
}

func (r *recordingIngester) Ingest(_ context.Context, p *models.IngestPayload) (*ingest.Result, error) {
	r.payloads = append(r.payloads, p)
	return &ingest.Result{
		DeviceID:         models.DeviceID(p.Device.Identifier),
		ActivityInserted: int64(len(p.ActivitySamples)),
		StressInserted:   int64(len(p.StressSamples)),
	}, nil
}

func testImportConfig() config.ImportConfig {
	return config.ImportConfig{
		ActivityTables: []config.ActivityTable{garminTable()},
		StressTables: []config.StressTable{
			{Table: "GARMIN_STRESS_SAMPLE", TimestampMillis: true},
			{Table: "HUAWEI_STRESS_SAMPLE"},
		},
	}
}

// TestImport_Export verifies an end-to-end read of an export, skipping
// devices without samples and tables the export lacks.
func TestImport_Export(t *testing.T) {
	path := writeExport(t)
	ing := &recordingIngester{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	imp := New(ing, nil, st, testImportConfig(), log, false)
	stats, err := imp.Import(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Devices != 1 || stats.ActivityInserted != 2 || stats.StressInserted != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if len(ing.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(ing.payloads))
	}
	p := ing.payloads[0]
	if p.Device.Type != "garmin_forerunner_255" || p.Device.Name != "Forerunner" {
		t.Errorf("device = %+v", p.Device)
	}
	if p.ActivitySamples[0].Timestamp != 1000 || *p.ActivitySamples[1].Steps != 60 {
		t.Errorf("activity = %+v", p.ActivitySamples)
	}
	if p.StressSamples[0].Timestamp != 1000 || p.StressSamples[1].Stress != nil {
		t.Errorf("stress = %+v", p.StressSamples)
	}

	// An unchanged export is skipped on the next run.
	stats, err = New(ing, nil, st, testImportConfig(), log, false).Import(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 || len(ing.payloads) != 1 {
		t.Errorf("second run stats = %+v, payloads = %d", stats, len(ing.payloads))
	}
}

// TestImport_DryRun verifies that a dry run counts samples without ingesting.
func TestImport_DryRun(t *testing.T) {
	path := writeExport(t)
	ing := &recordingIngester{}
	imp := New(ing, nil, nil, testImportConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), true)
	stats, err := imp.Import(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(ing.payloads) != 0 {
		t.Errorf("dry run ingested %d payloads", len(ing.payloads))
	}
	if stats.ActivityRead != 2 || stats.StressRead != 2 || stats.ActivityInserted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestExport_InvalidTable verifies that configured table names are checked.
func TestExport_InvalidTable(t *testing.T) {
	exp, err := OpenExport(writeExport(t))
	if err != nil {
		t.Fatal(err)
	}
	defer exp.Close()
	_, err = exp.ActivitySamples(context.Background(), 1, config.ActivityTable{Table: "X; DROP TABLE DEVICE"})
	if err == nil {
		t.Error("expected error for invalid table name")
	}
}

// TestConvertActivity_MidDayStart verifies that an export starting in the
// middle of a day does not credit the day-to-date counter to one minute.
func TestConvertActivity_MidDayStart(t *testing.T) {
	got := convertActivity([]activityRow{
		{Timestamp: 43260, Steps: nullInt(5400)},
		{Timestamp: 43320},
		{Timestamp: 43380, Steps: nullInt(5480)},
	}, garminTable())

	total := 0
	for _, s := range got {
		total += s.StepCount()
	}
	if got[0].Steps != nil || total != 80 {
		t.Errorf("first steps = %v, total = %d, want nil and 80", got[0].Steps, total)
	}
}
