package importer

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/claude/gbinsight/internal/config"
	"github.com/claude/gbinsight/internal/models"
	_ "modernc.org/sqlite"
)

// tableName guards the configured table and column names, which are
// interpolated into queries.
var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ExportDevice is a row of the DEVICE table of an export.
type ExportDevice struct {
	ID         int64
	Name       string
	Identifier string
	Type       string
}

// Export is a Gadgetbridge database export opened read-only.
type Export struct {
	db   *sql.DB
	path string
}

// OpenExport opens the SQLite export at path without modifying it.
func OpenExport(path string) (*Export, error) {
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening export %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening export %s: %w", path, err)
	}
	return &Export{db: db, path: path}, nil
}

func (e *Export) Close() error {
	return e.db.Close()
}

// columns returns the column names of table, upper-cased. A missing table
// has no columns.
func (e *Export) columns(ctx context.Context, table string) (map[string]bool, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	rows, err := e.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[strings.ToUpper(name)] = true
	}
	return cols, rows.Err()
}

// Devices lists the devices of the export. Exports from older app versions
// have no TYPE_NAME column; their type is left empty.
func (e *Export) Devices(ctx context.Context) ([]ExportDevice, error) {
	cols, err := e.columns(ctx, "DEVICE")
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s has no DEVICE table", e.path)
	}
	typeCol := "''"
	if cols["TYPE_NAME"] {
		typeCol = "COALESCE(TYPE_NAME, '')"
	}
	rows, err := e.db.QueryContext(ctx,
		`SELECT _id, COALESCE(NAME, ''), COALESCE(IDENTIFIER, ''), `+typeCol+` FROM DEVICE ORDER BY _id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var out []ExportDevice
	for rows.Next() {
		var d ExportDevice
		if err := rows.Scan(&d.ID, &d.Name, &d.Identifier, &d.Type); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// activityRow is one raw row of an activity sample table. Missing values
// are NULL or negative.
type activityRow struct {
	Timestamp int64
	Intensity sql.NullInt64
	Steps     sql.NullInt64
	Kind      sql.NullInt64
	HeartRate sql.NullInt64
	Distance  sql.NullInt64
}

// ActivitySamples reads all samples of a device from an activity table,
// ordered by timestamp. A table the export does not have yields nothing.
func (e *Export) ActivitySamples(ctx context.Context, deviceID int64, t config.ActivityTable) ([]models.Sample, error) {
	cols, err := e.columns(ctx, t.Table)
	if err != nil || len(cols) == 0 {
		return nil, err
	}
	distCol := "NULL"
	if t.DistanceColumn != "" && tableName.MatchString(t.DistanceColumn) && cols[strings.ToUpper(t.DistanceColumn)] {
		distCol = t.DistanceColumn
	}
	rows, err := e.db.QueryContext(ctx,
		`SELECT TIMESTAMP, RAW_INTENSITY, STEPS, RAW_KIND, HEART_RATE, `+distCol+`
		 FROM `+t.Table+` WHERE DEVICE_ID = ? ORDER BY TIMESTAMP`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.Table, err)
	}
	defer rows.Close()

	var raw []activityRow
	for rows.Next() {
		var r activityRow
		if err := rows.Scan(&r.Timestamp, &r.Intensity, &r.Steps, &r.Kind, &r.HeartRate, &r.Distance); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", t.Table, err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return convertActivity(raw, t), nil
}

// convertActivity maps raw rows to samples. Cumulative step counters are
// turned into per-sample deltas; a counter that goes down has been reset
// and its value is the delta. The first counter value has no predecessor,
// so its delta is unknown and the sample gets no steps.
func convertActivity(raw []activityRow, t config.ActivityTable) []models.Sample {
	scale := t.IntensityScale
	if scale <= 0 {
		scale = 1
	}
	out := make([]models.Sample, 0, len(raw))
	prevSteps := -1
	for _, r := range raw {
		s := models.Sample{
			Timestamp:  r.Timestamp + int64(t.TimestampShift),
			Steps:      optional(r.Steps),
			HeartRate:  optional(r.HeartRate),
			DistanceCm: optional(r.Distance),
			Kind:       kindOf(r.Kind, t.Kinds),
		}
		if v := optional(r.Intensity); v != nil {
			s.Intensity = float64(*v) / scale
		}
		if s.HeartRate != nil && (*s.HeartRate == 0 || *s.HeartRate == math.MaxUint8) {
			s.HeartRate = nil
		}
		if t.CumulativeSteps && s.Steps != nil {
			cur := *s.Steps
			switch {
			case prevSteps < 0:
				s.Steps = nil
			case cur >= prevSteps:
				s.Steps = models.Int(cur - prevSteps)
			}
			prevSteps = cur
		}
		out = append(out, s)
	}
	return out
}

// optional returns nil for NULL and negative values.
func optional(v sql.NullInt64) *int {
	if !v.Valid || v.Int64 < 0 {
		return nil
	}
	return models.Int(int(v.Int64))
}

func kindOf(raw sql.NullInt64, kinds map[int]string) models.ActivityKind {
	if !raw.Valid {
		return models.KindUnknown
	}
	name, ok := kinds[int(raw.Int64)]
	if !ok {
		return models.KindUnknown
	}
	k, _ := models.ParseActivityKind(name)
	return k
}

// StressSamples reads all stress readings of a device from a stress table.
func (e *Export) StressSamples(ctx context.Context, deviceID int64, t config.StressTable) ([]models.StressSample, error) {
	cols, err := e.columns(ctx, t.Table)
	if err != nil || len(cols) == 0 {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx,
		`SELECT TIMESTAMP, STRESS FROM `+t.Table+` WHERE DEVICE_ID = ? ORDER BY TIMESTAMP`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.Table, err)
	}
	defer rows.Close()

	var out []models.StressSample
	for rows.Next() {
		var (
			ts     int64
			stress sql.NullInt64
		)
		if err := rows.Scan(&ts, &stress); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", t.Table, err)
		}
		if t.TimestampMillis {
			ts /= 1000
		}
		out = append(out, models.StressSample{Timestamp: ts, Stress: optional(stress)})
	}
	return out, rows.Err()
}
