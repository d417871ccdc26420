package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/gbinsight/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// maxInsertParams stays below the PostgreSQL limit of 65535 bind parameters.
const maxInsertParams = 60000

// InsertActivitySamples batch-inserts samples for a device. Returns the number
// actually inserted (duplicates are skipped via ON CONFLICT DO NOTHING).
func (db *DB) InsertActivitySamples(ctx context.Context, deviceID uuid.UUID, samples []models.Sample) (int64, error) {
	cols := []string{"device_id", "ts", "steps", "distance_cm", "heart_rate", "intensity", "kind"}
	n, err := db.insertRows(ctx, "activity_samples", cols, len(samples), func(i int) []any {
		s := samples[i]
		return []any{deviceID, s.Timestamp, s.Steps, s.DistanceCm, s.HeartRate, s.Intensity, s.Kind.String()}
	})
	if err != nil {
		return n, fmt.Errorf("inserting activity samples: %w", err)
	}
	return n, nil
}

// InsertStressSamples batch-inserts stress readings for a device.
func (db *DB) InsertStressSamples(ctx context.Context, deviceID uuid.UUID, samples []models.StressSample) (int64, error) {
	cols := []string{"device_id", "ts", "stress"}
	n, err := db.insertRows(ctx, "stress_samples", cols, len(samples), func(i int) []any {
		return []any{deviceID, samples[i].Timestamp, samples[i].Stress}
	})
	if err != nil {
		return n, fmt.Errorf("inserting stress samples: %w", err)
	}
	return n, nil
}

// insertRows runs multi-row INSERT statements, split so no statement
// exceeds maxInsertParams.
func (db *DB) insertRows(ctx context.Context, table string, cols []string, n int, row func(i int) []any) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	perStmt := maxInsertParams / len(cols)
	var inserted int64
	for start := 0; start < n; start += perStmt {
		end := min(start+perStmt, n)
		args := make([]any, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			args = append(args, row(i)...)
		}
		tag, err := db.Pool.Exec(ctx, buildInsert(table, cols, end-start), args...)
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// buildInsert returns an INSERT for rows rows of cols with numbered placeholders.
func buildInsert(table string, cols []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES ")
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", r*len(cols)+c+1)
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT DO NOTHING")
	return b.String()
}

// QueryActivitySamples returns a device's samples with start <= ts < end, ascending.
func (db *DB) QueryActivitySamples(ctx context.Context, deviceID uuid.UUID, start, end int64) ([]models.Sample, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT ts, steps, distance_cm, heart_rate, intensity, kind
		 FROM activity_samples
		 WHERE device_id = $1 AND ts >= $2 AND ts < $3
		 ORDER BY ts ASC`,
		deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying activity samples: %w", err)
	}
	defer rows.Close()

	return scanActivitySamples(rows)
}

func scanActivitySamples(rows pgx.Rows) ([]models.Sample, error) {
	var result []models.Sample
	for rows.Next() {
		var (
			s    models.Sample
			kind string
		)
		if err := rows.Scan(&s.Timestamp, &s.Steps, &s.DistanceCm, &s.HeartRate, &s.Intensity, &kind); err != nil {
			return nil, fmt.Errorf("scanning activity sample: %w", err)
		}
		s.Kind, _ = models.ParseActivityKind(kind)
		result = append(result, s)
	}
	return result, rows.Err()
}

// QueryStressSamples returns a device's stress readings with start <= ts < end, ascending.
func (db *DB) QueryStressSamples(ctx context.Context, deviceID uuid.UUID, start, end int64) ([]models.StressSample, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT ts, stress
		 FROM stress_samples
		 WHERE device_id = $1 AND ts >= $2 AND ts < $3
		 ORDER BY ts ASC`,
		deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying stress samples: %w", err)
	}
	defer rows.Close()

	var result []models.StressSample
	for rows.Next() {
		var s models.StressSample
		if err := rows.Scan(&s.Timestamp, &s.Stress); err != nil {
			return nil, fmt.Errorf("scanning stress sample: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
