package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportLog represents a single import or ingest operation's outcome.
type ImportLog struct {
	ID               int64            `json:"id"`
	DeviceID         *uuid.UUID       `json:"device_id"`
	CreatedAt        time.Time        `json:"created_at"`
	Source           string           `json:"source"`
	Status           string           `json:"status"`
	ActivityReceived int              `json:"activity_received"`
	ActivityInserted int64            `json:"activity_inserted"`
	StressReceived   int              `json:"stress_received"`
	StressInserted   int64            `json:"stress_inserted"`
	DurationMs       *int             `json:"duration_ms"`
	ErrorMessage     *string          `json:"error_message"`
	Metadata         *json.RawMessage `json:"metadata"`
}

// InsertImportLog creates a new import log entry and returns its ID.
func (db *DB) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO import_logs (device_id, source, status, activity_received, activity_inserted,
		 stress_received, stress_inserted, duration_ms, error_message, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING id`,
		log.DeviceID, log.Source, log.Status, log.ActivityReceived, log.ActivityInserted,
		log.StressReceived, log.StressInserted, log.DurationMs, log.ErrorMessage, log.Metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// UpdateImportLog updates an existing import log entry (typically from "running" to "success" or "error").
func (db *DB) UpdateImportLog(ctx context.Context, id int64, log ImportLog) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE import_logs SET
		 status = $2, activity_received = $3, activity_inserted = $4,
		 stress_received = $5, stress_inserted = $6, duration_ms = $7,
		 error_message = $8, metadata = $9
		 WHERE id = $1`,
		id, log.Status, log.ActivityReceived, log.ActivityInserted,
		log.StressReceived, log.StressInserted, log.DurationMs, log.ErrorMessage, log.Metadata,
	)
	if err != nil {
		return fmt.Errorf("updating import log %d: %w", id, err)
	}
	return nil
}

// QueryImportLogs returns the most recent import logs.
func (db *DB) QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, device_id, created_at, source, status, activity_received, activity_inserted,
		 stress_received, stress_inserted, duration_ms, error_message, metadata
		 FROM import_logs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []ImportLog
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.CreatedAt, &l.Source, &l.Status,
			&l.ActivityReceived, &l.ActivityInserted, &l.StressReceived, &l.StressInserted,
			&l.DurationMs, &l.ErrorMessage, &l.Metadata); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
