package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DataStats holds aggregate statistics about all stored data.
type DataStats struct {
	TotalDevices         int64        `json:"total_devices"`
	TotalActivitySamples int64        `json:"total_activity_samples"`
	TotalStressSamples   int64        `json:"total_stress_samples"`
	Devices              []DeviceStat `json:"devices"`
}

// DeviceStat holds sample counts and the covered time range of one device.
type DeviceStat struct {
	DeviceID        uuid.UUID  `json:"device_id"`
	Name            string     `json:"name"`
	ActivitySamples int64      `json:"activity_samples"`
	StressSamples   int64      `json:"stress_samples"`
	EarliestData    *time.Time `json:"earliest_data"`
	LatestData      *time.Time `json:"latest_data"`
}

// GetDataStats returns aggregate statistics over all devices.
func (db *DB) GetDataStats(ctx context.Context) (*DataStats, error) {
	stats := &DataStats{}

	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices`).Scan(&stats.TotalDevices)
	if err != nil {
		return nil, fmt.Errorf("counting devices: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT d.id, d.name,
		        COALESCE(a.n, 0), COALESCE(s.n, 0),
		        LEAST(a.first_ts, s.first_ts), GREATEST(a.last_ts, s.last_ts)
		 FROM devices d
		 LEFT JOIN (SELECT device_id, COUNT(*) AS n, MIN(ts) AS first_ts, MAX(ts) AS last_ts
		            FROM activity_samples GROUP BY device_id) a ON a.device_id = d.id
		 LEFT JOIN (SELECT device_id, COUNT(*) AS n, MIN(ts) AS first_ts, MAX(ts) AS last_ts
		            FROM stress_samples GROUP BY device_id) s ON s.device_id = d.id
		 ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("querying device stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s           DeviceStat
			first, last *int64
		)
		if err := rows.Scan(&s.DeviceID, &s.Name, &s.ActivitySamples, &s.StressSamples, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning device stat: %w", err)
		}
		s.EarliestData = unixPtr(first)
		s.LatestData = unixPtr(last)
		stats.TotalActivitySamples += s.ActivitySamples
		stats.TotalStressSamples += s.StressSamples
		stats.Devices = append(stats.Devices, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func unixPtr(ts *int64) *time.Time {
	if ts == nil {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}
