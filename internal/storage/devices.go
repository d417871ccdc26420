package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/gbinsight/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertDevice finds or creates a device by hardware identifier and returns it.
// Name and type are updated when the caller knows them.
func (db *DB) UpsertDevice(ctx context.Context, identifier, name, deviceType string) (*models.Device, error) {
	identifier = models.NormalizeIdentifier(identifier)
	d := &models.Device{}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO devices (id, identifier, name, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier) DO UPDATE
			SET name = COALESCE(NULLIF($3, ''), devices.name),
			    type = COALESCE(NULLIF($4, ''), devices.type)
		RETURNING id, identifier, name, type, created_at
	`, models.DeviceID(identifier), identifier, name, deviceType).
		Scan(&d.ID, &d.Identifier, &d.Name, &d.Type, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting device %s: %w", identifier, err)
	}
	return d, nil
}

// GetDevice returns a device by ID, or ErrNotFound.
func (db *DB) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	d := &models.Device{}
	err := db.Pool.QueryRow(ctx,
		`SELECT id, identifier, name, type, created_at FROM devices WHERE id = $1`, id,
	).Scan(&d.ID, &d.Identifier, &d.Name, &d.Type, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return d, nil
}

// ListDevices returns all devices ordered by name.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, identifier, name, type, created_at FROM devices ORDER BY name, identifier`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var result []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Identifier, &d.Name, &d.Type, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
