package mcp

import (
	"context"
	"time"

	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/report"
	"github.com/google/uuid"
)

// DataSource abstracts the report layer for MCP tools. Both *report.Service
// (local) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	// ParseDay reads a YYYY-MM-DD date, today when empty.
	ParseDay(raw string) (time.Time, error)
	Devices(ctx context.Context) ([]models.Device, error)
	Device(ctx context.Context, id uuid.UUID) (*models.Device, error)

	Steps(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.StepReport, error)
	Sleep(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.SleepReport, error)
	Stress(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.StressReport, error)
	HeartRate(ctx context.Context, deviceID uuid.UUID, day time.Time) (*report.HeartRateReport, error)
	Amounts(ctx context.Context, deviceID uuid.UUID, day time.Time, sleepDay bool) (*report.AmountsReport, error)

	StepPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.StepPeriod, error)
	SleepPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.SleepPeriod, error)
	StressPeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.StressPeriod, error)
	HeartRatePeriod(ctx context.Context, deviceID uuid.UUID, end time.Time, n int) (*report.HeartRatePeriod, error)
}

// Compile-time check: *report.Service satisfies DataSource.
var _ DataSource = (*report.Service)(nil)
