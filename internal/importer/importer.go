// Package importer loads samples from Gadgetbridge database exports and FIT
// files into the sample store.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claude/gbinsight/internal/config"
	"github.com/claude/gbinsight/internal/ingest"
	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/storage"
)

// DefaultStateTarget keys the state DB entries written by direct imports.
const DefaultStateTarget = "import"

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	Devices        int

	ActivityRead     int
	ActivityInserted int64
	ActivitySkipped  int64

	StressRead     int
	StressInserted int64
	StressSkipped  int64
}

// Ingester stores one payload.
type Ingester interface {
	Ingest(ctx context.Context, payload *models.IngestPayload) (*ingest.Result, error)
}

// LogStore records import runs.
type LogStore interface {
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log storage.ImportLog) error
}

// Importer reads exports and FIT files and hands the samples to an Ingester.
type Importer struct {
	ing    Ingester
	logs   LogStore
	state  *StateDB
	cfg    config.ImportConfig
	log    *slog.Logger
	dryRun bool
	target string
	stats  Stats
}

// New creates an Importer. logs and state may be nil.
func New(ing Ingester, logs LogStore, state *StateDB, cfg config.ImportConfig, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{ing: ing, logs: logs, state: state, cfg: cfg, log: log, dryRun: dryRun, target: DefaultStateTarget}
}

// WithStateTarget keys state entries by target, so the same export can be
// sent to several destinations.
func (imp *Importer) WithStateTarget(target string) *Importer {
	imp.target = target
	return imp
}

// Import reads every device of the export at path. An export that was
// already imported unchanged is skipped.
func (imp *Importer) Import(ctx context.Context, path string) (*Stats, error) {
	skip, mark, err := imp.checkState(path)
	if err != nil {
		return &imp.stats, err
	}
	if skip {
		imp.log.Info("export unchanged since last import, skipping", "path", path)
		imp.stats.FilesSkipped++
		return &imp.stats, nil
	}

	exp, err := OpenExport(path)
	if err != nil {
		return &imp.stats, err
	}
	defer exp.Close()

	devices, err := exp.Devices(ctx)
	if err != nil {
		return &imp.stats, err
	}
	for _, d := range devices {
		payload, err := imp.readDevice(ctx, exp, d)
		if err != nil {
			return &imp.stats, fmt.Errorf("device %s: %w", d.Identifier, err)
		}
		if payload.Empty() {
			imp.log.Debug("device has no samples", "device", d.Identifier)
			continue
		}
		imp.stats.Devices++
		if err := imp.store(ctx, "export", payload); err != nil {
			return &imp.stats, fmt.Errorf("device %s: %w", d.Identifier, err)
		}
	}

	imp.stats.FilesProcessed++
	if mark != nil {
		if err := mark(); err != nil {
			imp.log.Warn("failed to record import state", "path", path, "error", err)
		}
	}
	return &imp.stats, nil
}

// readDevice collects the samples of d from all configured tables.
func (imp *Importer) readDevice(ctx context.Context, exp *Export, d ExportDevice) (*models.IngestPayload, error) {
	typ := imp.cfg.DeviceType
	if typ == "" {
		typ = strings.ToLower(d.Type)
	}
	payload := &models.IngestPayload{
		Device: models.IngestDevice{Identifier: d.Identifier, Name: d.Name, Type: typ},
	}
	for _, t := range imp.cfg.ActivityTables {
		samples, err := exp.ActivitySamples(ctx, d.ID, t)
		if err != nil {
			return nil, err
		}
		payload.ActivitySamples = append(payload.ActivitySamples, samples...)
	}
	for _, t := range imp.cfg.StressTables {
		samples, err := exp.StressSamples(ctx, d.ID, t)
		if err != nil {
			return nil, err
		}
		payload.StressSamples = append(payload.StressSamples, samples...)
	}
	return payload, nil
}

// ImportFIT reads a FIT activity file recorded by the device with the given
// identifier.
func (imp *Importer) ImportFIT(ctx context.Context, path, identifier string) (*Stats, error) {
	if strings.TrimSpace(identifier) == "" {
		return &imp.stats, fmt.Errorf("a device identifier is required for FIT files")
	}
	skip, mark, err := imp.checkState(path)
	if err != nil {
		return &imp.stats, err
	}
	if skip {
		imp.log.Info("FIT file unchanged since last import, skipping", "path", path)
		imp.stats.FilesSkipped++
		return &imp.stats, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return &imp.stats, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	samples, err := DecodeFIT(f)
	if err != nil {
		return &imp.stats, fmt.Errorf("%s: %w", path, err)
	}
	payload := &models.IngestPayload{
		Device:          models.IngestDevice{Identifier: identifier, Type: imp.cfg.DeviceType},
		ActivitySamples: samples,
	}
	if !payload.Empty() {
		imp.stats.Devices++
		if err := imp.store(ctx, "fit", payload); err != nil {
			return &imp.stats, err
		}
	}

	imp.stats.FilesProcessed++
	if mark != nil {
		if err := mark(); err != nil {
			imp.log.Warn("failed to record import state", "path", path, "error", err)
		}
	}
	return &imp.stats, nil
}

// checkState hashes path and looks it up in the state DB. mark records the
// file as done and is nil when there is no state DB or in dry-run mode.
func (imp *Importer) checkState(path string) (skip bool, mark func() error, err error) {
	if imp.state == nil || imp.dryRun {
		return false, nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	hash, err := HashFile(abs)
	if err != nil {
		return false, nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	done, err := imp.state.Done(imp.target, abs, info.Size(), hash)
	if err != nil {
		return false, nil, fmt.Errorf("reading import state: %w", err)
	}
	return done, func() error { return imp.state.MarkDone(imp.target, abs, info.Size(), hash) }, nil
}

// store ingests payload, or only counts it in dry-run mode, and records the
// run in the import log.
func (imp *Importer) store(ctx context.Context, source string, payload *models.IngestPayload) error {
	imp.stats.ActivityRead += len(payload.ActivitySamples)
	imp.stats.StressRead += len(payload.StressSamples)
	if imp.dryRun {
		imp.log.Info("dry run: would ingest",
			"device", payload.Device.Identifier,
			"activity", len(payload.ActivitySamples),
			"stress", len(payload.StressSamples),
		)
		return nil
	}

	start := time.Now()
	meta := logMetadata(payload)
	logID := imp.beginLog(ctx, source, payload, meta)
	res, err := imp.ing.Ingest(ctx, payload)
	imp.finishLog(ctx, logID, payload, meta, res, err, start)
	if err != nil {
		return err
	}

	imp.stats.ActivityInserted += res.ActivityInserted
	imp.stats.ActivitySkipped += res.ActivitySkipped
	imp.stats.StressInserted += res.StressInserted
	imp.stats.StressSkipped += res.StressSkipped
	imp.log.Info("imported device",
		"device", payload.Device.Identifier,
		"activity_inserted", res.ActivityInserted,
		"stress_inserted", res.StressInserted,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func logMetadata(payload *models.IngestPayload) *json.RawMessage {
	meta, _ := json.Marshal(map[string]string{"identifier": payload.Device.Identifier, "type": payload.Device.Type})
	raw := json.RawMessage(meta)
	return &raw
}

func (imp *Importer) beginLog(ctx context.Context, source string, payload *models.IngestPayload, meta *json.RawMessage) int64 {
	if imp.logs == nil {
		return 0
	}
	id, err := imp.logs.InsertImportLog(ctx, storage.ImportLog{
		Source:           source,
		Status:           "running",
		ActivityReceived: len(payload.ActivitySamples),
		StressReceived:   len(payload.StressSamples),
		Metadata:         meta,
	})
	if err != nil {
		imp.log.Warn("failed to write import log", "error", err)
		return 0
	}
	return id
}

func (imp *Importer) finishLog(ctx context.Context, id int64, payload *models.IngestPayload, meta *json.RawMessage, res *ingest.Result, ingestErr error, start time.Time) {
	if imp.logs == nil || id == 0 {
		return
	}
	ms := int(time.Since(start).Milliseconds())
	entry := storage.ImportLog{
		Status:           "success",
		ActivityReceived: len(payload.ActivitySamples),
		StressReceived:   len(payload.StressSamples),
		DurationMs:       &ms,
		Metadata:         meta,
	}
	if res != nil {
		entry.DeviceID = &res.DeviceID
		entry.ActivityInserted = res.ActivityInserted
		entry.StressInserted = res.StressInserted
	}
	if ingestErr != nil {
		msg := ingestErr.Error()
		entry.Status = "error"
		entry.ErrorMessage = &msg
	}
	if err := imp.logs.UpdateImportLog(ctx, id, entry); err != nil {
		imp.log.Warn("failed to update import log", "id", id, "error", err)
	}
}
