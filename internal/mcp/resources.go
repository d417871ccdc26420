package mcp

import (
	"context"
	"encoding/json"

	"github.com/claude/gbinsight/internal/analysis"
	"github.com/claude/gbinsight/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) devices(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	devices, err := h.ds.Devices(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, devices)
}

// deviceSummary condenses the day reports of one device.
type deviceSummary struct {
	Device    models.Device         `json:"device"`
	Steps     *models.StepSummary   `json:"steps,omitempty"`
	Sleep     *analysis.SleepTotals `json:"sleep,omitempty"`
	Stress    models.StressTally    `json:"stress,omitempty"`
	StressAvg *int                  `json:"stress_avg,omitempty"`
	HeartRate *int                  `json:"heart_rate_avg,omitempty"`
}

func (h *handlers) dailySummary(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	today, err := h.ds.ParseDay("")
	if err != nil {
		return nil, err
	}
	devices, err := h.ds.Devices(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		sum := deviceSummary{Device: d}
		if steps, err := h.ds.Steps(ctx, d.ID, today); err != nil {
			h.log.Warn("daily_summary: steps failed", "device", d.ID, "error", err)
		} else {
			sum.Steps = &steps.Summary
		}
		if sleep, err := h.ds.Sleep(ctx, d.ID, today); err != nil {
			h.log.Warn("daily_summary: sleep failed", "device", d.ID, "error", err)
		} else if len(sleep.Sessions) > 0 {
			sum.Sleep = &sleep.Totals
		}
		if stress, err := h.ds.Stress(ctx, d.ID, today); err != nil {
			h.log.Warn("daily_summary: stress failed", "device", d.ID, "error", err)
		} else if stress.Tally.Known() > 0 {
			sum.Stress = stress.Tally
			sum.StressAvg = stress.Average
		}
		if hr, err := h.ds.HeartRate(ctx, d.ID, today); err != nil {
			h.log.Warn("daily_summary: heart rate failed", "device", d.ID, "error", err)
		} else {
			sum.HeartRate = hr.Average
		}
		out = append(out, sum)
	}

	return jsonContents(req.Params.URI, map[string]any{
		"date":    today.Format("2006-01-02"),
		"devices": out,
	})
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
