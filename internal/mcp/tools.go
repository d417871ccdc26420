package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/storage"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultPeriodDays = 7

// resolveDevice accepts a device ID or the Bluetooth address it was derived
// from and checks that the device exists.
func (h *handlers) resolveDevice(ctx context.Context, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, errors.New("device parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		id = models.DeviceID(raw)
	}
	if _, err := h.ds.Device(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("device %q not found", raw)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// dayTool adapts a single-day report to a tool taking device and date.
func dayTool[T any](h *handlers, name string, fn func(context.Context, uuid.UUID, time.Time) (T, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := h.resolveDevice(ctx, req.GetString("device", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		day, err := h.ds.ParseDay(req.GetString("date", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rep, err := fn(ctx, id, day)
		if err != nil {
			h.log.Error("mcp "+name, "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		return jsonResult(rep)
	}
}

// periodTool adapts a period report to a tool taking device, end date and
// number of days.
func periodTool[T any](h *handlers, name string, fn func(context.Context, uuid.UUID, time.Time, int) (T, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := h.resolveDevice(ctx, req.GetString("device", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		end, err := h.ds.ParseDay(req.GetString("end", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rep, err := fn(ctx, id, end, req.GetInt("days", defaultPeriodDays))
		if err != nil {
			h.log.Error("mcp "+name, "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		return jsonResult(rep)
	}
}

// --- Tool definitions ---

func dayOptions(description string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device ID or Bluetooth address (e.g. AA:BB:CC:DD:EE:FF)")),
		mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD. Defaults to today.")),
	}
}

func periodOptions(description string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device ID or Bluetooth address")),
		mcp.WithString("end", mcp.Description("Last day of the period as YYYY-MM-DD. Defaults to today.")),
		mcp.WithNumber("days", mcp.Description("Number of days, 1 to 366. Defaults to 7.")),
	}
}

var toolListDevices = mcp.NewTool("list_devices",
	mcp.WithDescription("List all devices with their IDs, Bluetooth addresses and types."),
)

var toolGetSteps = mcp.NewTool("get_steps",
	dayOptions("Activity sessions of one day found from per-minute steps: start, end, steps, distance, average heart rate and detected kind (walking, running, exercise). Includes a summary over all sessions and the total steps of the day.")...,
)

var toolGetSleep = mcp.NewTool("get_sleep",
	dayOptions("Sleep sessions of the night ending on the given day, with light, deep, REM and awake seconds and heart rate during sleep.")...,
)

var toolGetStress = mcp.NewTool("get_stress",
	dayOptions("Stress of one day: timeline of zones (relaxed, mild, moderate, high), seconds per zone and the average stress value.")...,
)

var toolGetHeartRate = mcp.NewTool("get_heart_rate",
	dayOptions("Heart rate of one day: time-weighted average, minimum, maximum and the readings split into gap-free series.")...,
)

var toolGetActivityAmounts = mcp.NewTool("get_activity_amounts",
	mcp.WithDescription("Time and steps per activity kind for one day."),
	mcp.WithString("device", mcp.Required(), mcp.Description("Device ID or Bluetooth address")),
	mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD. Defaults to today.")),
	mcp.WithBoolean("sleep_day", mcp.Description("Use the sleep day (noon to noon) instead of the calendar day.")),
)

var toolGetStepPeriod = mcp.NewTool("get_step_period",
	periodOptions("Daily steps over a period with total, mean, standard deviation, minimum and maximum.")...,
)

var toolGetSleepPeriod = mcp.NewTool("get_sleep_period",
	periodOptions("Nightly sleep over a period: asleep and deep hours with spread, average bedtime and wake time and their consistency.")...,
)

var toolGetStressPeriod = mcp.NewTool("get_stress_period",
	periodOptions("Stress zones summed over a period with the spread of daily averages.")...,
)

var toolGetHeartRatePeriod = mcp.NewTool("get_heart_rate_period",
	periodOptions("Daily average heart rate over a period with spread and overall minimum and maximum.")...,
)

// --- Tool handlers ---

func (h *handlers) listDevices(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := h.ds.Devices(ctx)
	if err != nil {
		h.log.Error("mcp list_devices", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(devices)
}

func (h *handlers) getActivityAmounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sleepDay := req.GetBool("sleep_day", false)
	return dayTool(h, "get_activity_amounts", func(ctx context.Context, id uuid.UUID, day time.Time) (any, error) {
		return h.ds.Amounts(ctx, id, day, sleepDay)
	})(ctx, req)
}
