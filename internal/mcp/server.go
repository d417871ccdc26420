package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("gbinsight", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Gadgetbridge wearable data. Query activity sessions, sleep, stress zones and heart rate per device and day, or averaged over a period. Devices are addressed by ID or Bluetooth address; dates are YYYY-MM-DD in the server's time zone."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListDevices, Handler: h.listDevices},
		server.ServerTool{Tool: toolGetSteps, Handler: dayTool(h, "get_steps", ds.Steps)},
		server.ServerTool{Tool: toolGetSleep, Handler: dayTool(h, "get_sleep", ds.Sleep)},
		server.ServerTool{Tool: toolGetStress, Handler: dayTool(h, "get_stress", ds.Stress)},
		server.ServerTool{Tool: toolGetHeartRate, Handler: dayTool(h, "get_heart_rate", ds.HeartRate)},
		server.ServerTool{Tool: toolGetActivityAmounts, Handler: h.getActivityAmounts},
		server.ServerTool{Tool: toolGetStepPeriod, Handler: periodTool(h, "get_step_period", ds.StepPeriod)},
		server.ServerTool{Tool: toolGetSleepPeriod, Handler: periodTool(h, "get_sleep_period", ds.SleepPeriod)},
		server.ServerTool{Tool: toolGetStressPeriod, Handler: periodTool(h, "get_stress_period", ds.StressPeriod)},
		server.ServerTool{Tool: toolGetHeartRatePeriod, Handler: periodTool(h, "get_heart_rate_period", ds.HeartRatePeriod)},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resDevices, Handler: h.devices},
		server.ServerResource{Resource: resDailySummary, Handler: h.dailySummary},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resDevices = mcp.NewResource(
	"gbinsight://devices",
	"Devices",
	mcp.WithResourceDescription("All devices that have sent samples, with their IDs and types"),
	mcp.WithMIMEType("application/json"),
)

var resDailySummary = mcp.NewResource(
	"gbinsight://daily_summary",
	"Daily Summary",
	mcp.WithResourceDescription("Today's steps, last night's sleep, stress zones and heart rate for every device"),
	mcp.WithMIMEType("application/json"),
)
