package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/claude/gbinsight/internal/ingest"
	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/report"
	"github.com/claude/gbinsight/internal/storage"
	"github.com/go-chi/chi/v5"
)

// maxIngestBytes bounds the body of one ingest request.
const maxIngestBytes = 64 << 20

// Ingester stores one payload.
type Ingester interface {
	Ingest(ctx context.Context, payload *models.IngestPayload) (*ingest.Result, error)
}

// StatsStore reports what has been stored so far.
type StatsStore interface {
	GetDataStats(ctx context.Context) (*storage.DataStats, error)
	QueryImportLogs(ctx context.Context, limit int) ([]storage.ImportLog, error)
}

var _ StatsStore = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	reports *report.Service
	ingest  Ingester
	stats   StatsStore
	log     *slog.Logger
	apiKey  string
	whois   WhoIsClient
	router  chi.Router
}

// New creates a new Server with all routes configured.
func New(reports *report.Service, ing Ingester, stats StatsStore, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		reports: reports,
		ingest:  ing,
		stats:   stats,
		log:     log,
		apiKey:  apiKey,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale resolves request identities through the tailnet instead of
// the local dev identity. Must be called before serving.
func (s *Server) SetTailscale(wc WhoIsClient) {
	s.whois = wc
}

// SetMCP mounts an MCP transport under /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.router.Mount("/mcp", h)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	s.router.Get("/health", s.handleHealth)

	// Ingest (API key required)
	s.router.With(APIKeyAuth(s.apiKey)).Post("/api/v1/ingest", s.handleIngest)

	// Read API (no auth; tsnet handles access)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/me", s.handleMe)
		r.Get("/stats", s.handleStats)
		r.Get("/imports", s.handleImportLogs)
		r.Get("/devices", s.handleDevices)

		r.Route("/devices/{id}", func(r chi.Router) {
			r.Get("/", s.handleDevice)
			r.Get("/steps", s.handleSteps)
			r.Get("/sleep", s.handleSleep)
			r.Get("/stress", s.handleStress)
			r.Get("/heartrate", s.handleHeartRate)
			r.Get("/amounts", s.handleAmounts)

			r.Get("/steps/period", s.handleStepPeriod)
			r.Get("/sleep/period", s.handleSleepPeriod)
			r.Get("/stress/period", s.handleStressPeriod)
			r.Get("/heartrate/period", s.handleHeartRatePeriod)
		})
	})
}

// identity picks the Tailscale lookup when one is configured.
func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois != nil {
			TailscaleIdentity(s.whois, s.log)(next).ServeHTTP(w, r)
			return
		}
		dev.ServeHTTP(w, r)
	})
}
