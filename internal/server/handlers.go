package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/gbinsight/internal/ingest"
	"github.com/claude/gbinsight/internal/models"
	"github.com/claude/gbinsight/internal/report"
	"github.com/claude/gbinsight/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultPeriodDays = 7

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)
	var payload models.IngestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	result, err := s.ingest.Ingest(r.Context(), &payload)
	if err != nil {
		s.fail(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.GetDataStats(r.Context())
	if err != nil {
		s.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}
	logs, err := s.stats.QueryImportLogs(r.Context(), limit)
	if err != nil {
		s.fail(w, "import logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.reports.Devices(r.Context())
	if err != nil {
		s.fail(w, "devices", err)
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceParam(w, r)
	if !ok {
		return
	}
	dev, err := s.reports.Device(r.Context(), id)
	if err != nil {
		s.fail(w, "device", err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// dayHandler serves a single-day report for the device in the path and the
// date in ?date=, today by default.
func dayHandler[T any](s *Server, name string, fn func(r *http.Request, id uuid.UUID, day time.Time) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := deviceParam(w, r)
		if !ok {
			return
		}
		day, err := s.reports.ParseDay(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := s.reports.Device(r.Context(), id); err != nil {
			s.fail(w, name, err)
			return
		}
		rep, err := fn(r, id, day)
		if err != nil {
			s.fail(w, name, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// periodHandler serves a report over ?days= days ending on ?end=.
func periodHandler[T any](s *Server, name string, fn func(r *http.Request, id uuid.UUID, end time.Time, n int) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := deviceParam(w, r)
		if !ok {
			return
		}
		end, err := s.reports.ParseDay(r.URL.Query().Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		n := defaultPeriodDays
		if raw := r.URL.Query().Get("days"); raw != "" {
			if n, err = strconv.Atoi(raw); err != nil {
				writeError(w, http.StatusBadRequest, "days must be a number")
				return
			}
		}
		if _, err := s.reports.Device(r.Context(), id); err != nil {
			s.fail(w, name, err)
			return
		}
		rep, err := fn(r, id, end, n)
		if err != nil {
			s.fail(w, name, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	dayHandler(s, "steps", func(r *http.Request, id uuid.UUID, day time.Time) (*report.StepReport, error) {
		return s.reports.Steps(r.Context(), id, day)
	})(w, r)
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	dayHandler(s, "sleep", func(r *http.Request, id uuid.UUID, day time.Time) (*report.SleepReport, error) {
		return s.reports.Sleep(r.Context(), id, day)
	})(w, r)
}

func (s *Server) handleStress(w http.ResponseWriter, r *http.Request) {
	dayHandler(s, "stress", func(r *http.Request, id uuid.UUID, day time.Time) (*report.StressReport, error) {
		return s.reports.Stress(r.Context(), id, day)
	})(w, r)
}

func (s *Server) handleHeartRate(w http.ResponseWriter, r *http.Request) {
	dayHandler(s, "heart rate", func(r *http.Request, id uuid.UUID, day time.Time) (*report.HeartRateReport, error) {
		return s.reports.HeartRate(r.Context(), id, day)
	})(w, r)
}

func (s *Server) handleAmounts(w http.ResponseWriter, r *http.Request) {
	sleepDay := r.URL.Query().Get("sleep") == "true"
	dayHandler(s, "amounts", func(r *http.Request, id uuid.UUID, day time.Time) (*report.AmountsReport, error) {
		return s.reports.Amounts(r.Context(), id, day, sleepDay)
	})(w, r)
}

func (s *Server) handleStepPeriod(w http.ResponseWriter, r *http.Request) {
	periodHandler(s, "step period", func(r *http.Request, id uuid.UUID, end time.Time, n int) (*report.StepPeriod, error) {
		return s.reports.StepPeriod(r.Context(), id, end, n)
	})(w, r)
}

func (s *Server) handleSleepPeriod(w http.ResponseWriter, r *http.Request) {
	periodHandler(s, "sleep period", func(r *http.Request, id uuid.UUID, end time.Time, n int) (*report.SleepPeriod, error) {
		return s.reports.SleepPeriod(r.Context(), id, end, n)
	})(w, r)
}

func (s *Server) handleStressPeriod(w http.ResponseWriter, r *http.Request) {
	periodHandler(s, "stress period", func(r *http.Request, id uuid.UUID, end time.Time, n int) (*report.StressPeriod, error) {
		return s.reports.StressPeriod(r.Context(), id, end, n)
	})(w, r)
}

func (s *Server) handleHeartRatePeriod(w http.ResponseWriter, r *http.Request) {
	periodHandler(s, "heart rate period", func(r *http.Request, id uuid.UUID, end time.Time, n int) (*report.HeartRatePeriod, error) {
		return s.reports.HeartRatePeriod(r.Context(), id, end, n)
	})(w, r)
}

func deviceParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device ID")
		return uuid.Nil, false
	}
	return id, true
}

// fail maps known errors to client statuses and logs the rest.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, report.ErrInvalidPeriod),
		errors.Is(err, report.ErrInvalidDate),
		errors.Is(err, ingest.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
