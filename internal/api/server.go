package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authwatch/internal/config"
	"authwatch/internal/model"
	"authwatch/internal/results"
)

// Reanalyzer re-runs the analysis over the configured input, picking up
// config changes first.
type Reanalyzer interface {
	Reanalyze(ctx context.Context) (model.Summary, error)
}

type Server struct {
	cfg     *config.Manager
	results *results.Store
	runner  Reanalyzer
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	ConfigPath string          `json:"config_path"`
	Input      inputStatus     `json:"input"`
	Detection  detectionStatus `json:"detection"`
	Anomaly    anomalyStatus   `json:"anomaly"`
	API        apiStatus       `json:"api"`
	LastRun    lastRunStatus   `json:"last_run"`
}

type inputStatus struct {
	Path   string `json:"path"`
	Format string `json:"format"`
}

type detectionStatus struct {
	IPThreshold   int    `json:"ip_threshold"`
	IPWindow      string `json:"ip_window"`
	UserThreshold int    `json:"user_threshold"`
	UserWindow    string `json:"user_window"`
}

type anomalyStatus struct {
	Horizon       string  `json:"horizon"`
	Contamination float64 `json:"contamination"`
	Trees         int     `json:"trees"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type lastRunStatus struct {
	Loaded      bool   `json:"loaded"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	TotalEvents int    `json:"total_events"`
	AlertCount  int    `json:"alert_count"`
}

func Start(ctx context.Context, cfg *config.Manager, store *results.Store, runner Reanalyzer, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		results: store,
		runner:  runner,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/healthz", server.handleHealthz)
	mux.HandleFunc("/summary", server.handleSummary)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/anomalies", server.handleAnomalies)
	mux.HandleFunc("/events", server.handleEvents)
	mux.HandleFunc("/runs", server.handleRuns)
	mux.HandleFunc("/config/analysis", server.handleAnalysisConfig)
	mux.HandleFunc("/admin/reanalyze", server.handleReanalyze)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	_, loaded := s.results.Current()
	sum := s.results.Summary()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Input:      inputStatus{Path: cfg.Input.Path, Format: cfg.Input.Format},
		Detection: detectionStatus{
			IPThreshold:   cfg.Detection.IPThreshold,
			IPWindow:      cfg.Detection.IPWindow.String(),
			UserThreshold: cfg.Detection.UserThreshold,
			UserWindow:    cfg.Detection.UserWindow.String(),
		},
		Anomaly: anomalyStatus{
			Horizon:       cfg.Anomaly.Horizon.String(),
			Contamination: cfg.Anomaly.Contamination,
			Trees:         cfg.Anomaly.Trees,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		LastRun: lastRunStatus{
			Loaded:      loaded,
			StartedAt:   timeString(sum.StartedAt),
			CompletedAt: timeString(sum.CompletedAt),
			TotalEvents: sum.TotalEvents,
			AlertCount:  sum.AlertCount,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": s.results.Summary()})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.results.AlertsSince(ts)
	} else {
		list = s.results.Alerts(queryLimit(r))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list := s.results.Anomalies(queryLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": list,
		"count":     len(list),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list := s.results.Events(queryLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list := s.results.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  list,
		"count": len(list),
	})
}

func (s *Server) handleAnalysisConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := s.cfg.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"detection": cfg.Detection,
			"anomaly":   cfg.Anomaly,
		})
		return
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			Detection *config.DetectionConfig `json:"detection"`
			Anomaly   *config.AnomalyConfig   `json:"anomaly"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		if req.Detection != nil {
			next.Detection = *req.Detection
		}
		if req.Anomaly != nil {
			next.Anomaly = *req.Anomaly
		}
		if err := config.Validate(&next); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := s.cfg.Update(&next); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.runner == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	summary, err := s.runner.Reanalyze(r.Context())
	if err != nil {
		if s.logger != nil {
			s.logger.Error("reanalyze failed", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"summary": summary,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.results != nil {
		s.results.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func queryLimit(r *http.Request) int {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return limit
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
