package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"campaign-automation/internal/automation"
	"campaign-automation/internal/config"
	"campaign-automation/internal/models"
	"campaign-automation/internal/ratelimit"
	"campaign-automation/internal/store"
	"campaign-automation/internal/telemetry"
)

// Server wires HTTP handlers for the job producer and automation API.
type Server struct {
	cfg     config.Config
	store   *store.Store
	engine  *automation.Engine
	limiter *ratelimit.TokenBucket
}

// New constructs the API server.
func New(cfg config.Config, st *store.Store, eng *automation.Engine, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		engine:  eng,
		limiter: limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleEnqueue)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/queue/stats", s.handleQueueStats)

	r.Get("/automations", s.handleListAutomations)
	r.Post("/automations/{id}/execute", s.handleExecuteAutomation)
	r.Get("/automations/{id}/executions", s.handleListExecutions)

	r.Post("/engine/start", s.handleEngineStart)
	r.Post("/engine/stop", s.handleEngineStop)
	r.Get("/engine/status", s.handleEngineStatus)
	return r
}

type enqueueRequest struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	RunAt        *time.Time      `json:"run_at"`
	DelaySeconds int             `json:"delay_seconds"`
	MaxAttempts  int             `json:"max_attempts"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}
	if !models.ValidJobType(req.Type) {
		http.Error(w, fmt.Sprintf("unknown job type %q", req.Type), http.StatusBadRequest)
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}
	delayUntil := time.Now()
	if req.RunAt != nil {
		delayUntil = *req.RunAt
	}
	if req.DelaySeconds > 0 {
		delayUntil = time.Now().Add(time.Duration(req.DelaySeconds) * time.Second)
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = s.cfg.DefaultMaxAttempts
	}

	tenant := tenantFromRequest(r)
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), fmt.Sprintf("rl:%s", tenant))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job, err := s.store.EnqueueJob(r.Context(), store.EnqueueJobParams{
		Type:        req.Type,
		Payload:     req.Payload,
		Priority:    req.Priority,
		DelayUntil:  delayUntil,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	telemetry.EnqueueCounter.Inc()

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	stats, err := s.store.GetQueueStats(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	autos, err := s.store.ListActiveAutomations(r.Context())
	if err != nil {
		http.Error(w, "failed to list automations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": autos})
}

type executeRequest struct {
	TriggerData json.RawMessage `json:"trigger_data"`
}

func (s *Server) handleExecuteAutomation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req executeRequest
	if r.Body != nil {
		// An empty body means a manual run with no event context.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	res, err := s.engine.ExecuteOne(r.Context(), id, req.TriggerData)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAutomationNotFound):
			http.Error(w, "automation not found", http.StatusNotFound)
		case errors.Is(err, automation.ErrAutomationInactive):
			http.Error(w, "automation is not active", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 50)
	execs, err := s.store.ListExecutions(r.Context(), id, limit)
	if err != nil {
		http.Error(w, "failed to list executions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

func (s *Server) handleEngineStart(w http.ResponseWriter, _ *http.Request) {
	// The loop must outlive this request.
	s.engine.Start(context.Background())
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleEngineStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": s.engine.Running()})
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
