// Package gateway exposes the orchestration core over HTTP and pushes
// notification events to websocket subscribers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"foreman/internal/approval"
	"foreman/internal/config"
	"foreman/internal/middleware"
	"foreman/internal/orchestration"
	"foreman/internal/ratelimit"
	"foreman/internal/scheduler"
	"foreman/internal/skills"
	"foreman/internal/version"
)

// Gateway serves the orchestrator's HTTP API.
type Gateway struct {
	cfg       *config.Config
	core      *orchestration.Core
	hub       *Hub
	server    *http.Server
	limiter   *ratelimit.Limiter
	startTime time.Time
}

// New creates a gateway around an already-built core.
func New(cfg *config.Config, core *orchestration.Core) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		core:      core,
		hub:       NewHub(),
		startTime: time.Now(),
	}
	// Every notification event is pushed to websocket subscribers.
	core.Dispatcher().Subscribe(g.hub.BroadcastEvent)
	return g
}

// Routes returns the gateway's HTTP handler.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/api/status", g.handleStatus)

	mux.HandleFunc("/api/skills", g.handleSkills)
	mux.HandleFunc("/api/skills/execute", g.handleSkillExecute)

	mux.HandleFunc("/api/approvals", g.handleApprovals)
	mux.HandleFunc("/api/approvals/pending", g.handleApprovalsPending)
	mux.HandleFunc("/api/approvals/approve", g.handleApprove)
	mux.HandleFunc("/api/approvals/reject", g.handleReject)
	mux.HandleFunc("/api/approvals/escalate", g.handleEscalate)

	mux.HandleFunc("/api/jobs", g.handleJobs)
	mux.HandleFunc("/api/jobs/cancel", g.handleJobCancel)
	mux.HandleFunc("/api/jobs/pause", g.handleJobPause)
	mux.HandleFunc("/api/jobs/resume", g.handleJobResume)

	mux.HandleFunc("/api/conflicts", g.handleConflicts)
	mux.HandleFunc("/api/conflicts/resolve", g.handleConflictsResolve)

	mux.HandleFunc("/ws/events", g.handleWebSocket)

	return mux
}

// Handler wraps the routes in the configured middleware chain: rate
// limiting outermost, then auth.
func (g *Gateway) Handler() http.Handler {
	handler := http.Handler(g.Routes())
	handler = middleware.Auth(g.cfg.Gateway.AuthToken)(handler)

	if rl := g.cfg.Gateway.RateLimit; rl.Enabled {
		window := time.Minute
		if rl.Window != "" {
			if d, err := time.ParseDuration(rl.Window); err == nil {
				window = d
			}
		}
		g.limiter = ratelimit.NewLimiter(window, rl.Limit, 5*time.Minute)
		handler = middleware.RateLimit(g.limiter)(handler)
	}
	return handler
}

// Start runs the HTTP server until the context is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	g.hub.Start(ctx)

	g.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", g.cfg.Port),
		Handler: g.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.server.Shutdown(shutdownCtx)
	}()

	log.Printf("[Gateway] Listening on :%d", g.cfg.Port)
	err := g.server.ListenAndServe()
	if g.limiter != nil {
		g.limiter.Stop()
	}
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Info(),
		"uptime":  int64(time.Since(g.startTime).Seconds()),
	})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":     version.Info(),
		"uptime":      int64(time.Since(g.startTime).Seconds()),
		"skills":      g.core.Registry().StatusReport(),
		"approvals":   g.core.Gate().Stats(),
		"scheduler":   g.core.Scheduler().Status(),
		"maintenance": g.core.Maintenance().LastResults(),
		"ws_peers":    g.hub.ClientCount(),
	})
}

func (g *Gateway) handleSkills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, g.core.Registry().StatusReport())
}

func (g *Gateway) handleSkillExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Skill  string                 `json:"skill"`
		Params map[string]interface{} `json:"params"`
	}
	if !decodePost(w, r, &req) {
		return
	}

	result, err := g.core.Registry().Execute(r.Context(), req.Skill, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleApprovals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, g.core.Gate().History())
	case http.MethodPost:
		var req struct {
			ActionType string                 `json:"action_type"`
			Details    map[string]interface{} `json:"details"`
			Requester  string                 `json:"requester"`
			Level      string                 `json:"level,omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		var created *approval.Request
		var err error
		if req.Level != "" {
			level, perr := approval.ParseLevel(req.Level)
			if perr != nil {
				http.Error(w, perr.Error(), http.StatusBadRequest)
				return
			}
			created, err = g.core.Gate().CreateRequestAtLevel(req.ActionType, req.Details, req.Requester, level)
		} else {
			created, err = g.core.Gate().CreateRequest(req.ActionType, req.Details, req.Requester)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleApprovalsPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, g.core.Gate().Pending())
}

func (g *Gateway) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Approver string `json:"approver"`
		Comment  string `json:"comment"`
	}
	if !decodePost(w, r, &req) {
		return
	}

	decided, err := g.core.Gate().Approve(req.ID, req.Approver, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decided)
}

func (g *Gateway) handleReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Approver string `json:"approver"`
		Reason   string `json:"reason"`
	}
	if !decodePost(w, r, &req) {
		return
	}

	decided, err := g.core.Gate().Reject(req.ID, req.Approver, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decided)
}

func (g *Gateway) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}
	if !decodePost(w, r, &req) {
		return
	}

	escalated, err := g.core.Gate().Escalate(req.ID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escalated)
}

// handleJobs lists jobs on GET and schedules on POST. The POST body picks
// one trigger: an absolute time, a recurrence spec, a sequence template,
// or optimized placement when none is given.
func (g *Gateway) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, g.core.Scheduler().Jobs())
	case http.MethodPost:
		var req struct {
			Name     string                 `json:"name"`
			Payload  map[string]interface{} `json:"payload"`
			Resource string                 `json:"resource"`
			When     *time.Time             `json:"when,omitempty"`
			Spec     string                 `json:"spec,omitempty"`
			Sequence string                 `json:"sequence,omitempty"`
			Anchor   *time.Time             `json:"anchor,omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		switch {
		case req.Sequence != "":
			anchor := time.Now()
			if req.Anchor != nil {
				anchor = *req.Anchor
			}
			jobs, err := g.core.Scheduler().ScheduleSequence(req.Sequence, anchor, req.Resource, req.Payload)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, jobs)
		case req.Spec != "":
			job, err := g.core.Scheduler().ScheduleRecurring(req.Name, req.Payload, req.Resource, req.Spec)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, job)
		case req.When != nil:
			job, err := g.core.Scheduler().ScheduleAt(req.Name, req.Payload, req.Resource, *req.When)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, job)
		default:
			job, err := g.core.Scheduler().ScheduleOptimized(req.Name, req.Payload, req.Resource)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, job)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	g.jobStateChange(w, r, g.core.Scheduler().Cancel)
}

func (g *Gateway) handleJobPause(w http.ResponseWriter, r *http.Request) {
	g.jobStateChange(w, r, g.core.Scheduler().Pause)
}

func (g *Gateway) handleJobResume(w http.ResponseWriter, r *http.Request) {
	g.jobStateChange(w, r, g.core.Scheduler().Resume)
}

func (g *Gateway) jobStateChange(w http.ResponseWriter, r *http.Request, op func(string) error) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodePost(w, r, &req) {
		return
	}

	if err := op(req.ID); err != nil {
		writeError(w, err)
		return
	}
	job, err := g.core.Scheduler().Job(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (g *Gateway) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conflicts := g.core.Scheduler().DetectConflicts(nil)
	if conflicts == nil {
		conflicts = []scheduler.ConflictGroup{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func (g *Gateway) handleConflictsResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resolved := g.core.Scheduler().ResolveConflicts(g.core.Scheduler().DetectConflicts(nil))
	if resolved == nil {
		resolved = []*scheduler.Job{}
	}
	writeJSON(w, http.StatusOK, resolved)
}

func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return decodeBody(w, r, v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Gateway] Failed to encode response: %v", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var conflict *scheduler.ConflictError

	switch {
	case errors.Is(err, approval.ErrNotFound),
		errors.Is(err, scheduler.ErrJobNotFound),
		errors.Is(err, skills.ErrNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, approval.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, approval.ErrInvalidStateTransition),
		errors.Is(err, scheduler.ErrInvalidJobState):
		status = http.StatusConflict
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrUnknownTemplate),
		errors.Is(err, skills.ErrSkillDisabled),
		errors.Is(err, skills.ErrNoFactory):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
