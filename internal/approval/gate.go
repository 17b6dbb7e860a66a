package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier receives human-facing notifications about approval activity.
// The notify.Dispatcher satisfies this.
type Notifier interface {
	Notify(message string, requestID string)
}

// AuditStore persists request snapshots for audit. The vault satisfies this.
type AuditStore interface {
	Put(key string, content string, category string) error
}

// Config controls auto-approval windows and approver routing. Durations are
// strings ("24h") so the config file stays readable; a missing or empty
// entry disables auto-approval for that level.
type Config struct {
	AutoApprove      map[string]string   `json:"auto_approve"`
	DefaultApprovers map[string][]string `json:"default_approvers"`
	AuthorityLevels  map[string]string   `json:"authority_levels"`
	SweepInterval    string              `json:"sweep_interval"`
}

// DefaultConfig returns the stock approval policy: low-tier requests
// auto-approve after a waiting period, critical and executive never do.
func DefaultConfig() Config {
	return Config{
		AutoApprove: map[string]string{
			"basic":    "24h",
			"standard": "72h",
		},
		DefaultApprovers: map[string][]string{
			"basic":     {"ops"},
			"standard":  {"manager"},
			"critical":  {"director", "cfo"},
			"executive": {"ceo"},
		},
		AuthorityLevels: map[string]string{
			"ops":      "basic",
			"manager":  "standard",
			"director": "critical",
			"cfo":      "critical",
			"ceo":      "executive",
		},
		SweepInterval: "5m",
	}
}

// Gate tracks approval requests through their lifecycle. Expiry is applied
// lazily whenever a request is read or decided; StartSweeper adds an
// optional background pass so auto-approvals fire without traffic.
type Gate struct {
	mu         sync.Mutex
	classifier *Classifier
	notifier   Notifier
	audit      AuditStore

	requests map[string]*Request
	order    []string

	autoApprove   map[Level]time.Duration
	approvers     map[Level][]string
	authority     map[string]Level
	sweepInterval time.Duration

	escalations int
	autoCount   int

	now func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithNotifier wires a notification sink.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

// WithAuditStore wires an audit sink.
func WithAuditStore(s AuditStore) Option {
	return func(g *Gate) { g.audit = s }
}

// WithClassifier overrides the default action classifier.
func WithClassifier(c *Classifier) Option {
	return func(g *Gate) { g.classifier = c }
}

// NewGate builds a gate from config. Duration and level names in the config
// are validated here so a bad config fails at startup, not at decision time.
func NewGate(cfg Config, opts ...Option) (*Gate, error) {
	g := &Gate{
		classifier:    NewClassifier(),
		requests:      make(map[string]*Request),
		autoApprove:   make(map[Level]time.Duration),
		approvers:     make(map[Level][]string),
		authority:     make(map[string]Level),
		sweepInterval: 5 * time.Minute,
		now:           time.Now,
	}

	for name, raw := range cfg.AutoApprove {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("auto_approve: %w", err)
		}
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("auto_approve[%s]: %w", name, err)
		}
		g.autoApprove[level] = d
	}
	for name, list := range cfg.DefaultApprovers {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("default_approvers: %w", err)
		}
		g.approvers[level] = append([]string(nil), list...)
	}
	for approver, name := range cfg.AuthorityLevels {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("authority_levels[%s]: %w", approver, err)
		}
		g.authority[approver] = level
	}
	if cfg.SweepInterval != "" {
		d, err := time.ParseDuration(cfg.SweepInterval)
		if err != nil {
			return nil, fmt.Errorf("sweep_interval: %w", err)
		}
		g.sweepInterval = d
	}

	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CreateRequest classifies the action and opens a pending request for it.
func (g *Gate) CreateRequest(actionType string, details map[string]interface{}, requester string) (*Request, error) {
	return g.createRequest(actionType, details, requester, 0)
}

// CreateRequestAtLevel opens a request at an explicit level, bypassing
// classification.
func (g *Gate) CreateRequestAtLevel(actionType string, details map[string]interface{}, requester string, level Level) (*Request, error) {
	if level < LevelBasic || level > LevelExecutive {
		return nil, fmt.Errorf("invalid approval level: %d", level)
	}
	return g.createRequest(actionType, details, requester, level)
}

func (g *Gate) createRequest(actionType string, details map[string]interface{}, requester string, level Level) (*Request, error) {
	if actionType == "" {
		return nil, fmt.Errorf("action type is required")
	}

	g.mu.Lock()
	if level == 0 {
		level = g.classifier.Classify(actionType, details)
	}
	now := g.now()
	req := &Request{
		ID:         uuid.New().String(),
		ActionType: actionType,
		Details:    details,
		Requester:  requester,
		Level:      level,
		Status:     StatusPending,
		Approvers:  append([]string(nil), g.approvers[level]...),
		CreatedAt:  now,
	}
	if window, ok := g.autoApprove[level]; ok {
		expiry := now.Add(window)
		req.ExpiresAt = &expiry
	}
	g.requests[req.ID] = req
	g.order = append(g.order, req.ID)
	snapshot := clone(req)
	g.mu.Unlock()

	g.persist(snapshot)
	g.sendNotice(fmt.Sprintf("Approval needed (%s): %s requested by %s", level, actionType, requester), snapshot.ID)
	log.Printf("[Approval] Created request %s (%s, level=%s)", snapshot.ID, actionType, level)
	return snapshot, nil
}

// Approve records an approval decision. The approver must either be
// assigned to the request or hold authority at or above its level.
func (g *Gate) Approve(id, approver, comment string) (*Request, error) {
	g.mu.Lock()
	req, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	expired := g.expireLocked(req)
	if req.Terminal() {
		status := req.Status
		snapshot := clone(req)
		g.mu.Unlock()
		if expired {
			g.persist(snapshot)
			g.sendNotice(fmt.Sprintf("Request %s auto-approved after timeout", id), id)
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidStateTransition, id, status)
	}
	if !g.authorizedLocked(req, approver) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s cannot approve level %s", ErrPermissionDenied, approver, req.Level)
	}

	now := g.now()
	req.Status = StatusApproved
	req.ApprovedBy = append(req.ApprovedBy, approver)
	req.DecidedAt = &now
	if comment != "" {
		req.Notes = appendNote(req.Notes, fmt.Sprintf("approved by %s: %s", approver, comment))
	}
	snapshot := clone(req)
	g.mu.Unlock()

	g.persist(snapshot)
	g.sendNotice(fmt.Sprintf("Request %s approved by %s", id, approver), id)
	log.Printf("[Approval] Request %s approved by %s", id, approver)
	return snapshot, nil
}

// Reject records a rejection. Rejection is terminal and requires a reason.
func (g *Gate) Reject(id, approver, reason string) (*Request, error) {
	g.mu.Lock()
	req, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	expired := g.expireLocked(req)
	if req.Terminal() {
		status := req.Status
		snapshot := clone(req)
		g.mu.Unlock()
		if expired {
			g.persist(snapshot)
			g.sendNotice(fmt.Sprintf("Request %s auto-approved after timeout", id), id)
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidStateTransition, id, status)
	}
	if !g.authorizedLocked(req, approver) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s cannot reject level %s", ErrPermissionDenied, approver, req.Level)
	}

	now := g.now()
	req.Status = StatusRejected
	req.RejectedBy = append(req.RejectedBy, approver)
	req.Reason = reason
	req.DecidedAt = &now
	snapshot := clone(req)
	g.mu.Unlock()

	g.persist(snapshot)
	g.sendNotice(fmt.Sprintf("Request %s rejected by %s: %s", id, approver, reason), id)
	log.Printf("[Approval] Request %s rejected by %s", id, approver)
	return snapshot, nil
}

// Escalate moves a pending request one level up and reassigns approvers.
// A request already at the executive level stays there; escalating it is a
// recorded no-op rather than an error.
func (g *Gate) Escalate(id, reason string) (*Request, error) {
	g.mu.Lock()
	req, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	expired := g.expireLocked(req)
	if req.Terminal() {
		status := req.Status
		snapshot := clone(req)
		g.mu.Unlock()
		if expired {
			g.persist(snapshot)
			g.sendNotice(fmt.Sprintf("Request %s auto-approved after timeout", id), id)
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidStateTransition, id, status)
	}
	if req.Level >= LevelExecutive {
		req.Notes = appendNote(req.Notes, fmt.Sprintf("escalation requested at executive level: %s", reason))
		snapshot := clone(req)
		g.mu.Unlock()
		g.persist(snapshot)
		return snapshot, nil
	}

	req.Level++
	req.EscalationCount++
	req.Approvers = append([]string(nil), g.approvers[req.Level]...)
	req.Notes = appendNote(req.Notes, fmt.Sprintf("escalated to %s: %s", req.Level, reason))
	if window, ok := g.autoApprove[req.Level]; ok {
		expiry := g.now().Add(window)
		req.ExpiresAt = &expiry
	} else {
		req.ExpiresAt = nil
	}
	g.escalations++
	snapshot := clone(req)
	g.mu.Unlock()

	g.persist(snapshot)
	g.sendNotice(fmt.Sprintf("Request %s escalated to %s: %s", id, snapshot.Level, reason), id)
	log.Printf("[Approval] Request %s escalated to %s", id, snapshot.Level)
	return snapshot, nil
}

// Get returns a snapshot of a request, applying lazy expiry first.
func (g *Gate) Get(id string) (*Request, error) {
	g.mu.Lock()
	req, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	expired := g.expireLocked(req)
	snapshot := clone(req)
	g.mu.Unlock()

	if expired {
		g.persist(snapshot)
	}
	return snapshot, nil
}

// Pending returns pending requests in creation order, applying lazy expiry.
func (g *Gate) Pending() []*Request {
	g.mu.Lock()
	var expired []*Request
	var out []*Request
	for _, id := range g.order {
		req := g.requests[id]
		if g.expireLocked(req) {
			expired = append(expired, clone(req))
			continue
		}
		if req.Status == StatusPending {
			out = append(out, clone(req))
		}
	}
	g.mu.Unlock()

	for _, snap := range expired {
		g.persist(snap)
	}
	return out
}

// SweepExpired applies expiry to every pending request and returns how many
// were auto-approved.
func (g *Gate) SweepExpired() int {
	g.mu.Lock()
	var expired []*Request
	for _, id := range g.order {
		if g.expireLocked(g.requests[id]) {
			expired = append(expired, clone(g.requests[id]))
		}
	}
	g.mu.Unlock()

	for _, snap := range expired {
		g.persist(snap)
		g.sendNotice(fmt.Sprintf("Request %s auto-approved after timeout", snap.ID), snap.ID)
	}
	return len(expired)
}

// StartSweeper runs SweepExpired on the configured interval until the
// context is cancelled.
func (g *Gate) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(g.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := g.SweepExpired(); n > 0 {
					log.Printf("[Approval] Sweeper auto-approved %d request(s)", n)
				}
			}
		}
	}()
}

// Stats summarizes the request table.
func (g *Gate) Stats() Statistics {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := Statistics{ByLevel: make(map[string]int)}
	var decided int
	var totalDecision time.Duration
	for _, req := range g.requests {
		stats.Total++
		stats.ByLevel[req.Level.String()]++
		switch req.Status {
		case StatusPending:
			stats.Pending++
		case StatusApproved:
			stats.Approved++
		case StatusRejected:
			stats.Rejected++
		}
		if req.DecidedAt != nil {
			decided++
			totalDecision += req.DecidedAt.Sub(req.CreatedAt)
		}
	}
	stats.AutoApproved = g.autoCount
	stats.Escalations = g.escalations
	if decided > 0 {
		stats.AvgDecisionTime = totalDecision / time.Duration(decided)
	}
	return stats
}

// History returns all requests in creation order.
func (g *Gate) History() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Request, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, clone(g.requests[id]))
	}
	return out
}

// expireLocked auto-approves a pending request whose window has elapsed.
// Caller holds g.mu. Returns true when the request transitioned.
func (g *Gate) expireLocked(req *Request) bool {
	if req.Status != StatusPending || req.ExpiresAt == nil {
		return false
	}
	now := g.now()
	if now.Before(*req.ExpiresAt) {
		return false
	}
	req.Status = StatusApproved
	req.ApprovedBy = append(req.ApprovedBy, SystemApprover)
	req.DecidedAt = &now
	req.Notes = appendNote(req.Notes, "auto-approved after waiting period")
	g.autoCount++
	return true
}

func (g *Gate) authorizedLocked(req *Request, approver string) bool {
	for _, a := range req.Approvers {
		if a == approver {
			return true
		}
	}
	if level, ok := g.authority[approver]; ok && level >= req.Level {
		return true
	}
	return false
}

func (g *Gate) persist(req *Request) {
	if g.audit == nil {
		return
	}
	data, err := json.Marshal(req)
	if err != nil {
		log.Printf("[Approval] Failed to serialize request %s for audit: %v", req.ID, err)
		return
	}
	if err := g.audit.Put("approval_"+req.ID, string(data), "approvals"); err != nil {
		log.Printf("[Approval] Failed to persist request %s: %v", req.ID, err)
	}
}

func (g *Gate) sendNotice(message, id string) {
	if g.notifier != nil {
		g.notifier.Notify(message, id)
	}
}

func clone(req *Request) *Request {
	dup := *req
	dup.Approvers = append([]string(nil), req.Approvers...)
	dup.ApprovedBy = append([]string(nil), req.ApprovedBy...)
	dup.RejectedBy = append([]string(nil), req.RejectedBy...)
	if req.ExpiresAt != nil {
		t := *req.ExpiresAt
		dup.ExpiresAt = &t
	}
	if req.DecidedAt != nil {
		t := *req.DecidedAt
		dup.DecidedAt = &t
	}
	if req.Details != nil {
		dup.Details = make(map[string]interface{}, len(req.Details))
		for k, v := range req.Details {
			dup.Details[k] = v
		}
	}
	return &dup
}

func appendNote(notes, add string) string {
	if notes == "" {
		return add
	}
	return notes + "; " + add
}
