package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foreman/internal/config"
	"foreman/internal/orchestration"
	"foreman/internal/skills"
)

type pingSkill struct{}

func (pingSkill) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"pong": params["ping"]}, nil
}

func newTestGateway(t *testing.T) (*Gateway, *orchestration.Core) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "gateway.db")

	core, err := orchestration.New(cfg)
	require.NoError(t, err)
	t.Cleanup(core.Shutdown)

	require.NoError(t, core.Registry().Register(skills.Descriptor{Name: "ping", Enabled: true}))
	core.Registry().RegisterFactory("ping", func() skills.Skill { return pingSkill{} })

	return New(cfg, core), core
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, handler http.Handler, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	g, _ := newTestGateway(t)

	var body map[string]interface{}
	rec := getJSON(t, g.Routes(), "/health", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestSkillExecuteEndpoint(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := postJSON(t, g.Routes(), "/api/skills/execute", map[string]interface{}{
		"skill":  "ping",
		"params": map[string]interface{}{"ping": "hello"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "hello", result["pong"])
}

func TestSkillExecuteUnknownReturns404(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := postJSON(t, g.Routes(), "/api/skills/execute", map[string]interface{}{
		"skill": "nope",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprovalLifecycleOverHTTP(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.Routes()

	rec := postJSON(t, handler, "/api/approvals", map[string]interface{}{
		"action_type": "linkedin_post",
		"details":     map[string]interface{}{"content": "quarterly update"},
		"requester":   "agent",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", created["status"])

	var pending []map[string]interface{}
	getJSON(t, handler, "/api/approvals/pending", &pending)
	require.Len(t, pending, 1)

	rec = postJSON(t, handler, "/api/approvals/approve", map[string]interface{}{
		"id":       id,
		"approver": "manager",
		"comment":  "looks good",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var decided map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decided))
	assert.Equal(t, "approved", decided["status"])

	// A second decision must be rejected as a conflict.
	rec = postJSON(t, handler, "/api/approvals/reject", map[string]interface{}{
		"id":       id,
		"approver": "manager",
		"reason":   "changed my mind",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApprovalPermissionDeniedReturns403(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.Routes()

	rec := postJSON(t, handler, "/api/approvals", map[string]interface{}{
		"action_type": "partnership",
		"details":     map[string]interface{}{},
		"requester":   "agent",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = postJSON(t, handler, "/api/approvals/approve", map[string]interface{}{
		"id":       created["id"],
		"approver": "intern",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApprovalExplicitLevel(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := postJSON(t, g.Routes(), "/api/approvals", map[string]interface{}{
		"action_type": "send_email",
		"details":     map[string]interface{}{},
		"requester":   "agent",
		"level":       "critical",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, float64(3), created["level"])
}

func TestApprovalUnknownIDReturns404(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := postJSON(t, g.Routes(), "/api/approvals/escalate", map[string]interface{}{
		"id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobScheduleAndCancelOverHTTP(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.Routes()

	when := time.Now().Add(time.Hour).UTC()
	rec := postJSON(t, handler, "/api/jobs", map[string]interface{}{
		"name":     "send_report",
		"payload":  map[string]interface{}{"kind": "notice", "message": "report ready"},
		"resource": "email",
		"when":     when,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var job map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	id := job["id"].(string)
	assert.Equal(t, "scheduled", job["status"])

	rec = postJSON(t, handler, "/api/jobs/cancel", map[string]interface{}{"id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "cancelled", job["status"])

	// Cancelling a terminal job is an invalid transition.
	rec = postJSON(t, handler, "/api/jobs/cancel", map[string]interface{}{"id": id})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobRecurringAndSequenceOverHTTP(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.Routes()

	rec := postJSON(t, handler, "/api/jobs", map[string]interface{}{
		"name":     "daily_digest",
		"payload":  map[string]interface{}{"kind": "notice", "message": "digest"},
		"resource": "email",
		"spec":     "0 8 * * *",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	anchor := time.Now().Add(time.Hour).UTC()
	rec = postJSON(t, handler, "/api/jobs", map[string]interface{}{
		"payload":  map[string]interface{}{"kind": "notice", "message": "hi"},
		"resource": "linkedin",
		"sequence": "linkedin_connection",
		"anchor":   anchor,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var steps []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	assert.Len(t, steps, 3)

	var jobs []map[string]interface{}
	getJSON(t, handler, "/api/jobs", &jobs)
	assert.Len(t, jobs, 4)
}

func TestJobSequenceUnknownTemplateReturns400(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := postJSON(t, g.Routes(), "/api/jobs", map[string]interface{}{
		"resource": "linkedin",
		"sequence": "no_such_template",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConflictDetectAndResolveOverHTTP(t *testing.T) {
	g, core := newTestGateway(t)
	handler := g.Routes()

	// Recurring jobs skip placement, so identical specs on one resource
	// land on the same slot.
	for i := 0; i < 2; i++ {
		_, err := core.Scheduler().ScheduleRecurring(
			fmt.Sprintf("poll_%d", i),
			map[string]interface{}{"kind": "notice", "message": "poll"},
			"crm", "@every 1h")
		require.NoError(t, err)
	}

	var groups []map[string]interface{}
	rec := getJSON(t, handler, "/api/conflicts", &groups)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, groups, 1)

	rec = postJSON(t, handler, "/api/conflicts/resolve", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	groups = nil
	getJSON(t, handler, "/api/conflicts", &groups)
	assert.Empty(t, groups)
}

func TestStatusEndpoint(t *testing.T) {
	g, _ := newTestGateway(t)

	var body map[string]interface{}
	rec := getJSON(t, g.Routes(), "/api/status", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "scheduler")
	assert.Contains(t, body, "approvals")
	assert.Equal(t, float64(0), body["ws_peers"])
}

func TestHandlerEnforcesAuthToken(t *testing.T) {
	g, _ := newTestGateway(t)
	g.cfg.Gateway.AuthToken = "hunter2"
	g.cfg.Gateway.RateLimit.Enabled = false
	handler := g.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays reachable for probes.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRateLimits(t *testing.T) {
	g, _ := newTestGateway(t)
	g.cfg.Gateway.RateLimit = config.RateLimitConfig{Enabled: true, Window: "1m", Limit: 2}
	handler := g.Handler()
	defer g.limiter.Stop()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req.RemoteAddr = "10.1.1.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.RemoteAddr = "10.1.1.1:4001"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	g, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	g.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
