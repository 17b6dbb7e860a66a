// Package client is a thin HTTP client for the foreman gateway API. It is
// used by the CLI subcommands and the TUI dashboard.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"foreman/internal/approval"
	"foreman/internal/scheduler"
	"foreman/internal/skills"
	"foreman/internal/version"
)

// Client talks to a running foreman gateway.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:18790".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   os.Getenv("FOREMAN_AUTH_TOKEN"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// WithToken sets the bearer token sent on every request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// ScheduleRequest describes a job to schedule. Exactly one trigger applies:
// When, Spec, Sequence, or none for window-optimized placement.
type ScheduleRequest struct {
	Name     string                 `json:"name"`
	Payload  map[string]interface{} `json:"payload"`
	Resource string                 `json:"resource"`
	When     *time.Time             `json:"when,omitempty"`
	Spec     string                 `json:"spec,omitempty"`
	Sequence string                 `json:"sequence,omitempty"`
	Anchor   *time.Time             `json:"anchor,omitempty"`
}

func (c *Client) Health() (map[string]interface{}, error) {
	var out map[string]interface{}
	return out, c.get("/health", &out)
}

func (c *Client) Status() (map[string]interface{}, error) {
	var out map[string]interface{}
	return out, c.get("/api/status", &out)
}

func (c *Client) Skills() ([]skills.SkillStatus, error) {
	var out []skills.SkillStatus
	return out, c.get("/api/skills", &out)
}

func (c *Client) ExecuteSkill(name string, params map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.post("/api/skills/execute", map[string]interface{}{
		"skill":  name,
		"params": params,
	}, &out)
	return out, err
}

func (c *Client) Approvals() ([]approval.Request, error) {
	var out []approval.Request
	return out, c.get("/api/approvals", &out)
}

func (c *Client) PendingApprovals() ([]approval.Request, error) {
	var out []approval.Request
	return out, c.get("/api/approvals/pending", &out)
}

func (c *Client) CreateApproval(actionType string, details map[string]interface{}, requester, level string) (*approval.Request, error) {
	var out approval.Request
	err := c.post("/api/approvals", map[string]interface{}{
		"action_type": actionType,
		"details":     details,
		"requester":   requester,
		"level":       level,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Approve(id, approver, comment string) (*approval.Request, error) {
	var out approval.Request
	err := c.post("/api/approvals/approve", map[string]string{
		"id": id, "approver": approver, "comment": comment,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reject(id, approver, reason string) (*approval.Request, error) {
	var out approval.Request
	err := c.post("/api/approvals/reject", map[string]string{
		"id": id, "approver": approver, "reason": reason,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Escalate(id, reason string) (*approval.Request, error) {
	var out approval.Request
	err := c.post("/api/approvals/escalate", map[string]string{
		"id": id, "reason": reason,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Jobs() ([]scheduler.Job, error) {
	var out []scheduler.Job
	return out, c.get("/api/jobs", &out)
}

func (c *Client) Schedule(req ScheduleRequest) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.post("/api/jobs", req, &out)
}

func (c *Client) CancelJob(id string) (*scheduler.Job, error) {
	return c.jobOp("/api/jobs/cancel", id)
}

func (c *Client) PauseJob(id string) (*scheduler.Job, error) {
	return c.jobOp("/api/jobs/pause", id)
}

func (c *Client) ResumeJob(id string) (*scheduler.Job, error) {
	return c.jobOp("/api/jobs/resume", id)
}

func (c *Client) jobOp(path, id string) (*scheduler.Job, error) {
	var out scheduler.Job
	if err := c.post(path, map[string]string{"id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Conflicts() ([]scheduler.ConflictGroup, error) {
	var out []scheduler.ConflictGroup
	return out, c.get("/api/conflicts", &out)
}

func (c *Client) ResolveConflicts() ([]scheduler.Job, error) {
	var out []scheduler.Job
	return out, c.post("/api/conflicts/resolve", map[string]string{}, &out)
}

func (c *Client) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

func (c *Client) decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorMessage(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable error body"
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return string(bytes.TrimSpace(data))
}
