package skills

import (
	"context"
	"time"
)

// State represents the lifecycle state of a skill instance.
type State string

const (
	StateLoaded   State = "loaded"
	StateActive   State = "active"
	StateInactive State = "inactive"
	StateError    State = "error"
	StateUnloaded State = "unloaded"
)

// Priority indicates relative execution priority for a skill.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// Dependency declares that a skill requires another skill by name.
// Optional dependencies are used for ordering when present but do not
// block activation when absent.
type Dependency struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional,omitempty"`
}

// Descriptor describes a registered skill. Descriptors are immutable once
// registered; re-registering under the same name replaces the descriptor
// without touching any live instance.
type Descriptor struct {
	Name         string       `json:"name"`
	Version      string       `json:"version,omitempty"`
	Category     string       `json:"category,omitempty"`
	Priority     Priority     `json:"priority,omitempty"`
	Enabled      bool         `json:"enabled"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Skill is the unit of business logic invoked by name with a parameter map.
// All externally implemented skills (content generators, outreach senders,
// analytics) plug in through this interface.
type Skill interface {
	Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)
}

// Activator is an optional interface for skills that need setup on activation.
// An error from OnActivate puts the instance into StateError.
type Activator interface {
	OnActivate(ctx context.Context) error
}

// Deactivator is an optional interface for skills that need teardown.
type Deactivator interface {
	OnDeactivate(ctx context.Context) error
}

// Factory constructs a skill instance. Each skill type registers a typed
// factory at startup; there is no runtime string-based type resolution.
type Factory func() Skill

// Stats tracks execution statistics for a skill instance. The running
// average latency is updated incrementally, exactly once per execution
// attempt regardless of outcome.
type Stats struct {
	TotalExecutions int           `json:"total_executions"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	AvgLatency      time.Duration `json:"avg_latency"`
	LastExecuted    time.Time     `json:"last_executed,omitempty"`
}

// SkillStatus is a point-in-time snapshot of a loaded skill, returned by
// status queries. Instances themselves are never shared outside the registry.
type SkillStatus struct {
	Name       string   `json:"name"`
	Version    string   `json:"version,omitempty"`
	Category   string   `json:"category,omitempty"`
	State      State    `json:"state"`
	Enabled    bool     `json:"enabled"`
	LastError  string   `json:"last_error,omitempty"`
	Stats      Stats    `json:"stats"`
	DependsOn  []string `json:"depends_on,omitempty"`
	RequiredBy []string `json:"required_by,omitempty"`
}

// Operation is a single entry in a batch execution request.
type Operation struct {
	Skill  string                 `json:"skill"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// OperationResult is the outcome of one batch operation.
type OperationResult struct {
	Skill  string                 `json:"skill"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}
