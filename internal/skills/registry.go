package skills

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Config defines configuration for the skill registry.
type Config struct {
	// AutoActivate allows Execute to load and activate a skill (and its
	// required dependencies) on demand instead of failing.
	AutoActivate bool `json:"auto_activate"`
}

// instance is a live skill owned exclusively by the registry. Callers never
// hold a reference; all interaction goes through the registry API. The
// per-instance mutex serializes mutating calls against the same skill.
type instance struct {
	mu        sync.Mutex
	skill     Skill
	state     State
	lastError string
	stats     Stats
}

// Registry catalogs skill descriptors, instantiates skills through typed
// factories, tracks the dependency graph, and drives the per-skill lifecycle
// state machine.
type Registry struct {
	mu          sync.RWMutex
	config      Config
	descriptors map[string]Descriptor
	factories   map[string]Factory
	instances   map[string]*instance
	regOrder    map[string]int
	nextOrder   int
	now         func() time.Time
}

// NewRegistry creates an empty skill registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		config:      cfg,
		descriptors: make(map[string]Descriptor),
		factories:   make(map[string]Factory),
		instances:   make(map[string]*instance),
		regOrder:    make(map[string]int),
		now:         time.Now,
	}
}

// Register stores a descriptor by name, replacing any previous registration
// under the same name. Live instances are not affected.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("descriptor has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[desc.Name]; !exists {
		r.regOrder[desc.Name] = r.nextOrder
		r.nextOrder++
	}
	r.descriptors[desc.Name] = desc
	log.Printf("[Skills] Registered skill: %s (v%s)", desc.Name, desc.Version)
	return nil
}

// RegisterFactory associates a typed factory with a skill name.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Descriptor returns the registered descriptor for a skill.
func (r *Registry) Descriptor(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return desc, nil
}

// ListSkills returns all registered skill names in registration order.
func (r *Registry) ListSkills() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.regOrder[names[i]] < r.regOrder[names[j]]
	})
	return names
}

// Load instantiates a skill if not already loaded. Idempotent.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.loadLocked(name)
	return err
}

func (r *Registry) loadLocked(name string) (*instance, error) {
	if inst, ok := r.instances[name]; ok {
		return inst, nil
	}
	if _, ok := r.descriptors[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, name)
	}
	inst := &instance{
		skill: factory(),
		state: StateLoaded,
	}
	r.instances[name] = inst
	log.Printf("[Skills] Loaded skill: %s", name)
	return inst, nil
}

// Unload deactivates and destroys a skill instance. The descriptor stays
// registered.
func (r *Registry) Unload(ctx context.Context, name string) error {
	r.mu.Lock()
	inst, ok := r.instances[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	delete(r.instances, name)
	r.mu.Unlock()

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state == StateActive {
		if d, ok := inst.skill.(Deactivator); ok {
			if err := d.OnDeactivate(ctx); err != nil {
				log.Printf("[Skills] Deactivate hook failed during unload of %s: %v", name, err)
			}
		}
	}
	inst.state = StateUnloaded
	log.Printf("[Skills] Unloaded skill: %s", name)
	return nil
}

// Activate loads and activates the skill and all of its non-optional
// dependencies in dependency order. On any dependency or hook failure the
// skill is placed in StateError with a recorded message and is not marked
// Active.
func (r *Registry) Activate(ctx context.Context, name string) error {
	r.mu.Lock()
	order, err := r.executionOrderLocked([]string{name}, true)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	insts := make([]*instance, 0, len(order))
	for _, dep := range order {
		inst, err := r.loadLocked(dep)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		insts = append(insts, inst)
	}
	r.mu.Unlock()

	for i, dep := range order {
		if err := r.activateInstance(ctx, dep, insts[i]); err != nil {
			if dep != name {
				// Dependency failed: record on the requested skill too.
				r.setError(name, fmt.Sprintf("dependency %s failed to activate: %v", dep, err))
			}
			return err
		}
	}
	return nil
}

func (r *Registry) activateInstance(ctx context.Context, name string, inst *instance) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state == StateActive {
		return nil
	}
	if a, ok := inst.skill.(Activator); ok {
		if err := a.OnActivate(ctx); err != nil {
			inst.state = StateError
			inst.lastError = err.Error()
			log.Printf("[Skills] Error activating skill %s: %v", name, err)
			return fmt.Errorf("activating skill %s: %w", name, err)
		}
	}
	inst.state = StateActive
	inst.lastError = ""
	log.Printf("[Skills] Skill %s activated", name)
	return nil
}

func (r *Registry) setError(name, msg string) {
	r.mu.RLock()
	inst, ok := r.instances[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	inst.mu.Lock()
	inst.state = StateError
	inst.lastError = msg
	inst.mu.Unlock()
}

// Deactivate moves a skill to StateInactive. No-op if already inactive.
func (r *Registry) Deactivate(ctx context.Context, name string) error {
	r.mu.RLock()
	inst, ok := r.instances[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state == StateInactive {
		return nil
	}
	if d, ok := inst.skill.(Deactivator); ok {
		if err := d.OnDeactivate(ctx); err != nil {
			inst.state = StateError
			inst.lastError = err.Error()
			log.Printf("[Skills] Error deactivating skill %s: %v", name, err)
			return fmt.Errorf("deactivating skill %s: %w", name, err)
		}
	}
	inst.state = StateInactive
	log.Printf("[Skills] Skill %s deactivated", name)
	return nil
}

// State returns the lifecycle state of a loaded skill.
func (r *Registry) State(name string) (State, error) {
	r.mu.RLock()
	inst, ok := r.instances[name]
	_, registered := r.descriptors[name]
	r.mu.RUnlock()
	if !ok {
		if !registered {
			return "", fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
		return StateUnloaded, nil
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state, nil
}

// Stats returns a copy of a skill's execution statistics.
func (r *Registry) Stats(name string) (Stats, error) {
	r.mu.RLock()
	inst, ok := r.instances[name]
	r.mu.RUnlock()
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.stats, nil
}

// Execute runs a skill with the given parameters, ensuring it is loaded and
// active first (auto-activating when policy allows). Statistics are updated
// exactly once per attempt. A failure inside the skill is wrapped in an
// ExecutionError carrying the skill's name.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (map[string]interface{}, error) {
	r.mu.RLock()
	desc, registered := r.descriptors[name]
	inst, loaded := r.instances[name]
	r.mu.RUnlock()

	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	if !desc.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrSkillDisabled, name)
	}

	if !loaded {
		if !r.config.AutoActivate {
			return nil, fmt.Errorf("%w: %s", ErrNotLoaded, name)
		}
		if err := r.Activate(ctx, name); err != nil {
			return nil, err
		}
		r.mu.RLock()
		inst = r.instances[name]
		r.mu.RUnlock()
	}

	inst.mu.Lock()
	if inst.state != StateActive {
		if !r.config.AutoActivate {
			inst.mu.Unlock()
			return nil, fmt.Errorf("%w: %s (state %s)", ErrNotActive, name, inst.state)
		}
		inst.mu.Unlock()
		if err := r.Activate(ctx, name); err != nil {
			return nil, err
		}
		inst.mu.Lock()
	}
	defer inst.mu.Unlock()

	start := r.now()
	result, err := inst.skill.Execute(ctx, params)
	latency := r.now().Sub(start)

	inst.stats.TotalExecutions++
	if err != nil {
		inst.stats.FailureCount++
	} else {
		inst.stats.SuccessCount++
	}
	n := time.Duration(inst.stats.TotalExecutions)
	inst.stats.AvgLatency += (latency - inst.stats.AvgLatency) / n
	inst.stats.LastExecuted = start

	if err != nil {
		log.Printf("[Skills] Skill %s execution failed: %v", name, err)
		return nil, &ExecutionError{Skill: name, Err: err}
	}
	return result, nil
}

// ExecuteBatch executes a list of operations in dependency order: the order
// is computed over all referenced skills first, then operations run strictly
// in that order so prerequisite skills always run before dependents.
// Per-operation failures are reported in the results, not returned.
func (r *Registry) ExecuteBatch(ctx context.Context, ops []Operation) ([]OperationResult, error) {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Skill)
	}
	order, err := r.ExecutionOrder(names)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}

	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pos[sorted[i].Skill] < pos[sorted[j].Skill]
	})

	results := make([]OperationResult, 0, len(sorted))
	for _, op := range sorted {
		res := OperationResult{Skill: op.Skill}
		out, err := r.Execute(ctx, op.Skill, op.Params)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Result = out
		}
		results = append(results, res)
	}
	return results, nil
}

// StatusReport returns a snapshot of every loaded skill, including
// dependency fan-in/fan-out.
func (r *Registry) StatusReport() []SkillStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requiredBy := make(map[string][]string)
	for name, desc := range r.descriptors {
		for _, dep := range desc.Dependencies {
			requiredBy[dep.Name] = append(requiredBy[dep.Name], name)
		}
	}

	var statuses []SkillStatus
	for name, inst := range r.instances {
		desc := r.descriptors[name]
		deps := make([]string, 0, len(desc.Dependencies))
		for _, d := range desc.Dependencies {
			deps = append(deps, d.Name)
		}
		sort.Strings(deps)
		rb := append([]string(nil), requiredBy[name]...)
		sort.Strings(rb)

		inst.mu.Lock()
		statuses = append(statuses, SkillStatus{
			Name:       name,
			Version:    desc.Version,
			Category:   desc.Category,
			State:      inst.state,
			Enabled:    desc.Enabled,
			LastError:  inst.lastError,
			Stats:      inst.stats,
			DependsOn:  deps,
			RequiredBy: rb,
		})
		inst.mu.Unlock()
	}
	sort.Slice(statuses, func(i, j int) bool {
		return r.regOrder[statuses[i].Name] < r.regOrder[statuses[j].Name]
	})
	return statuses
}
