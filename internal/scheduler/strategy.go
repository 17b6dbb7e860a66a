package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Strategy resolves one conflict group by assigning new fire times.
// Implementations mutate the jobs in place; the scheduler handles
// persistence and re-grouping afterwards.
type Strategy interface {
	Name() string
	Resolve(group ConflictGroup, jobs []*Job, increment time.Duration)
}

// ShiftStrategy keeps the first job at the contested time and moves every
// subsequent job forward by the increment multiplied by its position,
// preserving original relative order.
type ShiftStrategy struct{}

func (ShiftStrategy) Name() string { return "time_shift" }

func (ShiftStrategy) Resolve(group ConflictGroup, jobs []*Job, increment time.Duration) {
	for i, job := range jobs {
		if i == 0 {
			continue
		}
		job.NextFire = group.At.Add(time.Duration(i) * increment)
	}
}

// PriorityStrategy reorders the group so higher-priority jobs fire first,
// then applies the same positional shift. Creation order breaks ties.
type PriorityStrategy struct{}

func (PriorityStrategy) Name() string { return "priority" }

func (PriorityStrategy) Resolve(group ConflictGroup, jobs []*Job, increment time.Duration) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Priority > jobs[j].Priority
	})
	for i, job := range jobs {
		job.NextFire = group.At.Add(time.Duration(i) * increment)
	}
}

// FrequencyStrategy caps how many jobs fire on a resource per window. The
// highest-priority jobs up to the cap stay in the contested slot spaced by
// the increment; the overflow is pushed out a full window so the resource's
// effective fire rate drops instead of just sliding.
type FrequencyStrategy struct {
	Cap    int           // jobs permitted per window; 0 means 2
	Window time.Duration // deferral distance for overflow; 0 means 1h
}

func (FrequencyStrategy) Name() string { return "frequency_adjustment" }

func (f FrequencyStrategy) Resolve(group ConflictGroup, jobs []*Job, increment time.Duration) {
	limit := f.Cap
	if limit <= 0 {
		limit = 2
	}
	window := f.Window
	if window <= 0 {
		window = time.Hour
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Priority > jobs[j].Priority
	})
	for i, job := range jobs {
		if i < limit {
			job.NextFire = group.At.Add(time.Duration(i) * increment)
			continue
		}
		job.NextFire = group.At.Add(window + time.Duration(i-limit)*increment)
	}
}

var (
	strategyMu  sync.RWMutex
	strategyReg = map[string]Strategy{
		ShiftStrategy{}.Name():     ShiftStrategy{},
		PriorityStrategy{}.Name():  PriorityStrategy{},
		FrequencyStrategy{}.Name(): FrequencyStrategy{},
	}
)

// RegisterStrategy makes a strategy selectable by name, replacing any
// previous registration under the same name.
func RegisterStrategy(s Strategy) {
	strategyMu.Lock()
	defer strategyMu.Unlock()
	strategyReg[s.Name()] = s
}

// StrategyByName returns the registered strategy for name.
func StrategyByName(name string) (Strategy, error) {
	strategyMu.RLock()
	defer strategyMu.RUnlock()
	s, ok := strategyReg[name]
	if !ok {
		return nil, fmt.Errorf("unknown conflict strategy: %s", name)
	}
	return s, nil
}
