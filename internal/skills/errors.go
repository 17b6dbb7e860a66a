package skills

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the skills package.
var (
	ErrNotRegistered = errors.New("skill not registered")
	ErrNoFactory     = errors.New("no factory registered for skill")
	ErrNotLoaded     = errors.New("skill not loaded")
	ErrSkillDisabled = errors.New("skill is disabled")
	ErrNotActive     = errors.New("skill is not active")
)

// CyclicDependencyError reports a dependency cycle. The cycle slice lists the
// skills along the back-edge, starting and ending at the same name.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic skill dependency: %s", strings.Join(e.Cycle, " -> "))
}

// ExecutionError wraps a failure that occurred inside a delegated skill,
// identifying which skill failed so callers can distinguish core failures
// from delegated-work failures.
type ExecutionError struct {
	Skill string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("skill %s execution failed: %v", e.Skill, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
