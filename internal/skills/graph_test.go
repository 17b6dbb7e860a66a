package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, r *Registry, name string, deps ...Dependency) {
	t.Helper()
	require.NoError(t, r.Register(Descriptor{
		Name:         name,
		Version:      "1.0.0",
		Enabled:      true,
		Dependencies: deps,
	}))
}

func dep(name string) Dependency         { return Dependency{Name: name} }
func optionalDep(name string) Dependency { return Dependency{Name: name, Optional: true} }

func TestExecutionOrder_DependenciesFirst(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "outreach")
	register(t, r, "intelligence")
	register(t, r, "pipeline", dep("outreach"))
	register(t, r, "strategy", dep("intelligence"), dep("pipeline"))

	order, err := r.ExecutionOrder([]string{"strategy"})
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["outreach"], pos["pipeline"])
	assert.Less(t, pos["pipeline"], pos["strategy"])
	assert.Less(t, pos["intelligence"], pos["strategy"])
	assert.Len(t, order, 4)
}

func TestExecutionOrder_StableRegistrationTieBreak(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "charlie")
	register(t, r, "alpha")
	register(t, r, "bravo")

	// Independent skills come out in registration order, regardless of
	// the order they were requested in.
	order, err := r.ExecutionOrder([]string{"bravo", "alpha", "charlie"})
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "alpha", "bravo"}, order)
}

func TestExecutionOrder_CycleDetected(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "a", dep("b"))
	register(t, r, "b", dep("c"))
	register(t, r, "c", dep("a"))

	_, err := r.ExecutionOrder([]string{"a"})
	require.Error(t, err)

	var cycErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycErr)
	assert.GreaterOrEqual(t, len(cycErr.Cycle), 3)
	assert.Equal(t, cycErr.Cycle[0], cycErr.Cycle[len(cycErr.Cycle)-1])

	// Cycle detection must not leave any instance behind.
	for _, name := range []string{"a", "b", "c"} {
		state, stErr := r.State(name)
		require.NoError(t, stErr)
		assert.Equal(t, StateUnloaded, state)
	}
}

func TestExecutionOrder_SelfCycle(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "narcissist", dep("narcissist"))

	_, err := r.ExecutionOrder([]string{"narcissist"})
	var cycErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycErr)
	assert.Contains(t, cycErr.Error(), "narcissist")
}

func TestExecutionOrder_UnknownSkill(t *testing.T) {
	r := NewRegistry(Config{})
	_, err := r.ExecutionOrder([]string{"ghost"})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestExecutionOrder_MissingRequiredDependency(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "top", dep("missing"))

	_, err := r.ExecutionOrder([]string{"top"})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestExecutionOrder_MissingOptionalDependencySkipped(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "top", optionalDep("nice-to-have"))

	order, err := r.ExecutionOrder([]string{"top"})
	require.NoError(t, err)
	assert.Equal(t, []string{"top"}, order)
}

func TestExecutionOrder_OptionalDependencyOrderedWhenPresent(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "extra")
	register(t, r, "top", optionalDep("extra"))

	order, err := r.ExecutionOrder([]string{"top"})
	require.NoError(t, err)
	assert.Equal(t, []string{"extra", "top"}, order)
}

func TestExecutionOrder_SharedDependencyAppearsOnce(t *testing.T) {
	r := NewRegistry(Config{})
	register(t, r, "base")
	register(t, r, "left", dep("base"))
	register(t, r, "right", dep("base"))

	order, err := r.ExecutionOrder([]string{"left", "right"})
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "left", "right"}, order)
}
