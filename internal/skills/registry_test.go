package skills

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSkill is a configurable test skill with optional lifecycle hooks.
type stubSkill struct {
	executed     int
	failWith     error
	activateErr  error
	activated    int
	deactivated  int
	executedLog  *[]string
	name         string
	resultStatus string
}

func (s *stubSkill) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	s.executed++
	if s.executedLog != nil {
		*s.executedLog = append(*s.executedLog, s.name)
	}
	if s.failWith != nil {
		return nil, s.failWith
	}
	status := s.resultStatus
	if status == "" {
		status = "success"
	}
	return map[string]interface{}{"status": status}, nil
}

func (s *stubSkill) OnActivate(ctx context.Context) error {
	s.activated++
	return s.activateErr
}

func (s *stubSkill) OnDeactivate(ctx context.Context) error {
	s.deactivated++
	return nil
}

func registerWithFactory(t *testing.T, r *Registry, name string, skill *stubSkill, deps ...Dependency) {
	t.Helper()
	skill.name = name
	register(t, r, name, deps...)
	r.RegisterFactory(name, func() Skill { return skill })
}

func TestLifecycle_LoadActivateDeactivate(t *testing.T) {
	r := NewRegistry(Config{})
	s := &stubSkill{}
	registerWithFactory(t, r, "outreach", s)

	require.NoError(t, r.Load("outreach"))
	state, err := r.State("outreach")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, state)

	// Load is idempotent.
	require.NoError(t, r.Load("outreach"))

	require.NoError(t, r.Activate(context.Background(), "outreach"))
	state, _ = r.State("outreach")
	assert.Equal(t, StateActive, state)
	assert.Equal(t, 1, s.activated)

	// Re-activating an active skill does not re-run the hook.
	require.NoError(t, r.Activate(context.Background(), "outreach"))
	assert.Equal(t, 1, s.activated)

	require.NoError(t, r.Deactivate(context.Background(), "outreach"))
	state, _ = r.State("outreach")
	assert.Equal(t, StateInactive, state)

	// Deactivate is a no-op when already inactive.
	require.NoError(t, r.Deactivate(context.Background(), "outreach"))
	assert.Equal(t, 1, s.deactivated)
}

func TestLoad_NotRegistered(t *testing.T) {
	r := NewRegistry(Config{})
	assert.ErrorIs(t, r.Load("ghost"), ErrNotRegistered)
}

func TestActivate_DependenciesActivatedFirst(t *testing.T) {
	r := NewRegistry(Config{})
	base := &stubSkill{}
	top := &stubSkill{}
	registerWithFactory(t, r, "base", base)
	registerWithFactory(t, r, "top", top, dep("base"))

	require.NoError(t, r.Activate(context.Background(), "top"))

	for _, name := range []string{"base", "top"} {
		state, err := r.State(name)
		require.NoError(t, err)
		assert.Equal(t, StateActive, state, name)
	}
}

func TestActivate_OptionalDependencyNotRequired(t *testing.T) {
	r := NewRegistry(Config{})
	top := &stubSkill{}
	registerWithFactory(t, r, "top", top, optionalDep("absent"))

	require.NoError(t, r.Activate(context.Background(), "top"))
	state, _ := r.State("top")
	assert.Equal(t, StateActive, state)
}

func TestActivate_HookFailureRecordsError(t *testing.T) {
	r := NewRegistry(Config{})
	bad := &stubSkill{activateErr: errors.New("no credentials")}
	top := &stubSkill{}
	registerWithFactory(t, r, "bad", bad)
	registerWithFactory(t, r, "top", top, dep("bad"))

	err := r.Activate(context.Background(), "top")
	require.Error(t, err)

	badState, _ := r.State("bad")
	assert.Equal(t, StateError, badState)

	topState, _ := r.State("top")
	assert.Equal(t, StateError, topState)
	assert.NotEqual(t, StateActive, topState)

	report := r.StatusReport()
	for _, st := range report {
		if st.Name == "bad" {
			assert.Contains(t, st.LastError, "no credentials")
		}
	}
}

func TestExecute_UpdatesStatsOncePerAttempt(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	s := &stubSkill{}
	registerWithFactory(t, r, "outreach", s)

	_, err := r.Execute(context.Background(), "outreach", nil)
	require.NoError(t, err)

	s.failWith = errors.New("smtp down")
	_, err = r.Execute(context.Background(), "outreach", nil)
	require.Error(t, err)

	stats, err := r.Stats("outreach")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
}

func TestExecute_RunningAverageLatency(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	s := &stubSkill{}
	registerWithFactory(t, r, "slow", s)

	// Drive the registry clock: each Execute sees start and end one tick
	// apart, with increasing tick sizes.
	ticks := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	call := 0
	r.now = func() time.Time {
		t := base
		for i := 0; i < call/2; i++ {
			t = t.Add(ticks[i])
		}
		if call%2 == 1 {
			t = t.Add(ticks[call/2])
		}
		call++
		return t
	}

	_, err := r.Execute(context.Background(), "slow", nil)
	require.NoError(t, err)
	_, err = r.Execute(context.Background(), "slow", nil)
	require.NoError(t, err)

	stats, _ := r.Stats("slow")
	assert.Equal(t, 200*time.Millisecond, stats.AvgLatency)
}

func TestExecute_WrapsSkillFailure(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	cause := errors.New("upstream timeout")
	s := &stubSkill{failWith: cause}
	registerWithFactory(t, r, "flaky", s)

	_, err := r.Execute(context.Background(), "flaky", nil)
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "flaky", execErr.Skill)
	assert.ErrorIs(t, err, cause)
}

func TestExecute_DisabledSkill(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	require.NoError(t, r.Register(Descriptor{Name: "dormant", Enabled: false}))
	r.RegisterFactory("dormant", func() Skill { return &stubSkill{} })

	_, err := r.Execute(context.Background(), "dormant", nil)
	assert.ErrorIs(t, err, ErrSkillDisabled)
}

func TestExecute_NoAutoActivatePolicy(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: false})
	registerWithFactory(t, r, "manual", &stubSkill{})

	_, err := r.Execute(context.Background(), "manual", nil)
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, r.Load("manual"))
	_, err = r.Execute(context.Background(), "manual", nil)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestExecuteBatch_RunsInDependencyOrder(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	var execLog []string

	base := &stubSkill{executedLog: &execLog}
	mid := &stubSkill{executedLog: &execLog}
	top := &stubSkill{executedLog: &execLog}
	registerWithFactory(t, r, "base", base)
	registerWithFactory(t, r, "mid", mid, dep("base"))
	registerWithFactory(t, r, "top", top, dep("mid"))

	results, err := r.ExecuteBatch(context.Background(), []Operation{
		{Skill: "top"},
		{Skill: "base"},
		{Skill: "mid"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"base", "mid", "top"}, execLog)
}

func TestExecuteBatch_ReportsPerOperationFailures(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	good := &stubSkill{}
	bad := &stubSkill{failWith: errors.New("boom")}
	registerWithFactory(t, r, "good", good)
	registerWithFactory(t, r, "bad", bad)

	results, err := r.ExecuteBatch(context.Background(), []Operation{
		{Skill: "good"},
		{Skill: "bad"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	assert.Contains(t, results[1].Error, "boom")
}

func TestReRegister_ReplacesDescriptorKeepsInstance(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	s := &stubSkill{}
	registerWithFactory(t, r, "evolving", s)
	require.NoError(t, r.Activate(context.Background(), "evolving"))

	require.NoError(t, r.Register(Descriptor{Name: "evolving", Version: "2.0.0", Enabled: true}))

	// The live instance is untouched by re-registration.
	state, _ := r.State("evolving")
	assert.Equal(t, StateActive, state)

	desc, err := r.Descriptor("evolving")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", desc.Version)
}

func TestUnload_DestroysInstance(t *testing.T) {
	r := NewRegistry(Config{})
	s := &stubSkill{}
	registerWithFactory(t, r, "transient", s)
	require.NoError(t, r.Load("transient"))
	require.NoError(t, r.Activate(context.Background(), "transient"))

	require.NoError(t, r.Unload(context.Background(), "transient"))
	assert.Equal(t, 1, s.deactivated)

	state, err := r.State("transient")
	require.NoError(t, err)
	assert.Equal(t, StateUnloaded, state)

	assert.ErrorIs(t, r.Unload(context.Background(), "transient"), ErrNotLoaded)
}

func TestStatusReport_DependencyInfo(t *testing.T) {
	r := NewRegistry(Config{AutoActivate: true})
	base := &stubSkill{}
	top := &stubSkill{}
	registerWithFactory(t, r, "base", base)
	registerWithFactory(t, r, "top", top, dep("base"))
	require.NoError(t, r.Activate(context.Background(), "top"))

	report := r.StatusReport()
	require.Len(t, report, 2)
	assert.Equal(t, "base", report[0].Name)
	assert.Equal(t, []string{"top"}, report[0].RequiredBy)
	assert.Equal(t, []string{"base"}, report[1].DependsOn)
}
