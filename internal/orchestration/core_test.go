package orchestration

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foreman/internal/config"
	"foreman/internal/notify"
	"foreman/internal/scheduler"
	"foreman/internal/skills"
)

type echoSkill struct {
	mu   sync.Mutex
	runs int
}

func (s *echoSkill) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	return map[string]interface{}{"status": "ok"}, nil
}

func (s *echoSkill) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "core.db")
	cfg.Scheduler.TickInterval = "10ms"

	core, err := New(cfg)
	require.NoError(t, err)
	return core
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCoreSkillJobExecution(t *testing.T) {
	core := newTestCore(t)
	core.Start(context.Background())
	defer core.Shutdown()

	skill := &echoSkill{}
	require.NoError(t, core.Registry().Register(skills.Descriptor{Name: "echo", Version: "1.0", Enabled: true}))
	core.Registry().RegisterFactory("echo", func() skills.Skill { return skill })

	_, err := core.Scheduler().ScheduleAt("run_echo", map[string]interface{}{
		"kind":  "skill",
		"skill": "echo",
	}, "test", time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)

	waitFor(t, func() bool { return skill.runCount() == 1 })

	stats, err := core.Registry().Stats("echo")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalExecutions)
	assert.Equal(t, 1, stats.SuccessCount)
}

func TestCoreApprovalAuditAndNotification(t *testing.T) {
	core := newTestCore(t)
	core.Start(context.Background())
	defer core.Shutdown()

	var mu sync.Mutex
	var messages []string
	core.Dispatcher().Subscribe(func(e notify.Event) {
		mu.Lock()
		messages = append(messages, e.Message)
		mu.Unlock()
	})

	req, err := core.Gate().CreateRequest("linkedin_post", nil, "alice")
	require.NoError(t, err)

	// The audit record lands in the vault.
	doc, err := core.Vault().Get("approval_" + req.ID)
	require.NoError(t, err)
	assert.Equal(t, "approvals", doc.Category)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0], "Approval needed")
}

func TestCoreJobPersistedToVault(t *testing.T) {
	core := newTestCore(t)
	defer core.Shutdown()

	job, err := core.Scheduler().ScheduleAt("later", map[string]interface{}{
		"kind": "notice", "message": "ping",
	}, "test", time.Now().Add(time.Hour))
	require.NoError(t, err)

	doc, err := core.Vault().Get("job_" + job.ID)
	require.NoError(t, err)
	assert.Equal(t, "jobs", doc.Category)
}

func TestCoreUnknownPayloadKindFails(t *testing.T) {
	core := newTestCore(t)
	defer core.Shutdown()

	err := core.executeJob(context.Background(), &scheduler.Job{
		ID:      "j1",
		Payload: map[string]interface{}{"kind": "teleport"},
	})
	assert.Error(t, err)

	err = core.executeJob(context.Background(), &scheduler.Job{
		ID:      "j2",
		Payload: map[string]interface{}{"kind": "skill"},
	})
	assert.Error(t, err, "missing skill name")
}

func TestCoreSchedulesMaintenanceJob(t *testing.T) {
	core := newTestCore(t)
	core.Start(context.Background())
	defer core.Shutdown()

	var found *scheduler.Job
	for _, job := range core.Scheduler().Jobs() {
		if job.Name == "vault_maintenance" {
			found = job
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.Recurring)
	assert.Equal(t, "maintenance", found.Resource)

	// Running the maintenance payload directly exercises the runner.
	require.NoError(t, core.executeJob(context.Background(), found))
	assert.NotEmpty(t, core.Maintenance().LastResults())
}
