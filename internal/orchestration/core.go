// Package orchestration wires the skill registry, approval gate, scheduler,
// vault and notification dispatcher into one owned core. All mutable tables
// live behind this handle; there is no package-level state.
package orchestration

import (
	"context"
	"fmt"
	"log"

	"foreman/internal/approval"
	"foreman/internal/config"
	"foreman/internal/maintenance"
	"foreman/internal/notify"
	"foreman/internal/scheduler"
	"foreman/internal/skills"
	"foreman/internal/vault"
)

// Core owns every subsystem for one orchestrator instance.
type Core struct {
	cfg        *config.Config
	registry   *skills.Registry
	gate       *approval.Gate
	sched      *scheduler.Scheduler
	store      *vault.SQLiteStore
	dispatcher *notify.Dispatcher
	upkeep     *maintenance.Runner

	cancel context.CancelFunc
}

// New builds a core from config. Nothing runs until Start is called.
func New(cfg *config.Config) (*Core, error) {
	store, err := vault.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notify.Dispatcher, store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build dispatcher: %w", err)
	}
	if cfg.Notify.Telegram.Enabled {
		channel, err := notify.NewTelegramChannel(cfg.Notify.Telegram)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to build telegram channel: %w", err)
		}
		dispatcher.AddChannel(channel)
	}

	gate, err := approval.NewGate(cfg.Approval,
		approval.WithNotifier(dispatcher),
		approval.WithAuditStore(store),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build approval gate: %w", err)
	}

	core := &Core{
		cfg:        cfg,
		registry:   skills.NewRegistry(cfg.Skills),
		gate:       gate,
		store:      store,
		dispatcher: dispatcher,
		upkeep:     maintenance.NewRunner(store.DB(), cfg.Database.Path, cfg.Maintenance, nil),
	}

	sched, err := scheduler.New(cfg.Scheduler, core.executeJob,
		scheduler.WithStore(store),
		scheduler.WithHistory(scheduler.NewSQLHistory(store.DB())),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build scheduler: %w", err)
	}
	core.sched = sched

	return core, nil
}

// Start launches the dispatcher, the approval sweeper and the scheduler's
// timer loop.
func (c *Core) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.dispatcher.Start(ctx)
	c.gate.StartSweeper(ctx)
	c.sched.Start(ctx)

	if c.cfg.Maintenance.Enabled {
		spec := c.cfg.Maintenance.Spec
		if spec == "" {
			spec = maintenance.DefaultConfig().Spec
		}
		payload := map[string]interface{}{"kind": "maintenance"}
		if _, err := c.sched.ScheduleRecurring("vault_maintenance", payload, "maintenance", spec); err != nil {
			log.Printf("[Core] Failed to schedule maintenance: %v", err)
		}
	}
	log.Printf("[Core] Orchestration core started")
}

// Shutdown stops subsystems in dependency order: no new job firings, then
// drain notifications, then close storage.
func (c *Core) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.sched.Stop()
	c.dispatcher.Stop()
	if err := c.store.Close(); err != nil {
		log.Printf("[Core] Failed to close vault: %v", err)
	}
	log.Printf("[Core] Orchestration core stopped")
}

// Registry returns the skill registry.
func (c *Core) Registry() *skills.Registry { return c.registry }

// Gate returns the approval gate.
func (c *Core) Gate() *approval.Gate { return c.gate }

// Scheduler returns the job scheduler.
func (c *Core) Scheduler() *scheduler.Scheduler { return c.sched }

// Vault returns the document store.
func (c *Core) Vault() *vault.SQLiteStore { return c.store }

// Dispatcher returns the notification dispatcher.
func (c *Core) Dispatcher() *notify.Dispatcher { return c.dispatcher }

// Maintenance returns the vault maintenance runner.
func (c *Core) Maintenance() *maintenance.Runner { return c.upkeep }

// executeJob routes fired jobs by payload kind. Skill jobs run through the
// registry; notice jobs re-enter the dispatcher. The scheduler records the
// outcome either way.
func (c *Core) executeJob(ctx context.Context, job *scheduler.Job) error {
	kind, _ := job.Payload["kind"].(string)
	switch kind {
	case "", "skill":
		name, _ := job.Payload["skill"].(string)
		if name == "" {
			return fmt.Errorf("job %s has no skill name in payload", job.ID)
		}
		params, _ := job.Payload["params"].(map[string]interface{})
		_, err := c.registry.Execute(ctx, name, params)
		return err
	case "notice":
		message, _ := job.Payload["message"].(string)
		if message == "" {
			return fmt.Errorf("job %s has no message in payload", job.ID)
		}
		c.dispatcher.Notify(message, job.ID)
		return nil
	case "maintenance":
		for _, result := range c.upkeep.RunAll(ctx) {
			if !result.Success {
				return fmt.Errorf("maintenance task %s failed: %s", result.Task, result.Error)
			}
		}
		return nil
	default:
		return fmt.Errorf("job %s has unknown payload kind %q", job.ID, kind)
	}
}
