package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Config controls the scheduler's timer loop and conflict handling.
type Config struct {
	TickInterval      string                    `json:"tick_interval"`
	ConflictIncrement string                    `json:"conflict_increment"`
	ConflictStrategy  string                    `json:"conflict_strategy,omitempty"`
	MaxShiftAttempts  int                       `json:"max_shift_attempts"`
	Windows           []Window                  `json:"optimal_windows,omitempty"`
	Sequences         map[string][]SequenceStep `json:"sequences,omitempty"`
	SequencesFile     string                    `json:"sequences_file,omitempty"`
}

// DefaultConfig returns the stock scheduler settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:      "1s",
		ConflictIncrement: "15m",
		MaxShiftAttempts:  8,
	}
}

// Scheduler drives job firing from a background timer loop. Callers
// schedule, cancel, pause and resume jobs; execution is delegated to the
// configured action function and never blocks the timer loop.
type Scheduler struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	order     []string
	inFlight  map[string]bool
	action    ActionFunc
	store     Store
	history   History
	strategy  Strategy
	windows   []Window
	sequences map[string][]SequenceStep

	tick      time.Duration
	increment time.Duration
	maxShift  int

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStore wires durable job persistence.
func WithStore(store Store) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithHistory wires an execution history recorder.
func WithHistory(h History) Option {
	return func(s *Scheduler) { s.history = h }
}

// WithStrategy overrides the default conflict resolution strategy.
func WithStrategy(strategy Strategy) Option {
	return func(s *Scheduler) { s.strategy = strategy }
}

// New builds a scheduler from config. The action function is invoked for
// every fired job.
func New(cfg Config, action ActionFunc, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		jobs:      make(map[string]*Job),
		inFlight:  make(map[string]bool),
		action:    action,
		strategy:  ShiftStrategy{},
		windows:   DefaultWindows(),
		sequences: DefaultSequences(),
		tick:      time.Second,
		increment: 15 * time.Minute,
		maxShift:  8,
		now:       time.Now,
	}

	if cfg.TickInterval != "" {
		d, err := time.ParseDuration(cfg.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("tick_interval: %w", err)
		}
		s.tick = d
	}
	if cfg.ConflictIncrement != "" {
		d, err := time.ParseDuration(cfg.ConflictIncrement)
		if err != nil {
			return nil, fmt.Errorf("conflict_increment: %w", err)
		}
		s.increment = d
	}
	if cfg.ConflictStrategy != "" {
		strat, err := StrategyByName(cfg.ConflictStrategy)
		if err != nil {
			return nil, err
		}
		s.strategy = strat
	}
	if cfg.MaxShiftAttempts > 0 {
		s.maxShift = cfg.MaxShiftAttempts
	}
	if len(cfg.Windows) > 0 {
		s.windows = cfg.Windows
	}
	if cfg.SequencesFile != "" {
		loaded, err := LoadSequencesFile(cfg.SequencesFile)
		if err != nil {
			return nil, err
		}
		for name, steps := range loaded {
			s.sequences[name] = steps
		}
	}
	for name, steps := range cfg.Sequences {
		s.sequences[name] = steps
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the timer loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	log.Printf("[Scheduler] Started (tick=%s, conflict_increment=%s)", s.tick, s.increment)
}

// Stop halts the timer loop and waits for in-flight executions.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Printf("[Scheduler] Stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(s.now())
		}
	}
}

// ScheduleAt creates a one-time job at an absolute time. If the slot is
// already taken for the resource, the job is shifted forward by the
// conflict increment until a free slot is found; when no legal slot exists
// within the shift budget the call fails with a ConflictError.
func (s *Scheduler) ScheduleAt(name string, payload map[string]interface{}, resource string, when time.Time) (*Job, error) {
	s.mu.Lock()
	placed, err := s.placeLocked(when, resource, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	job := s.insertLocked(name, payload, resource, placed)
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persist(snapshot)
	log.Printf("[Scheduler] Scheduled job %s (%s) at %s", job.ID, name, placed.Format(time.RFC3339))
	return snapshot, nil
}

// ScheduleOptimized picks the earliest future slot from the ranked
// windows and schedules a one-time job there.
func (s *Scheduler) ScheduleOptimized(name string, payload map[string]interface{}, resource string) (*Job, error) {
	when := nextWindowTime(s.windows, s.now())
	return s.ScheduleAt(name, payload, resource, when)
}

// ScheduleRecurring creates a job that re-arms after each fire. The spec
// accepts standard cron expressions and @every intervals.
func (s *Scheduler) ScheduleRecurring(name string, payload map[string]interface{}, resource, spec string) (*Job, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence spec %q: %w", spec, err)
	}

	s.mu.Lock()
	job := s.insertLocked(name, payload, resource, schedule.Next(s.now()))
	job.Recurring = true
	job.Spec = spec
	job.schedule = schedule
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persist(snapshot)
	log.Printf("[Scheduler] Scheduled recurring job %s (%s) spec=%q next=%s",
		job.ID, name, spec, snapshot.NextFire.Format(time.RFC3339))
	return snapshot, nil
}

// ScheduleSequence expands a named template into one-time jobs at
// anchor + offsetDays per step, returned in step order. All placements are
// validated before any job is created.
func (s *Scheduler) ScheduleSequence(template string, anchor time.Time, resource string, payload map[string]interface{}) ([]*Job, error) {
	steps, ok := s.sequences[template]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}

	s.mu.Lock()
	claimed := make(map[slotKey]bool)
	placements := make([]time.Time, len(steps))
	for i, step := range steps {
		when := anchor.AddDate(0, 0, step.OffsetDays)
		placed, err := s.placeLocked(when, resource, claimed)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("sequence %s step %d: %w", template, i, err)
		}
		placements[i] = placed
		claimed[slotKey{placed.Unix(), resource}] = true
	}

	jobs := make([]*Job, len(steps))
	for i, step := range steps {
		stepPayload := make(map[string]interface{}, len(payload)+2)
		for k, v := range payload {
			stepPayload[k] = v
		}
		stepPayload["action"] = step.Action
		stepPayload["content"] = step.Content

		job := s.insertLocked(fmt.Sprintf("%s_step_%d", template, i+1), stepPayload, resource, placements[i])
		job.Sequence = template
		job.Step = i + 1
		jobs[i] = cloneJob(job)
	}
	s.mu.Unlock()

	for _, snapshot := range jobs {
		s.persist(snapshot)
	}
	log.Printf("[Scheduler] Scheduled sequence %s (%d steps) anchored at %s",
		template, len(jobs), anchor.Format(time.RFC3339))
	return jobs, nil
}

// Cancel removes the live trigger. The terminal record is retained.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s", ErrInvalidJobState, id, job.Status)
	}
	job.Status = StatusCancelled
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persist(snapshot)
	log.Printf("[Scheduler] Cancelled job %s", id)
	return nil
}

// Pause suspends a scheduled job's future firings. Pausing an already
// paused job is a no-op.
func (s *Scheduler) Pause(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status == StatusPaused {
		s.mu.Unlock()
		return nil
	}
	if job.Status != StatusScheduled {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s", ErrInvalidJobState, id, job.Status)
	}
	job.Status = StatusPaused
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persist(snapshot)
	return nil
}

// Resume reinstates a paused job. A recurring job whose fire time passed
// while paused is re-armed from now.
func (s *Scheduler) Resume(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status != StatusPaused {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s", ErrInvalidJobState, id, job.Status)
	}
	job.Status = StatusScheduled
	if job.Recurring && job.NextFire.Before(s.now()) {
		job.NextFire = job.scheduleOrReparse().Next(s.now())
	}
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persist(snapshot)
	return nil
}

// Job returns a snapshot of one job.
func (s *Scheduler) Job(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

// Jobs returns snapshots of all jobs in creation order, terminal records
// included.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneJob(s.jobs[id]))
	}
	return out
}

// DetectConflicts groups scheduled jobs sharing an identical fire
// timestamp and resource class. Passing no ids scans every live job.
// Groups of size one are not conflicts and are omitted.
func (s *Scheduler) DetectConflicts(ids []string) []ConflictGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scan := ids
	if len(scan) == 0 {
		scan = s.order
	}

	index := make(map[slotKey]int)
	var groups []ConflictGroup
	for _, id := range scan {
		job, ok := s.jobs[id]
		if !ok || job.Status != StatusScheduled {
			continue
		}
		key := slotKey{job.NextFire.Unix(), job.Resource}
		if i, seen := index[key]; seen {
			groups[i].JobIDs = append(groups[i].JobIDs, id)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, ConflictGroup{At: job.NextFire, Resource: job.Resource, JobIDs: []string{id}})
	}

	var conflicts []ConflictGroup
	for _, g := range groups {
		if len(g.JobIDs) > 1 {
			conflicts = append(conflicts, g)
		}
	}
	return conflicts
}

// ResolveConflicts applies the configured strategy to each group and
// returns the updated jobs.
func (s *Scheduler) ResolveConflicts(groups []ConflictGroup) []*Job {
	var snapshots []*Job

	s.mu.Lock()
	for _, group := range groups {
		var jobs []*Job
		for _, id := range group.JobIDs {
			if job, ok := s.jobs[id]; ok && job.Status == StatusScheduled {
				jobs = append(jobs, job)
			}
		}
		if len(jobs) < 2 {
			continue
		}
		s.strategy.Resolve(group, jobs, s.increment)
		for _, job := range jobs {
			snapshots = append(snapshots, cloneJob(job))
		}
		log.Printf("[Scheduler] Resolved conflict at %s/%s using %s (%d jobs)",
			group.At.Format(time.RFC3339), group.Resource, s.strategy.Name(), len(jobs))
	}
	s.mu.Unlock()

	for _, snapshot := range snapshots {
		s.persist(snapshot)
	}
	return snapshots
}

// Status summarizes the job table.
func (s *Scheduler) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return map[string]interface{}{
		"total_jobs": len(s.jobs),
		"scheduled":  counts[StatusScheduled],
		"paused":     counts[StatusPaused],
		"executed":   counts[StatusExecuted],
		"cancelled":  counts[StatusCancelled],
		"failed":     counts[StatusFailed],
	}
}

type slotKey struct {
	unix     int64
	resource string
}

// placeLocked finds the first free slot at or after when, shifting by the
// conflict increment. The claimed set covers slots taken earlier in the
// same batch. Caller holds s.mu.
func (s *Scheduler) placeLocked(when time.Time, resource string, claimed map[slotKey]bool) (time.Time, error) {
	var conflicting []string
	for i := 0; i <= s.maxShift; i++ {
		candidate := when.Add(time.Duration(i) * s.increment)
		key := slotKey{candidate.Unix(), resource}
		if claimed[key] {
			continue
		}
		if holder := s.slotHolderLocked(candidate, resource); holder != "" {
			conflicting = append(conflicting, holder)
			continue
		}
		return candidate, nil
	}
	return time.Time{}, &ConflictError{Resource: resource, At: when, JobIDs: conflicting}
}

func (s *Scheduler) slotHolderLocked(at time.Time, resource string) string {
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Live() && job.Resource == resource && job.NextFire.Equal(at) {
			return id
		}
	}
	return ""
}

// insertLocked creates and registers a one-time job. Caller holds s.mu.
func (s *Scheduler) insertLocked(name string, payload map[string]interface{}, resource string, when time.Time) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Payload:   payload,
		Resource:  resource,
		Status:    StatusScheduled,
		NextFire:  when,
		CreatedAt: s.now(),
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return job
}

// fireDue launches execution for every scheduled job whose fire time has
// arrived. Recurring jobs re-arm immediately so the next occurrence is
// claimed before the current one finishes.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []*Job
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != StatusScheduled || s.inFlight[id] || job.NextFire.After(now) {
			continue
		}
		due = append(due, job)
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextFire.Before(due[j].NextFire) })

	for _, job := range due {
		s.inFlight[job.ID] = true
		if job.Recurring {
			job.NextFire = job.scheduleOrReparse().Next(now)
		}
		firedAt := job.NextFire
		if job.Recurring {
			firedAt = now
		}
		snapshot := cloneJob(job)
		s.wg.Add(1)
		go s.execute(snapshot, firedAt)
	}
	s.mu.Unlock()
}

func (s *Scheduler) execute(snapshot *Job, scheduledFor time.Time) {
	defer s.wg.Done()

	started := s.now()
	log.Printf("[Scheduler] Executing job %s (%s)", snapshot.ID, snapshot.Name)

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if s.action != nil {
		err = s.action(ctx, snapshot)
	}
	finished := s.now()

	s.mu.Lock()
	job, ok := s.jobs[snapshot.ID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.inFlight, job.ID)
	job.RunCount++
	job.LastFire = &started
	if err != nil {
		job.FailCount++
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	// A job cancelled while its execution was in flight keeps its terminal
	// Cancelled record; only a still-scheduled one-time job settles here.
	if !job.Recurring && job.Status == StatusScheduled {
		if err != nil {
			job.Status = StatusFailed
		} else {
			job.Status = StatusExecuted
		}
	}
	// A failed occurrence of a recurring job does not cancel future fires.
	result := cloneJob(job)
	s.mu.Unlock()

	if err != nil {
		log.Printf("[Scheduler] Job %s failed: %v", snapshot.ID, err)
	} else {
		log.Printf("[Scheduler] Job %s completed", snapshot.ID)
	}

	s.persist(result)
	if s.history != nil {
		status := StatusExecuted
		if err != nil {
			status = StatusFailed
		}
		entry := HistoryEntry{
			JobID:        result.ID,
			Name:         result.Name,
			Status:       status,
			ScheduledFor: scheduledFor,
			StartedAt:    started,
			FinishedAt:   finished,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if recErr := s.history.Record(entry); recErr != nil {
			log.Printf("[Scheduler] Failed to record history for %s: %v", result.ID, recErr)
		}
	}
}

func (s *Scheduler) persist(job *Job) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		log.Printf("[Scheduler] Failed to serialize job %s: %v", job.ID, err)
		return
	}
	if err := s.store.Put("job_"+job.ID, string(data), "jobs"); err != nil {
		log.Printf("[Scheduler] Failed to persist job %s: %v", job.ID, err)
	}
}

// scheduleOrReparse returns the parsed cron schedule, reparsing for jobs
// rehydrated from persistence.
func (j *Job) scheduleOrReparse() cron.Schedule {
	if j.schedule == nil {
		if parsed, err := cron.ParseStandard(j.Spec); err == nil {
			j.schedule = parsed
		}
	}
	return j.schedule
}

func cloneJob(job *Job) *Job {
	dup := *job
	dup.schedule = nil
	if job.Payload != nil {
		dup.Payload = make(map[string]interface{}, len(job.Payload))
		for k, v := range job.Payload {
			dup.Payload[k] = v
		}
	}
	if job.LastFire != nil {
		t := *job.LastFire
		dup.LastFire = &t
	}
	return &dup
}
