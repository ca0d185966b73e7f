// Package cronsched implements CronScheduler (spec §4.3): it composes
// joblock.Lock with cronexpr (gronx) for parsing/next-run computation and
// a per-job timer, in the timer-fires-executeJob shape the spec describes
// — distinct from the self-contained goroutine-scheduler loop used by the
// jholhewres-goclaw fork (see DESIGN.md), but borrowing that fork's
// single-flight guard, panic recovery, and "persist lastRun before
// execute" ordering.
package cronsched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mama-run/mama/internal/cronexpr"
	"github.com/mama-run/mama/internal/joblock"
	"github.com/mama-run/mama/internal/merr"
	"github.com/mama-run/mama/internal/store"
	"github.com/mama-run/mama/pkg/protocol"
)

// ExecuteFunc runs a schedule's prompt and returns its textual result.
type ExecuteFunc func(ctx context.Context, s *store.Schedule) (output string, err error)

// Event is emitted on every job state transition.
type Event struct {
	Kind       protocol.CronEvent
	ScheduleID string
	At         time.Time
	Err        error
}

// Options configures a Scheduler.
type Options struct {
	Location           *time.Location
	RunMissedOnStartup bool // adopted semantics: "coalesced", see DESIGN.md Open Question #2
	MaxConcurrent       int // reserved for future cross-job throttling; per-job concurrency is always 1
	JobTimeout         time.Duration
}

func (o Options) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.Local
}

// runtimeJob is the in-memory projection backing CronJob (spec §3).
type runtimeJob struct {
	schedule   store.Schedule
	timer      *time.Timer
	isRunning  bool
	lastResult string
}

// Scheduler is the CronScheduler component.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*runtimeJob
	lock    *joblock.Lock
	store   store.ScheduleStore
	opts    Options
	execute ExecuteFunc
	events  chan Event
	logger  *slog.Logger

	stopOnce sync.Once
	stopped  bool
}

// New builds a Scheduler backed by st and invoking execute on each fire.
func New(st store.ScheduleStore, execute ExecuteFunc, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:    make(map[string]*runtimeJob),
		lock:    joblock.New(),
		store:   st,
		opts:    opts,
		execute: execute,
		events:  make(chan Event, 64),
		logger:  logger,
	}
}

// Events returns the channel Event notifications are delivered on.
func (s *Scheduler) Events() <-chan Event { return s.events }

func (s *Scheduler) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warn("cron event dropped, events channel full", "kind", e.Kind, "schedule_id", e.ScheduleID)
	}
}

// Recover loads every enabled schedule from the store and arms its timer,
// implementing the recovery contract in spec §4.3 paired with §4.2. It
// also reaps any orphaned "running" log rows left by a crashed process.
func (s *Scheduler) Recover(ctx context.Context) error {
	if n, err := s.store.ReapOrphans(ctx); err != nil {
		s.logger.Warn("reap orphans failed", "error", err)
	} else if n > 0 {
		s.logger.Info("reaped orphaned schedule logs", "count", n)
	}

	jobs, err := s.store.ListEnabledJobs(ctx)
	if err != nil {
		return fmt.Errorf("recover: list enabled jobs: %w", err)
	}
	for _, j := range jobs {
		if err := s.addJobLocked(ctx, *j, true); err != nil {
			s.logger.Warn("recover: failed to arm job", "schedule_id", j.ID, "error", err)
		}
	}
	return nil
}

// AddJob validates and installs a new schedule, arming its timer.
func (s *Scheduler) AddJob(ctx context.Context, sched store.Schedule) error {
	return s.addJobLocked(ctx, sched, false)
}

func (s *Scheduler) addJobLocked(ctx context.Context, sched store.Schedule, recovering bool) error {
	if !cronexpr.Valid(sched.Cron) {
		return merr.New(merr.InvalidCron, fmt.Sprintf("invalid cron expression %q", sched.Cron))
	}

	s.mu.Lock()
	if _, exists := s.jobs[sched.ID]; exists {
		s.mu.Unlock()
		return merr.New(merr.JobExists, fmt.Sprintf("job %s already scheduled", sched.ID))
	}
	s.mu.Unlock()

	if !recovering {
		if err := s.store.CreateJob(ctx, &sched); err != nil {
			return fmt.Errorf("add job: %w", err)
		}
	}

	now := time.Now()
	next := cronexpr.Next(sched.Cron, now, s.opts.loc())

	// runMissedOnStartup = "coalesced": a schedule recovered with a
	// next_run already in the past fires once immediately instead of
	// replaying a backlog.
	fireAt := next
	if s.opts.RunMissedOnStartup && recovering && sched.NextRun != nil && sched.NextRun.Before(now) {
		fireAt = now.Add(10 * time.Millisecond)
	}

	rj := &runtimeJob{schedule: sched}
	s.mu.Lock()
	s.jobs[sched.ID] = rj
	s.mu.Unlock()

	s.armTimer(rj.schedule.ID, fireAt)

	if err := s.store.UpdateJob(ctx, sched.ID, store.ScheduleUpdate{NextRun: &next}); err != nil {
		s.logger.Warn("add job: failed to persist next_run", "schedule_id", sched.ID, "error", err)
	}
	return nil
}

func (s *Scheduler) armTimer(jobID string, at time.Time) {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	rj, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if rj.timer != nil {
		rj.timer.Stop()
	}
	rj.timer = time.AfterFunc(d, func() { s.executeJob(jobID) })
	s.mu.Unlock()
}

// RemoveJob stops the job's timer, releases any held lock, and deletes it.
func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	s.mu.Lock()
	rj, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return merr.New(merr.JobNotFound, fmt.Sprintf("job %s not found", id))
	}
	if rj.timer != nil {
		rj.timer.Stop()
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	s.lock.Release(id)
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("remove job %s: %w", id, err)
	}
	return nil
}

// EnableJob (re)arms the timer for a disabled job.
func (s *Scheduler) EnableJob(ctx context.Context, id string) error {
	s.mu.Lock()
	rj, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return merr.New(merr.JobNotFound, fmt.Sprintf("job %s not found", id))
	}
	enabled := true
	if err := s.store.UpdateJob(ctx, id, store.ScheduleUpdate{Enabled: &enabled}); err != nil {
		return fmt.Errorf("enable job %s: %w", id, err)
	}
	s.mu.Lock()
	rj.schedule.Enabled = true
	s.mu.Unlock()
	next := cronexpr.Next(rj.schedule.Cron, time.Now(), s.opts.loc())
	s.armTimer(id, next)
	return s.store.UpdateJob(ctx, id, store.ScheduleUpdate{NextRun: &next})
}

// DisableJob stops the job's timer and marks the job disabled in the
// store. The stored next_run is left unchanged, since a nil
// ScheduleUpdate.NextRun means "no change".
func (s *Scheduler) DisableJob(ctx context.Context, id string) error {
	s.mu.Lock()
	rj, ok := s.jobs[id]
	if ok {
		if rj.timer != nil {
			rj.timer.Stop()
		}
		rj.schedule.Enabled = false
	}
	s.mu.Unlock()
	if !ok {
		return merr.New(merr.JobNotFound, fmt.Sprintf("job %s not found", id))
	}
	enabled := false
	var noNext *time.Time
	if err := s.store.UpdateJob(ctx, id, store.ScheduleUpdate{Enabled: &enabled, NextRun: noNext}); err != nil {
		return fmt.Errorf("disable job %s: %w", id, err)
	}
	return nil
}

// RunNow triggers executeJob immediately, on the same path as a timer fire.
func (s *Scheduler) RunNow(id string) error {
	s.mu.Lock()
	_, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return merr.New(merr.JobNotFound, fmt.Sprintf("job %s not found", id))
	}
	s.executeJob(id)
	return nil
}

// executeJob is the internal single-flight execution path shared by timer
// fires and RunNow (spec §4.3).
func (s *Scheduler) executeJob(jobID string) {
	ctx := context.Background()

	s.mu.Lock()
	rj, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return
	}

	ran, _ := s.lock.WithLock(jobID, s.opts.JobTimeout, func() error {
		s.mu.Lock()
		rj.isRunning = true
		now := time.Now()
		rj.schedule.LastRun = &now
		s.mu.Unlock()

		s.emit(Event{Kind: protocol.EventStarted, ScheduleID: jobID, At: time.Now()})

		logID, err := s.store.LogStart(ctx, jobID)
		if err != nil {
			s.logger.Warn("executeJob: log start failed", "schedule_id", jobID, "error", err)
		}

		output, runErr := s.runWithRecover(ctx, rj.schedule)

		s.mu.Lock()
		rj.isRunning = false
		if runErr != nil {
			rj.lastResult = runErr.Error()
		} else {
			rj.lastResult = output
		}
		s.mu.Unlock()

		if logID != 0 {
			status := store.LogSuccess
			errMsg := ""
			if runErr != nil {
				status = store.LogFailed
				errMsg = runErr.Error()
			}
			if err := s.store.LogFinish(ctx, logID, status, output, errMsg); err != nil {
				s.logger.Warn("executeJob: log finish failed", "schedule_id", jobID, "error", err)
			}
		}

		if runErr != nil {
			s.emit(Event{Kind: protocol.EventFailed, ScheduleID: jobID, At: time.Now(), Err: runErr})
		} else {
			s.emit(Event{Kind: protocol.EventCompleted, ScheduleID: jobID, At: time.Now()})
		}
		return runErr
	})

	if !ran {
		s.emit(Event{Kind: protocol.EventSkipped, ScheduleID: jobID, At: time.Now(), Err: fmt.Errorf("job is already running")})
		return
	}

	s.mu.Lock()
	enabled := rj.schedule.Enabled
	cron := rj.schedule.Cron
	s.mu.Unlock()
	if !enabled {
		return
	}
	next := cronexpr.Next(cron, time.Now(), s.opts.loc())
	s.armTimer(jobID, next)
	if err := s.store.UpdateJob(ctx, jobID, store.ScheduleUpdate{NextRun: &next}); err != nil {
		s.logger.Warn("executeJob: failed to persist next_run", "schedule_id", jobID, "error", err)
	}
}

func (s *Scheduler) runWithRecover(ctx context.Context, sched store.Schedule) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", sched.ID, r)
		}
	}()
	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}
	return s.execute(ctx, &sched)
}

// Shutdown stops all timers and releases all locks.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		for id, rj := range s.jobs {
			if rj.timer != nil {
				rj.timer.Stop()
			}
			s.lock.Release(id)
		}
		s.jobs = make(map[string]*runtimeJob)
		s.stopped = true
		s.mu.Unlock()
		close(s.events)
	})
}
