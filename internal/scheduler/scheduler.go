// Package scheduler fires stored cron jobs. Each firing routes the job's
// message through the message router as though it had been posted in the
// job's channel, records the run, and hands the decision to a Dispatcher.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// DefaultJobTimeout bounds a single firing.
const DefaultJobTimeout = 2 * time.Minute

// JobStore is the persistence the scheduler needs.
type JobStore interface {
	ListCronJobs(ctx context.Context) ([]store.CronJob, error)
	RecordCronRun(ctx context.Context, id, agentID string, runErr error) error
}

// Router classifies a job's message. dispatch.Service satisfies it.
type Router interface {
	Route(ctx context.Context, source string, in routing.Input) (routing.Decision, error)
}

// Dispatcher delivers a routed job to wherever the chosen agent listens.
type Dispatcher interface {
	DispatchCron(ctx context.Context, job store.CronJob, d routing.Decision) error
}

// Scheduler owns one cron.Cron and keeps its entries in sync with the store.
type Scheduler struct {
	cron       *cron.Cron
	store      JobStore
	router     Router
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	jobTimeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a scheduler. dispatcher and m may be nil.
func New(st JobStore, router Router, dispatcher Dispatcher, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		store:      st,
		router:     router,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		jobTimeout: DefaultJobTimeout,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start loads jobs from the store and starts firing them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Int("jobs", s.Len()).Msg("scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Reload replaces the scheduled entries with the enabled jobs in the store.
// A job with an unparseable schedule is skipped and logged.
func (s *Scheduler) Reload(ctx context.Context) error {
	jobs, err := s.store.ListCronJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cron jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		sched, err := ParseSchedule(job.Schedule)
		if err != nil {
			s.logger.Warn().Err(err).Str("job", job.ID).Msg("skipping cron job")
			continue
		}
		job := job
		s.entries[job.ID] = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(job) }))
	}

	if s.metrics != nil {
		s.metrics.SetScheduledJobs(len(s.entries))
	}
	s.logger.Debug().Int("jobs", len(s.entries)).Msg("cron jobs reloaded")
	return nil
}

// Len returns the number of scheduled entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NextRun reports when a job fires next. ok is false when the job is not
// scheduled or the scheduler has not started.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

func (s *Scheduler) fire(job store.CronJob) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	s.Run(runCtx, job)
}

// Run fires one job immediately and returns the routing decision.
func (s *Scheduler) Run(ctx context.Context, job store.CronJob) (routing.Decision, error) {
	start := time.Now()
	logger := s.logger.With().Str("job", job.ID).Logger()

	d, err := s.router.Route(ctx, store.SourceCron, routing.Input{
		Text:    job.Message,
		Channel: job.Channel,
	})
	if err == nil && s.dispatcher != nil {
		err = s.dispatcher.DispatchCron(ctx, job, d)
	}

	if recErr := s.store.RecordCronRun(ctx, job.ID, d.AgentID, err); recErr != nil {
		logger.Warn().Err(recErr).Msg("failed to record cron run")
	}

	result := "ok"
	if err != nil {
		result = "error"
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("cron job failed")
	} else {
		logger.Info().
			Str("agent", d.AgentID).
			Bool("fallback", d.Fallback).
			Dur("duration", time.Since(start)).
			Msg("cron job routed")
	}
	if s.metrics != nil {
		s.metrics.RecordSchedulerRun(result)
	}
	return d, err
}
