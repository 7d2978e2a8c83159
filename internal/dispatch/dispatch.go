// Package dispatch ties the classifiers to their side effects: every
// decision is written to the routing log and counted in metrics, and tasks
// created without an owner are assigned by Porter.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// Store is the persistence the dispatcher writes to.
type Store interface {
	LogDecision(ctx context.Context, source string, in routing.Input, d routing.Decision) error
	CreateTask(ctx context.Context, t store.Task) (store.Task, error)
	AssignTask(ctx context.Context, id, agentID, assignedBy string, score int, reason string) error
}

// Assigners recorded on tasks.
const (
	AssignedByPorter = "porter"
	AssignedByManual = "manual"
)

// Service routes messages and assigns tasks.
type Service struct {
	router  *routing.MessageRouter
	porter  *routing.Porter
	store   Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Service. metrics may be nil.
func New(router *routing.MessageRouter, porter *routing.Porter, st Store, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		router:  router,
		porter:  porter,
		store:   st,
		metrics: m,
		logger:  logger.With().Str("component", "dispatch").Logger(),
	}
}

// Router returns the message router.
func (s *Service) Router() *routing.MessageRouter { return s.router }

// Porter returns the task assigner.
func (s *Service) Porter() *routing.Porter { return s.porter }

// Route classifies a chat message and records the decision.
func (s *Service) Route(ctx context.Context, source string, in routing.Input) (routing.Decision, error) {
	d, err := s.router.Classify(ctx, in)
	if err != nil {
		s.recordError("router")
		return routing.Decision{}, err
	}
	s.record(ctx, source, in, d)
	return d, nil
}

// Assign scores a task against the agents' handoff rules and records the
// decision.
func (s *Service) Assign(ctx context.Context, source, title, description string) (routing.Assignment, error) {
	a, err := s.porter.Assign(ctx, title, description)
	if err != nil {
		s.recordError("porter")
		return routing.Assignment{}, err
	}
	s.record(ctx, source, routing.Input{Text: title, Detail: description}, a.Decision())
	if s.metrics != nil && !a.Fallback {
		s.metrics.ObservePorterScore(a.Score)
	}
	return a, nil
}

// CreateTask stores a task. A task without an agent is assigned by Porter
// before it is written, so it never appears unowned.
func (s *Service) CreateTask(ctx context.Context, source string, t store.Task) (store.Task, error) {
	if t.AgentID != "" {
		t.AssignedBy = AssignedByManual
		t.Source = source
		return s.store.CreateTask(ctx, t)
	}

	a, err := s.Assign(ctx, store.SourceTask, t.Title, t.Description)
	if err != nil {
		return store.Task{}, fmt.Errorf("assign task: %w", err)
	}
	t.AgentID = a.AgentID
	t.AssignedBy = AssignedByPorter
	t.AssignmentScore = a.Score
	t.AssignmentReason = a.Reasoning
	t.Source = source

	created, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return store.Task{}, err
	}
	s.logger.Info().
		Str("task_id", created.ID).
		Str("agent", created.AgentID).
		Int("score", a.Score).
		Bool("fallback", a.Fallback).
		Msg("task created")
	return created, nil
}

// Reassign reruns Porter on an existing task's text and updates its owner.
func (s *Service) Reassign(ctx context.Context, t store.Task) (routing.Assignment, error) {
	a, err := s.Assign(ctx, store.SourceTask, t.Title, t.Description)
	if err != nil {
		return routing.Assignment{}, err
	}
	if err := s.store.AssignTask(ctx, t.ID, a.AgentID, AssignedByPorter, a.Score, a.Reasoning); err != nil {
		return routing.Assignment{}, err
	}
	return a, nil
}

func (s *Service) record(ctx context.Context, source string, in routing.Input, d routing.Decision) {
	if err := s.store.LogDecision(ctx, source, in, d); err != nil {
		// The decision stands even if it could not be logged.
		s.logger.Warn().Err(err).Str("classifier", d.Classifier).Msg("failed to write routing log")
		s.recordError("routing_log")
	}
	if s.metrics != nil {
		s.metrics.RecordDecision(d.Classifier, source, d.AgentID, outcome(d))
	}
}

func (s *Service) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError("dispatch", kind)
	}
}

func outcome(d routing.Decision) string {
	switch {
	case d.Fallback:
		return "fallback"
	case d.Classifier == routing.ClassifierPorter:
		return "handoff"
	default:
		return "rule"
	}
}
