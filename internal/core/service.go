package core

import (
	"context"
	"fmt"

	"carboncore/internal/infra/persistence/memory"
	"carboncore/pkg/domain"
)

// Service exposes higher-level transactional operations over scenarios and
// simulation runs. Every operation is instrumented through the optional
// logger, metrics recorder, tracer, and audit recorder.
type Service struct {
	store     domain.PersistentStore
	simulator *Simulator
	clock     Clock
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	audit     AuditRecorder
}

// ServiceOption customises service construction.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger injects a structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder injects a metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithTracer injects a tracing sink.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithAuditRecorder injects an audit sink.
func WithAuditRecorder(audit AuditRecorder) ServiceOption {
	return func(s *Service) {
		s.audit = audit
	}
}

// NewService constructs a service backed by the supplied store and simulator.
func NewService(store domain.PersistentStore, simulator *Simulator, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		simulator: simulator,
		clock:     systemClock{},
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over an in-memory store with the
// given rules engine. A nil engine disables rule evaluation.
func NewInMemoryService(engine *RulesEngine, simulator *Simulator, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), simulator, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Simulator returns the configured simulator.
func (s *Service) Simulator() *Simulator { return s.simulator }

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// CreateScenario persists a new scenario after rule validation.
func (s *Service) CreateScenario(ctx context.Context, scenario Scenario) (Scenario, Result, error) {
	var created Scenario
	res, err := s.instrumented(ctx, "create_scenario", EntityScenario, func() string { return created.ID },
		func(ctx context.Context) (Result, error) {
			return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				var err error
				created, err = tx.CreateScenario(scenario)
				return err
			})
		})
	return created, res, err
}

// UpdateScenario mutates a scenario using the provided mutator.
func (s *Service) UpdateScenario(ctx context.Context, id string, mutator func(*Scenario) error) (Scenario, Result, error) {
	var updated Scenario
	res, err := s.instrumented(ctx, "update_scenario", EntityScenario, func() string { return id },
		func(ctx context.Context) (Result, error) {
			return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				var err error
				updated, err = tx.UpdateScenario(id, mutator)
				return err
			})
		})
	return updated, res, err
}

// DeleteScenario removes a scenario record.
func (s *Service) DeleteScenario(ctx context.Context, id string) (Result, error) {
	return s.instrumented(ctx, "delete_scenario", EntityScenario, func() string { return id },
		func(ctx context.Context) (Result, error) {
			return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				return tx.DeleteScenario(id)
			})
		})
}

// GetScenario fetches a scenario by id.
func (s *Service) GetScenario(id string) (Scenario, bool) {
	return s.store.GetScenario(id)
}

// ListScenarios returns all stored scenarios.
func (s *Service) ListScenarios() []Scenario {
	return s.store.ListScenarios()
}

// GetRun fetches a stored simulation run by id.
func (s *Service) GetRun(id string) (Run, bool) {
	return s.store.GetRun(id)
}

// ListRuns returns all stored simulation runs.
func (s *Service) ListRuns() []Run {
	return s.store.ListRuns()
}

// DeleteRun removes a stored simulation run.
func (s *Service) DeleteRun(ctx context.Context, id string) (Result, error) {
	return s.instrumented(ctx, "delete_run", EntityRun, func() string { return id },
		func(ctx context.Context) (Result, error) {
			return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				return tx.DeleteRun(id)
			})
		})
}

// RunScenario simulates a stored scenario and persists the outcome. Failed
// simulations are persisted too, with the failure reason, so the audit trail
// covers rejected assumption sets.
func (s *Service) RunScenario(ctx context.Context, scenarioID string) (Run, Result, error) {
	var run Run
	res, err := s.instrumented(ctx, "run_scenario", EntityRun, func() string { return run.ID },
		func(ctx context.Context) (Result, error) {
			scenario, ok := s.store.GetScenario(scenarioID)
			if !ok {
				return Result{}, ErrNotFound{Entity: EntityScenario, ID: scenarioID}
			}

			series, simErr := s.simulator.Simulate(ctx, scenario)
			candidate := Run{
				ScenarioID: scenarioID,
				Status:     domain.RunStatusCompleted,
				Input:      scenario,
				Series:     series,
				Summary:    Summarize(series),
			}
			if simErr != nil {
				candidate.Status = domain.RunStatusFailed
				candidate.Error = simErr.Error()
				candidate.Series = nil
				candidate.Summary = RunSummary{}
			}

			res, txErr := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				var err error
				run, err = tx.CreateRun(candidate)
				return err
			})
			if txErr != nil {
				return res, txErr
			}
			if simErr != nil {
				return res, fmt.Errorf("simulate scenario %s: %w", scenarioID, simErr)
			}
			return res, nil
		})
	return run, res, err
}

// instrumented wraps an operation with tracing, metrics, audit, and logging.
func (s *Service) instrumented(ctx context.Context, op string, entity EntityType, entityID func() string, fn func(context.Context) (Result, error)) (Result, error) {
	start := s.clock.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, op)
	}

	res, err := fn(ctx)

	duration := s.clock.Now().Sub(start)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, duration)
	}
	if s.audit != nil {
		entry := AuditEntry{
			Operation:  op,
			Status:     AuditStatusSuccess,
			Entity:     entity,
			EntityID:   entityID(),
			OccurredAt: s.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.audit.Record(ctx, entry)
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "duration_ms", float64(duration)/1e6)
	}
	for _, violation := range res.Violations {
		if violation.Severity == SeverityWarn || violation.Severity == SeverityLog {
			s.logger.Warn("rule violation", "rule", violation.Rule, "message", violation.Message)
		}
	}
	return res, err
}
