package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"carboncore/pkg/domain"
)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{
		now:  time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
		step: step,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) record(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for _, arg := range args {
		b.WriteString(" ")
		if s, ok := arg.(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}

func (l *captureLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, l.record(msg, args...))
}

func (l *captureLogger) Error(string, ...any) {}

func (l *captureLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.warns))
	copy(out, l.warns)
	return out
}

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *captureAudit) Record(_ context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *captureAudit) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

func testService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	return NewInMemoryService(NewDefaultRulesEngine(), testSimulator(t), opts...)
}

func TestServiceScenarioLifecycle(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, res, err := svc.CreateScenario(ctx, validScenario())
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated scenario id")
	}
	if res.HasBlocking() {
		t.Fatalf("unexpected blocking violations: %+v", res.Violations)
	}

	got, ok := svc.GetScenario(created.ID)
	if !ok {
		t.Fatalf("scenario %s not found after create", created.ID)
	}
	if got.Name != "valid" {
		t.Fatalf("unexpected scenario name %q", got.Name)
	}

	updated, _, err := svc.UpdateScenario(ctx, created.ID, func(sc *Scenario) error {
		sc.Name = "renamed"
		sc.AreaHa = 75
		return nil
	})
	if err != nil {
		t.Fatalf("update scenario: %v", err)
	}
	if updated.Name != "renamed" || updated.AreaHa != 75 {
		t.Fatalf("mutator not applied: %+v", updated)
	}
	if updated.ID != created.ID {
		t.Fatalf("update changed scenario id from %s to %s", created.ID, updated.ID)
	}

	if list := svc.ListScenarios(); len(list) != 1 {
		t.Fatalf("expected one scenario, got %d", len(list))
	}

	if _, err := svc.DeleteScenario(ctx, created.ID); err != nil {
		t.Fatalf("delete scenario: %v", err)
	}
	if _, ok := svc.GetScenario(created.ID); ok {
		t.Fatalf("scenario %s still present after delete", created.ID)
	}
}

func TestServiceCreateScenarioBlockedByRules(t *testing.T) {
	svc := testService(t)

	invalid := validScenario()
	invalid.Mix[0].Percent = 70 // sums to 110

	_, _, err := svc.CreateScenario(context.Background(), invalid)
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if !ruleErr.Result.HasBlocking() {
		t.Fatalf("expected blocking violations in %+v", ruleErr.Result)
	}
	if list := svc.ListScenarios(); len(list) != 0 {
		t.Fatalf("blocked create must not persist, got %d scenarios", len(list))
	}
}

func TestServiceUpdateMissingScenario(t *testing.T) {
	svc := testService(t)
	_, _, err := svc.UpdateScenario(context.Background(), "missing", func(sc *Scenario) error {
		return nil
	})
	if err == nil {
		t.Fatalf("expected error for unknown scenario")
	}
}

func TestServiceRunScenarioPersistsRun(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, _, err := svc.CreateScenario(ctx, validScenario())
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}

	run, _, err := svc.RunScenario(ctx, created.ID)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if len(run.Series) != created.ProjectYears {
		t.Fatalf("expected %d yearly results, got %d", created.ProjectYears, len(run.Series))
	}
	if run.Summary.NetCO2eT <= 0 {
		t.Fatalf("expected positive net sequestration, got %f", run.Summary.NetCO2eT)
	}
	if run.Input.ID != created.ID {
		t.Fatalf("run did not snapshot its scenario input")
	}

	stored, ok := svc.GetRun(run.ID)
	if !ok {
		t.Fatalf("run %s not found after create", run.ID)
	}
	if stored.ScenarioID != created.ID {
		t.Fatalf("stored run references %q, want %q", stored.ScenarioID, created.ID)
	}
}

func TestServiceRunScenarioMissingScenario(t *testing.T) {
	svc := testService(t)
	_, _, err := svc.RunScenario(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error for unknown scenario")
	}
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.Entity != EntityScenario || notFound.ID != "missing" {
		t.Fatalf("unexpected not-found detail: %+v", notFound)
	}
}

func TestServiceRunScenarioPersistsFailure(t *testing.T) {
	svc := testService(t)

	created, _, err := svc.CreateScenario(context.Background(), validScenario())
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, _, err := svc.RunScenario(ctx, created.ID)
	if err == nil {
		t.Fatalf("expected simulation failure for cancelled context")
	}
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
	if run.Error == "" {
		t.Fatalf("expected failure reason on run")
	}
	if len(run.Series) != 0 {
		t.Fatalf("failed run must not carry a series")
	}

	stored, ok := svc.GetRun(run.ID)
	if !ok {
		t.Fatalf("failed run %s must still be persisted", run.ID)
	}
	if stored.Status != domain.RunStatusFailed {
		t.Fatalf("stored run status %s, want failed", stored.Status)
	}
}

func TestServiceDeleteScenarioWithRunBlocked(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, _, err := svc.CreateScenario(ctx, validScenario())
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	run, _, err := svc.RunScenario(ctx, created.ID)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}

	if _, err := svc.DeleteScenario(ctx, created.ID); err == nil {
		t.Fatalf("expected delete to fail while run references the scenario")
	}

	if _, err := svc.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, err := svc.DeleteScenario(ctx, created.ID); err != nil {
		t.Fatalf("delete scenario after run removal: %v", err)
	}
}

func TestServiceObservabilityHooks(t *testing.T) {
	metrics := NewExpvarMetricsRecorder("")
	var traceBuf bytes.Buffer
	tracer := NewJSONTracer(&traceBuf)
	audit := &captureAudit{}
	logger := &captureLogger{}

	svc := testService(t,
		WithClock(newFakeClock(5*time.Millisecond)),
		WithLogger(logger),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithAuditRecorder(audit),
	)
	ctx := context.Background()

	created, _, err := svc.CreateScenario(ctx, validScenario())
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	if _, _, err := svc.RunScenario(ctx, created.ID); err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if _, _, err := svc.RunScenario(ctx, "missing"); err == nil {
		t.Fatalf("expected failure for unknown scenario")
	}

	snap := metrics.Snapshot()
	if snap.Results["create_scenario"]["success"] != 1 {
		t.Fatalf("expected one successful create_scenario, got %+v", snap.Results)
	}
	if snap.Results["run_scenario"]["success"] != 1 || snap.Results["run_scenario"]["error"] != 1 {
		t.Fatalf("expected one success and one error for run_scenario, got %+v", snap.Results)
	}
	if snap.DurationsMS["create_scenario"] <= 0 {
		t.Fatalf("expected recorded duration for create_scenario")
	}

	entries := tracer.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected three trace spans, got %d", len(entries))
	}
	if entries[2].Status != "error" || entries[2].Error == "" {
		t.Fatalf("expected failed final span, got %+v", entries[2])
	}
	if !strings.Contains(traceBuf.String(), `"operation":"run_scenario"`) {
		t.Fatalf("trace output missing run_scenario span: %s", traceBuf.String())
	}

	audited := audit.Entries()
	if len(audited) != 3 {
		t.Fatalf("expected three audit entries, got %d", len(audited))
	}
	if audited[0].Operation != "create_scenario" || audited[0].Status != AuditStatusSuccess {
		t.Fatalf("unexpected first audit entry: %+v", audited[0])
	}
	if audited[2].Status != AuditStatusError || audited[2].Error == "" {
		t.Fatalf("expected failed final audit entry: %+v", audited[2])
	}
	if audited[1].Entity != EntityRun || audited[1].EntityID == "" {
		t.Fatalf("run audit entry missing entity detail: %+v", audited[1])
	}
}

func TestServiceLogsWarnSeverityViolations(t *testing.T) {
	logger := &captureLogger{}
	svc := testService(t, WithLogger(logger))

	sc := validScenario()
	sc.BufferFraction = 0.05

	_, res, err := svc.CreateScenario(context.Background(), sc)
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("warn-only violation must not block: %+v", res.Violations)
	}

	warns := logger.Warns()
	if len(warns) == 0 {
		t.Fatalf("expected warn log for advisory violation")
	}
	if !strings.Contains(warns[0], "buffer_fraction") {
		t.Fatalf("warn log missing rule name: %q", warns[0])
	}
}
