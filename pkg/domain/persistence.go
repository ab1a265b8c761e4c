package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateScenario(Scenario) (Scenario, error)
	UpdateScenario(id string, mutator func(*Scenario) error) (Scenario, error)
	DeleteScenario(id string) error
	CreateRun(Run) (Run, error)
	DeleteRun(id string) error
	FindScenario(id string) (Scenario, bool)
	FindRun(id string) (Run, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListScenarios() []Scenario
	ListRuns() []Run
	FindScenario(id string) (Scenario, bool)
	FindRun(id string) (Run, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetScenario(id string) (Scenario, bool)
	ListScenarios() []Scenario
	GetRun(id string) (Run, bool)
	ListRuns() []Run
}
