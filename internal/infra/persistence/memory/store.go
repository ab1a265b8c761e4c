// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"carboncore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Scenario aliases domain.Scenario for in-memory persistence operations.
	Scenario = domain.Scenario
	// Run aliases domain.Run.
	Run = domain.Run
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	scenarios map[string]Scenario
	runs      map[string]Run
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Scenarios map[string]Scenario `json:"scenarios"`
	Runs      map[string]Run      `json:"runs"`
}

func newMemoryState() memoryState {
	return memoryState{
		scenarios: map[string]Scenario{},
		runs:      map[string]Run{},
	}
}

func (st memoryState) clone() memoryState {
	out := newMemoryState()
	for id, sc := range st.scenarios {
		out.scenarios[id] = cloneScenario(sc)
	}
	for id, r := range st.runs {
		out.runs[id] = cloneRun(r)
	}
	return out
}

func cloneScenario(sc Scenario) Scenario {
	out := sc
	if sc.Mix != nil {
		out.Mix = append([]domain.SpeciesMixEntry(nil), sc.Mix...)
	}
	if sc.Thinning != nil {
		out.Thinning = append([]domain.ThinningEvent(nil), sc.Thinning...)
	}
	return out
}

func cloneRun(r Run) Run {
	out := r
	out.Input = cloneScenario(r.Input)
	if r.Series != nil {
		out.Series = append([]domain.YearlyResult(nil), r.Series...)
	}
	return out
}

func snapshotFromMemoryState(st memoryState) Snapshot {
	snap := Snapshot{
		Scenarios: map[string]Scenario{},
		Runs:      map[string]Run{},
	}
	for id, sc := range st.scenarios {
		snap.Scenarios[id] = cloneScenario(sc)
	}
	for id, r := range st.runs {
		snap.Runs[id] = cloneRun(r)
	}
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	st := newMemoryState()
	for id, sc := range snap.Scenarios {
		st.scenarios[id] = cloneScenario(sc)
	}
	for id, r := range snap.Runs {
		st.runs[id] = cloneRun(r)
	}
	return st
}

// migrateSnapshot normalizes snapshots decoded from older payloads where
// bucket maps may be nil.
func migrateSnapshot(snap Snapshot) Snapshot {
	if snap.Scenarios == nil {
		snap.Scenarios = map[string]Scenario{}
	}
	if snap.Runs == nil {
		snap.Runs = map[string]Run{}
	}
	return snap
}

// Store is a mutex-guarded in-memory persistence backend.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider, primarily for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListScenarios returns scenarios sorted by identifier.
func (v transactionView) ListScenarios() []Scenario {
	out := make([]Scenario, 0, len(v.state.scenarios))
	for _, sc := range v.state.scenarios {
		out = append(out, cloneScenario(sc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListRuns returns runs sorted by identifier.
func (v transactionView) ListRuns() []Run {
	out := make([]Run, 0, len(v.state.runs))
	for _, r := range v.state.runs {
		out = append(out, cloneRun(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindScenario looks up a scenario by identifier.
func (v transactionView) FindScenario(id string) (Scenario, bool) {
	sc, ok := v.state.scenarios[id]
	if !ok {
		return Scenario{}, false
	}
	return cloneScenario(sc), true
}

// FindRun looks up a run by identifier.
func (v transactionView) FindRun(id string) (Run, bool) {
	r, ok := v.state.runs[id]
	if !ok {
		return Run{}, false
	}
	return cloneRun(r), true
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateScenario stores a new scenario.
func (tx *transaction) CreateScenario(sc Scenario) (Scenario, error) {
	if sc.ID == "" {
		sc.ID = tx.store.newID()
	}
	if _, exists := tx.state.scenarios[sc.ID]; exists {
		return Scenario{}, fmt.Errorf("scenario %q already exists", sc.ID)
	}
	sc.CreatedAt = tx.now
	sc.UpdatedAt = tx.now
	tx.state.scenarios[sc.ID] = cloneScenario(sc)
	tx.recordChange(Change{Entity: domain.EntityScenario, Action: domain.ActionCreate, After: cloneScenario(sc)})
	return cloneScenario(sc), nil
}

// UpdateScenario mutates a scenario using the provided mutator function.
func (tx *transaction) UpdateScenario(id string, mutator func(*Scenario) error) (Scenario, error) {
	current, ok := tx.state.scenarios[id]
	if !ok {
		return Scenario{}, fmt.Errorf("scenario %q not found", id)
	}
	before := cloneScenario(current)
	if err := mutator(&current); err != nil {
		return Scenario{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.scenarios[id] = cloneScenario(current)
	tx.recordChange(Change{Entity: domain.EntityScenario, Action: domain.ActionUpdate, Before: before, After: cloneScenario(current)})
	return cloneScenario(current), nil
}

// DeleteScenario removes a scenario from the transaction state.
func (tx *transaction) DeleteScenario(id string) error {
	current, ok := tx.state.scenarios[id]
	if !ok {
		return fmt.Errorf("scenario %q not found", id)
	}
	for _, r := range tx.state.runs {
		if r.ScenarioID == id {
			return fmt.Errorf("scenario %q still referenced by run %q", id, r.ID)
		}
	}
	delete(tx.state.scenarios, id)
	tx.recordChange(Change{Entity: domain.EntityScenario, Action: domain.ActionDelete, Before: cloneScenario(current)})
	return nil
}

// CreateRun stores a new simulation run.
func (tx *transaction) CreateRun(r Run) (Run, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.runs[r.ID]; exists {
		return Run{}, fmt.Errorf("run %q already exists", r.ID)
	}
	if r.ScenarioID != "" {
		if _, ok := tx.state.scenarios[r.ScenarioID]; !ok {
			return Run{}, fmt.Errorf("run references unknown scenario %q", r.ScenarioID)
		}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.runs[r.ID] = cloneRun(r)
	tx.recordChange(Change{Entity: domain.EntityRun, Action: domain.ActionCreate, After: cloneRun(r)})
	return cloneRun(r), nil
}

// DeleteRun removes a run from the transaction state.
func (tx *transaction) DeleteRun(id string) error {
	current, ok := tx.state.runs[id]
	if !ok {
		return fmt.Errorf("run %q not found", id)
	}
	delete(tx.state.runs, id)
	tx.recordChange(Change{Entity: domain.EntityRun, Action: domain.ActionDelete, Before: cloneRun(current)})
	return nil
}

// FindScenario exposes scenario lookup within the transaction scope.
func (tx *transaction) FindScenario(id string) (Scenario, bool) {
	sc, ok := tx.state.scenarios[id]
	if !ok {
		return Scenario{}, false
	}
	return cloneScenario(sc), true
}

// FindRun exposes run lookup within the transaction scope.
func (tx *transaction) FindRun(id string) (Run, bool) {
	r, ok := tx.state.runs[id]
	if !ok {
		return Run{}, false
	}
	return cloneRun(r), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetScenario returns a scenario by identifier.
func (s *Store) GetScenario(id string) (Scenario, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.state.scenarios[id]
	if !ok {
		return Scenario{}, false
	}
	return cloneScenario(sc), true
}

// ListScenarios returns all scenarios sorted by identifier.
func (s *Store) ListScenarios() []Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListScenarios()
}

// GetRun returns a run by identifier.
func (s *Store) GetRun(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.runs[id]
	if !ok {
		return Run{}, false
	}
	return cloneRun(r), true
}

// ListRuns returns all runs sorted by identifier.
func (s *Store) ListRuns() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRuns()
}
