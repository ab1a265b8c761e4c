// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by carboncore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityScenario identifies a reforestation scenario record.
	EntityScenario EntityType = "scenario"
	// EntityRun identifies a stored simulation run record.
	EntityRun EntityType = "run"
)

// Region classifies a planting site by broad climate zone. The zone selects
// baseline diameter growth rates and soil organic carbon stocks.
type Region string

// Canonical climate zones recognised by the growth model.
const (
	RegionTropical  Region = "tropical"
	RegionTemperate Region = "temperate"
	RegionBoreal    Region = "boreal"
)

// Known reports whether the region is one of the canonical climate zones.
func (r Region) Known() bool {
	switch r {
	case RegionTropical, RegionTemperate, RegionBoreal:
		return true
	}
	return false
}

// RunStatus enumerates stored simulation run states.
type RunStatus string

// Canonical run statuses.
const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpeciesMixEntry describes one species' share of the planting plan.
type SpeciesMixEntry struct {
	Species string  `json:"species"`
	Region  Region  `json:"region"`
	Percent float64 `json:"percent"`
	Density float64 `json:"density_stems_ha"`
}

// ThinningEvent schedules a one-time removal of a fraction of stems in a
// given simulation year, distinct from ongoing background mortality.
type ThinningEvent struct {
	Year          int     `json:"year"`
	PercentRemove float64 `json:"percent_remove"`
}

// Management holds optional silvicultural interventions. Each flag applies an
// independent multiplicative growth uplift; biochar additionally contributes
// a fixed soil-carbon addition.
type Management struct {
	Irrigation bool `json:"irrigation"`
	Nutrients  bool `json:"nutrients"`
	Biochar    bool `json:"biochar"`
}

// Scenario captures the full caller-supplied description of a reforestation
// project: site, planting plan, horizon, and management assumptions.
type Scenario struct {
	Base
	Name            string            `json:"name"`
	AreaHa          float64           `json:"area_ha"`
	ProjectYears    int               `json:"project_years"`
	AnnualMortality float64           `json:"annual_mortality"`
	BufferFraction  float64           `json:"buffer_fraction"`
	Mix             []SpeciesMixEntry `json:"species_mix"`
	Thinning        []ThinningEvent   `json:"thinning_schedule"`
	Management      Management        `json:"management"`
}

// YearlyResult records the stand and carbon state at the end of one simulated
// year. All fields are always populated; net and buffer figures derive from
// the combined gross biomass and soil totals for that year.
type YearlyResult struct {
	Year        int     `json:"year"`
	Trees       int     `json:"trees_total"`
	BiomassT    float64 `json:"biomass_t"`
	CarbonT     float64 `json:"carbon_t"`
	GrossCO2eT  float64 `json:"co2e_gross_t"`
	SoilCO2eT   float64 `json:"soil_co2e_gross_t"`
	NetCO2eT    float64 `json:"co2e_net_t"`
	BufferCO2eT float64 `json:"co2e_buffer_t"`
}

// RunSummary aggregates the final-year figures of a simulation run.
type RunSummary struct {
	FinalTrees      int     `json:"final_trees"`
	GrossCO2eT      float64 `json:"gross_co2e_t"`
	SoilCO2eT       float64 `json:"soil_co2e_t"`
	NetCO2eT        float64 `json:"net_co2e_t"`
	BufferHeldCO2eT float64 `json:"buffer_held_co2e_t"`
}

// Run stores the outcome of simulating a scenario: the input snapshot taken
// at run time, the full annual series, and the final summary.
type Run struct {
	Base
	ScenarioID string         `json:"scenario_id"`
	Status     RunStatus      `json:"status"`
	Error      string         `json:"error,omitempty"`
	Input      Scenario       `json:"input"`
	Series     []YearlyResult `json:"series"`
	Summary    RunSummary     `json:"summary"`
}

// Change captures an entity mutation evaluated by the rules engine.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was deleted.
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
