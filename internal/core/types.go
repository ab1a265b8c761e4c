package core

import "carboncore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Region             = domain.Region
	Severity           = domain.Severity
	Base               = domain.Base
	Scenario           = domain.Scenario
	Run                = domain.Run
	RunSummary         = domain.RunSummary
	SpeciesMixEntry    = domain.SpeciesMixEntry
	ThinningEvent      = domain.ThinningEvent
	Management         = domain.Management
	YearlyResult       = domain.YearlyResult
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityScenario = domain.EntityScenario
	EntityRun      = domain.EntityRun
)

const (
	RegionTropical  = domain.RegionTropical
	RegionTemperate = domain.RegionTemperate
	RegionBoreal    = domain.RegionBoreal
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
