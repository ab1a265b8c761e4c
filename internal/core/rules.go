package core

import "carboncore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set
// validating scenarios before they are committed.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewMixPercentageRule())
	engine.Register(NewMortalityBoundsRule())
	engine.Register(NewThinningScheduleRule())
	engine.Register(NewProjectDurationRule())
	engine.Register(NewBufferFractionRule())
	return engine
}

// changedScenarios extracts scenario payloads from create/update changes.
func changedScenarios(changes []domain.Change) []domain.Scenario {
	var out []domain.Scenario
	for _, change := range changes {
		if change.Entity != domain.EntityScenario || change.Action == domain.ActionDelete {
			continue
		}
		if sc, ok := change.After.(domain.Scenario); ok {
			out = append(out, sc)
		}
	}
	return out
}
