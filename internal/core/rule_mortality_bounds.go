package core

import (
	"context"
	"fmt"

	"carboncore/pkg/domain"
)

// NewMortalityBoundsRule returns the rule requiring annual mortality to be a
// fraction in [0,1) and the project area to be positive.
func NewMortalityBoundsRule() domain.Rule {
	return mortalityBoundsRule{}
}

type mortalityBoundsRule struct{}

func (mortalityBoundsRule) Name() string { return "mortality_bounds" }

func (mortalityBoundsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, sc := range changedScenarios(changes) {
		if sc.AnnualMortality < 0 || sc.AnnualMortality >= 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "mortality_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("annual mortality %g outside [0,1)", sc.AnnualMortality),
				Entity:   domain.EntityScenario,
				EntityID: sc.ID,
			})
		}
		if sc.AreaHa <= 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "mortality_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project area %g ha must be positive", sc.AreaHa),
				Entity:   domain.EntityScenario,
				EntityID: sc.ID,
			})
		}
	}
	return res, nil
}
