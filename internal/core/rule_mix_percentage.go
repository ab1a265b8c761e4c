package core

import (
	"context"
	"fmt"
	"math"

	"carboncore/pkg/domain"
)

// mixPercentageTolerance absorbs float drift when callers assemble shares
// from fractional inputs.
const mixPercentageTolerance = 1e-6

// NewMixPercentageRule returns the rule requiring species mix percentages to
// sum to exactly 100 for a non-empty mix. An under- or over-stocked plan
// silently skews every downstream credit figure, so a bad total blocks the
// commit rather than warning.
func NewMixPercentageRule() domain.Rule {
	return mixPercentageRule{}
}

type mixPercentageRule struct{}

func (mixPercentageRule) Name() string { return "mix_percentage" }

func (mixPercentageRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, sc := range changedScenarios(changes) {
		if len(sc.Mix) == 0 {
			continue
		}
		total := 0.0
		for _, entry := range sc.Mix {
			if entry.Percent < 0 || entry.Percent > 100 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "mix_percentage",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("species %s share %g%% outside [0,100]", entry.Species, entry.Percent),
					Entity:   domain.EntityScenario,
					EntityID: sc.ID,
				})
			}
			total += entry.Percent
		}
		if math.Abs(total-100) > mixPercentageTolerance {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "mix_percentage",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("species mix percentages sum to %g, must equal 100", total),
				Entity:   domain.EntityScenario,
				EntityID: sc.ID,
			})
		}
	}
	return res, nil
}
