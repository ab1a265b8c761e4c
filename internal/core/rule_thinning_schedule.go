package core

import (
	"context"
	"fmt"

	"carboncore/pkg/domain"
)

// NewThinningScheduleRule returns the rule validating thinning events:
// years must fall inside the project horizon, removal percentages inside
// [0,100], and no year may be scheduled twice.
func NewThinningScheduleRule() domain.Rule {
	return thinningScheduleRule{}
}

type thinningScheduleRule struct{}

func (thinningScheduleRule) Name() string { return "thinning_schedule" }

func (thinningScheduleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, sc := range changedScenarios(changes) {
		seen := make(map[int]struct{}, len(sc.Thinning))
		for _, event := range sc.Thinning {
			if event.Year < 1 || event.Year > sc.ProjectYears {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "thinning_schedule",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("thinning year %d outside project horizon 1..%d", event.Year, sc.ProjectYears),
					Entity:   domain.EntityScenario,
					EntityID: sc.ID,
				})
			}
			if event.PercentRemove < 0 || event.PercentRemove > 100 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "thinning_schedule",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("thinning year %d removes %g%%, outside [0,100]", event.Year, event.PercentRemove),
					Entity:   domain.EntityScenario,
					EntityID: sc.ID,
				})
			}
			if _, dup := seen[event.Year]; dup {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "thinning_schedule",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("thinning year %d scheduled more than once", event.Year),
					Entity:   domain.EntityScenario,
					EntityID: sc.ID,
				})
			}
			seen[event.Year] = struct{}{}
		}
	}
	return res, nil
}
