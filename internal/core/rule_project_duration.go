package core

import (
	"context"
	"fmt"

	"carboncore/pkg/domain"
)

// Crediting methodologies typically assess 20 to 60 year horizons; durations
// outside that band are unusual enough to flag but not to reject.
const (
	minProjectYears = 1
	maxProjectYears = 100
	typicalMinYears = 20
	typicalMaxYears = 60
)

// NewProjectDurationRule returns the rule bounding project duration. Values
// outside [1,100] block; values outside the typical crediting band warn.
func NewProjectDurationRule() domain.Rule {
	return projectDurationRule{}
}

type projectDurationRule struct{}

func (projectDurationRule) Name() string { return "project_duration" }

func (projectDurationRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, sc := range changedScenarios(changes) {
		switch {
		case sc.ProjectYears < minProjectYears || sc.ProjectYears > maxProjectYears:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "project_duration",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project duration %d years outside [%d,%d]", sc.ProjectYears, minProjectYears, maxProjectYears),
				Entity:   domain.EntityScenario,
				EntityID: sc.ID,
			})
		case sc.ProjectYears < typicalMinYears || sc.ProjectYears > typicalMaxYears:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "project_duration",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("project duration %d years outside typical crediting band %d-%d", sc.ProjectYears, typicalMinYears, typicalMaxYears),
				Entity:   domain.EntityScenario,
				EntityID: sc.ID,
			})
		}
	}
	return res, nil
}
