package core

import (
	"context"
	"fmt"

	"carboncore/pkg/domain"
)

// Verra-style non-permanence buffers sit between 10% and 20% of gross
// credits; other values are legal model inputs but worth flagging.
const (
	typicalMinBuffer = 0.10
	typicalMaxBuffer = 0.20
)

// NewBufferFractionRule returns the rule bounding the non-permanence buffer.
// A fraction outside [0,1) blocks; a nonzero fraction outside the typical
// band warns. Zero means "use the model default" and passes silently.
func NewBufferFractionRule() domain.Rule {
	return bufferFractionRule{}
}

type bufferFractionRule struct{}

func (bufferFractionRule) Name() string { return "buffer_fraction" }

func (bufferFractionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, sc := range changedScenarios(changes) {
		switch {
		case sc.BufferFraction < 0 || sc.BufferFraction >= 1:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "buffer_fraction",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("buffer fraction %g outside [0,1)", sc.BufferFraction),
				Entity:   domain.EntityScenario,
				EntityID: sc.ID,
			})
		case sc.BufferFraction > 0 && (sc.BufferFraction < typicalMinBuffer || sc.BufferFraction > typicalMaxBuffer):
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "buffer_fraction",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("buffer fraction %g outside typical band %g-%g", sc.BufferFraction, typicalMinBuffer, typicalMaxBuffer),
				Entity:   domain.EntityScenario,
				EntityID: sc.ID,
			})
		}
	}
	return res, nil
}
