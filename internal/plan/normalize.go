package plan

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// Parse decodes raw planner output into a normalised ExecutionPlan. Both
// parallel-group dialects (bare number array and {step_numbers} object) are
// accepted; see domain.ParallelGroup.
//
// Parse failures carry ErrPlannerOutput so the orchestrator can surface the
// raw output excerpt in the run error.
func Parse(raw []byte) (*domain.ExecutionPlan, error) {
	var p domain.ExecutionPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrPlannerOutput, err)
	}
	Normalize(&p)
	return &p, nil
}

// Normalize cleans a plan in place: fills a missing plan id, deduplicates
// parallel-group members, and drops groups left empty. It never removes
// steps or gates.
func Normalize(p *domain.ExecutionPlan) {
	if p.PlanID == "" {
		p.PlanID = "plan-" + uuid.NewString()
	}

	groups := p.ParallelGroups[:0]
	for _, g := range p.ParallelGroups {
		seen := make(map[int]bool, len(g.StepNumbers))
		members := g.StepNumbers[:0]
		for _, n := range g.StepNumbers {
			if seen[n] {
				continue
			}
			seen[n] = true
			members = append(members, n)
		}
		if len(members) == 0 {
			continue
		}
		groups = append(groups, domain.ParallelGroup{StepNumbers: members})
	}
	p.ParallelGroups = groups
}
