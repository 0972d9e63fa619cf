package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleForAgent(t *testing.T) {
	tests := []struct {
		agentID string
		want    AgentRole
	}{
		{"developer", RoleDeveloper},
		{"qa", RoleQA},
		{"code-review", RoleCodeReview},
		{"go-qa", RoleQA},
		{"qa-e2e", RoleQA},
		{"security-backend", RoleSecurity},
		{"frontend-developer", RoleDeveloper},
		// Token matching, not substring: "qanda" is not a qa agent.
		{"qanda", RoleDeveloper},
		{"planner", RoleDeveloper},
		{"", RoleDeveloper},
	}
	for _, tt := range tests {
		t.Run(tt.agentID, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleForAgent(tt.agentID))
		})
	}
}

func TestRoleOrder(t *testing.T) {
	ordered := []AgentRole{
		RoleProduct, RoleArchitect, RoleUIUX, RoleDeveloper,
		RoleCodeReview, RoleQA, RoleSecurity, RoleDevOps,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, RoleOrder(ordered[i-1]), RoleOrder(ordered[i]))
	}
	assert.Greater(t, RoleOrder(AgentRole("intern")), RoleOrder(RoleDevOps))
}
