package constants

// AgentRole classifies agents into workflow roles. Roles drive rule-based
// step injection and the position injected steps take in the plan.
type AgentRole string

// Agent role constants in canonical workflow order.
const (
	// RoleProduct covers product/requirements agents.
	RoleProduct AgentRole = "product"

	// RoleArchitect covers architecture and design agents.
	RoleArchitect AgentRole = "architect"

	// RoleUIUX covers UI/UX design agents.
	RoleUIUX AgentRole = "ui-ux"

	// RoleDeveloper covers implementation agents.
	RoleDeveloper AgentRole = "developer"

	// RoleCodeReview covers code-review agents.
	RoleCodeReview AgentRole = "code-review"

	// RoleQA covers quality-assurance agents.
	RoleQA AgentRole = "qa"

	// RoleSecurity covers security-review agents.
	RoleSecurity AgentRole = "security"

	// RoleDevOps covers infrastructure and deployment agents.
	RoleDevOps AgentRole = "devops"
)

// String returns the string representation of the AgentRole.
func (r AgentRole) String() string {
	return string(r)
}

// RoleOrder returns the canonical position of a role in the workflow.
// Lower values come earlier. Unknown roles sort after all known roles
// so injected steps for them land at the end of the plan.
func RoleOrder(role AgentRole) int {
	switch role {
	case RoleProduct:
		return 0
	case RoleArchitect:
		return 1
	case RoleUIUX:
		return 2
	case RoleDeveloper:
		return 3
	case RoleCodeReview:
		return 4
	case RoleQA:
		return 5
	case RoleSecurity:
		return 6
	case RoleDevOps:
		return 7
	}
	return 8
}

// RoleForAgent derives the workflow role for a known agent id.
// Agent ids like "go-qa" or "qa-e2e" map onto the qa role; unknown ids
// default to the developer role.
func RoleForAgent(agentID string) AgentRole {
	switch agentID {
	case "product":
		return RoleProduct
	case "architect":
		return RoleArchitect
	case "ui-ux":
		return RoleUIUX
	case "developer":
		return RoleDeveloper
	case "code-review":
		return RoleCodeReview
	case "qa":
		return RoleQA
	case "security":
		return RoleSecurity
	case "devops":
		return RoleDevOps
	}
	for _, role := range []AgentRole{RoleQA, RoleCodeReview, RoleSecurity, RoleDevOps, RoleProduct, RoleArchitect, RoleUIUX} {
		if containsToken(agentID, string(role)) {
			return role
		}
	}
	return RoleDeveloper
}

// containsToken reports whether id contains the role name as a '-'-separated token.
func containsToken(id, token string) bool {
	if id == token {
		return true
	}
	n := len(token)
	for i := 0; i+n <= len(id); i++ {
		if id[i:i+n] != token {
			continue
		}
		leftOK := i == 0 || id[i-1] == '-'
		rightOK := i+n == len(id) || id[i+n] == '-'
		if leftOK && rightOK {
			return true
		}
	}
	return false
}
