package model

import "strings"

type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleArchitect    Role = "architect"
	RoleCodesmith    Role = "codesmith"
	RoleReviewer     Role = "reviewer"
	RoleResearch     Role = "research"
	RoleDocubot      Role = "docubot"
	RoleFixer        Role = "fixer"
	RoleTradestrat   Role = "tradestrat"
)

var validRoles = map[Role]bool{
	RoleOrchestrator: true,
	RoleArchitect:    true,
	RoleCodesmith:    true,
	RoleReviewer:     true,
	RoleResearch:     true,
	RoleDocubot:      true,
	RoleFixer:        true,
	RoleTradestrat:   true,
}

// roleKeywords drives the advisory role/task match: a suggestion is logged
// when another role's keywords overlap the task text better, never a block.
var roleKeywords = map[Role][]string{
	RoleArchitect:  {"design", "architecture", "structure", "plan", "diagram"},
	RoleCodesmith:  {"implement", "code", "write", "function", "class", "refactor"},
	RoleReviewer:   {"review", "check", "verify", "audit", "quality"},
	RoleResearch:   {"research", "search", "find", "investigate", "lookup"},
	RoleDocubot:    {"document", "docs", "readme", "comment", "explain"},
	RoleFixer:      {"fix", "bug", "debug", "repair", "patch"},
	RoleTradestrat: {"trade", "strategy", "backtest", "indicator", "market"},
}

// keywordRoleOrder fixes the evaluation order so equal scores always resolve
// to the same role.
var keywordRoleOrder = []Role{
	RoleArchitect,
	RoleCodesmith,
	RoleReviewer,
	RoleResearch,
	RoleDocubot,
	RoleFixer,
	RoleTradestrat,
}

func IsValidRole(r Role) bool {
	return validRoles[r]
}

// BestRoleForTask returns the role whose keyword set overlaps the task text
// most, with the overlap score. Score 0 means no keyword matched. Ties go to
// the earlier role in the fixed order.
func BestRoleForTask(task string) (Role, int) {
	lowered := strings.ToLower(task)
	var best Role
	bestScore := 0
	for _, role := range keywordRoleOrder {
		score := 0
		for _, kw := range roleKeywords[role] {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		if score > bestScore {
			best = role
			bestScore = score
		}
	}
	return best, bestScore
}
