// Package policy defines the role policy: which role decides each approval
// level. The chain is data, so tiers can be added without touching the
// engine.
package policy

import (
	"fmt"

	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
)

// Chain is the ordered list of approver roles, level 1 first. The zero Chain
// has no levels; callers that need a working chain use Default.
type Chain struct {
	levels []user.Role
}

// Default returns the standard two-tier chain: manager first, CFO last.
func Default() Chain {
	return Chain{levels: []user.Role{user.RoleManager, user.RoleCFO}}
}

// NewChain builds a chain from the given roles, level 1 first. Every tier
// must be a valid non-admin role; admins override any level and never hold
// one themselves.
func NewChain(levels []user.Role) (Chain, error) {
	if len(levels) == 0 {
		return Chain{}, fmt.Errorf("approval chain needs at least one level")
	}
	out := make([]user.Role, len(levels))
	for i, role := range levels {
		if !role.Valid() {
			return Chain{}, fmt.Errorf("level %d: unknown role %q", i+1, role)
		}
		if role == user.RoleAdmin {
			return Chain{}, fmt.Errorf("level %d: ADMIN cannot hold a chain level", i+1)
		}
		out[i] = role
	}
	return Chain{levels: out}, nil
}

// Length is the number of levels; an expense finalizes once the last level
// approves.
func (c Chain) Length() int { return len(c.levels) }

// RoleForLevel returns the role required to decide the given 1-based level.
func (c Chain) RoleForLevel(level int) (user.Role, bool) {
	if level < 1 || level > len(c.levels) {
		return "", false
	}
	return c.levels[level-1], true
}

// CanDecide reports whether the role may decide the given level. Admins may
// decide any level; everyone else must hold exactly the level's role. Levels
// outside the chain are never decidable.
func (c Chain) CanDecide(role user.Role, level int) bool {
	required, ok := c.RoleForLevel(level)
	if !ok {
		return false
	}
	return role == required || role == user.RoleAdmin
}
