package policy

import (
	"testing"

	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
)

func TestCanDecide(t *testing.T) {
	chain := Default()

	cases := []struct {
		name  string
		role  user.Role
		level int
		want  bool
	}{
		{"manager decides level 1", user.RoleManager, 1, true},
		{"cfo decides level 2", user.RoleCFO, 2, true},
		{"admin decides level 1", user.RoleAdmin, 1, true},
		{"admin decides level 2", user.RoleAdmin, 2, true},
		{"employee never decides", user.RoleEmployee, 1, false},
		{"cfo cannot decide level 1", user.RoleCFO, 1, false},
		{"manager cannot decide level 2", user.RoleManager, 2, false},
		{"level zero undecidable", user.RoleAdmin, 0, false},
		{"level beyond chain undecidable", user.RoleAdmin, 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := chain.CanDecide(tc.role, tc.level); got != tc.want {
				t.Fatalf("CanDecide(%s, %d) = %v, want %v", tc.role, tc.level, got, tc.want)
			}
		})
	}
}

func TestRoleForLevel(t *testing.T) {
	chain := Default()

	if role, ok := chain.RoleForLevel(1); !ok || role != user.RoleManager {
		t.Fatalf("level 1 = %s, %v", role, ok)
	}
	if role, ok := chain.RoleForLevel(2); !ok || role != user.RoleCFO {
		t.Fatalf("level 2 = %s, %v", role, ok)
	}
	if _, ok := chain.RoleForLevel(0); ok {
		t.Fatal("level 0 must not resolve")
	}
	if _, ok := chain.RoleForLevel(3); ok {
		t.Fatal("level 3 must not resolve on a two-tier chain")
	}
}

func TestNewChain(t *testing.T) {
	chain, err := NewChain([]user.Role{user.RoleManager, user.RoleManager, user.RoleCFO})
	if err != nil {
		t.Fatalf("three-tier chain: %v", err)
	}
	if chain.Length() != 3 {
		t.Fatalf("length = %d, want 3", chain.Length())
	}
	if role, _ := chain.RoleForLevel(2); role != user.RoleManager {
		t.Fatalf("level 2 = %s, want MANAGER", role)
	}

	if _, err := NewChain(nil); err == nil {
		t.Fatal("empty chain must be rejected")
	}
	if _, err := NewChain([]user.Role{"INTERN"}); err == nil {
		t.Fatal("unknown role must be rejected")
	}
	if _, err := NewChain([]user.Role{user.RoleAdmin}); err == nil {
		t.Fatal("ADMIN tier must be rejected")
	}
}

func TestZeroChain(t *testing.T) {
	var chain Chain
	if chain.Length() != 0 {
		t.Fatalf("zero chain length = %d", chain.Length())
	}
	if chain.CanDecide(user.RoleAdmin, 1) {
		t.Fatal("zero chain must not be decidable")
	}
}
