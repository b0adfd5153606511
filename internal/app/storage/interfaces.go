// Package storage defines the persistence contracts for the approval
// workflow. Multi-record write sequences are exposed as single operations so
// each backend owns its own transaction boundary.
package storage

import (
	"context"
	"errors"

	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a write loses a race against a concurrent
// decision on the same record.
var ErrConflict = errors.New("record changed concurrently")

// UserStore persists workflow actors.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	// FindUserByRole returns the earliest-created user holding the role, or
	// ErrNotFound when nobody does.
	FindUserByRole(ctx context.Context, role user.Role) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// ExpenseFilter narrows ListExpenses. A zero filter returns every expense.
type ExpenseFilter struct {
	OwnerID string
}

// ExpenseStore persists expense claims.
type ExpenseStore interface {
	// CreateExpense persists the expense and, when first is non-nil, its
	// level-1 approval in the same transaction.
	CreateExpense(ctx context.Context, exp expense.Expense, first *expense.Approval) (expense.Expense, error)
	GetExpense(ctx context.Context, id string) (expense.Expense, error)
	// ListExpenses returns matching expenses newest first.
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]expense.Expense, error)
	UpdateExpenseStatus(ctx context.Context, id string, status expense.Status) error
	// CancelExpense atomically marks a PENDING expense CANCELLED and removes
	// its open approval. Returns ErrConflict when the expense is no longer
	// PENDING.
	CancelExpense(ctx context.Context, id string) error
}

// DecisionUpdate is the full effect of one decide call: the approval write,
// the optional expense status transition and the optional next-level
// approval. Backends apply it all or nothing.
type DecisionUpdate struct {
	ApprovalID    string
	Status        expense.ApprovalStatus
	Comment       string
	ExpenseID     string
	ExpenseStatus expense.Status    // empty string leaves the expense untouched
	Next          *expense.Approval // nil when the chain does not escalate
}

// ApprovalStore persists approval chain records.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, ap expense.Approval) (expense.Approval, error)
	GetApproval(ctx context.Context, id string) (expense.Approval, error)
	// ListApprovals returns the expense's chain ordered by level ascending.
	ListApprovals(ctx context.Context, expenseID string) ([]expense.Approval, error)
	UpdateApproval(ctx context.Context, id string, status expense.ApprovalStatus, comment string) (expense.Approval, error)
	// ApplyDecision applies a DecisionUpdate atomically. It re-checks that the
	// approval is still PENDING and returns ErrConflict otherwise, so a
	// decision racing another on the same record cannot double-apply.
	ApplyDecision(ctx context.Context, upd DecisionUpdate) error
}
