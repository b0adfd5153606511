// Package approvals implements the approval chain engine: given a decision on
// a pending approval it determines the next state of the expense, escalating
// to the next chain level, finalizing, or rejecting.
package approvals

import (
	"context"
	"errors"
	"fmt"

	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/metrics"
	"github.com/oddo-hq/expenseflow/internal/app/policy"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
	"github.com/oddo-hq/expenseflow/pkg/logger"
)

var (
	// ErrForbidden is returned when the actor's role may not decide the
	// approval's level.
	ErrForbidden = errors.New("role not permitted to decide this level")
	// ErrAlreadyDecided is returned when the approval has left PENDING.
	ErrAlreadyDecided = errors.New("approval already decided")
	// ErrUnroutable is returned when no user holds the role required for an
	// approval level, so the chain cannot be routed.
	ErrUnroutable = errors.New("no approver holds the required role")
	// ErrInvalidInput is returned for missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
)

// MaxCommentLength bounds approver comments; they are otherwise persisted
// verbatim.
const MaxCommentLength = 2000

// Service decides approvals and advances the chain.
type Service struct {
	users     storage.UserStore
	expenses  storage.ExpenseStore
	approvals storage.ApprovalStore
	chain     policy.Chain
	log       *logger.Logger
}

// New constructs an approval chain engine over the given stores and chain.
func New(users storage.UserStore, expenses storage.ExpenseStore, approvals storage.ApprovalStore, chain policy.Chain, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("approvals")
	}
	return &Service{users: users, expenses: expenses, approvals: approvals, chain: chain, log: log}
}

// Chain exposes the configured approval chain.
func (s *Service) Chain() policy.Chain { return s.chain }

// RouteLevel resolves the user who will receive the approval at the given
// level, or ErrUnroutable when nobody holds the required role.
func (s *Service) RouteLevel(ctx context.Context, level int) (user.User, error) {
	role, ok := s.chain.RoleForLevel(level)
	if !ok {
		return user.User{}, fmt.Errorf("level %d outside chain: %w", level, ErrUnroutable)
	}
	approver, err := s.users.FindUserByRole(ctx, role)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, fmt.Errorf("level %d needs role %s: %w", level, role, ErrUnroutable)
	}
	if err != nil {
		return user.User{}, err
	}
	return approver, nil
}

// Decide applies an approver's verdict to a pending approval. All resulting
// writes (approval update, expense transition, next-level approval) happen in
// one atomic store operation: either every effect lands or none do.
func (s *Service) Decide(ctx context.Context, approvalID string, decision expense.Decision, actor user.User, comment string) (expense.Detail, error) {
	if len(comment) > MaxCommentLength {
		return expense.Detail{}, fmt.Errorf("comment exceeds %d characters: %w", MaxCommentLength, ErrInvalidInput)
	}

	ap, err := s.approvals.GetApproval(ctx, approvalID)
	if err != nil {
		return expense.Detail{}, err
	}
	if ap.Status != expense.ApprovalPending {
		return expense.Detail{}, fmt.Errorf("approval %s is %s: %w", ap.ID, ap.Status, ErrAlreadyDecided)
	}
	if !s.chain.CanDecide(actor.Role, ap.Level) {
		return expense.Detail{}, fmt.Errorf("role %s cannot decide level %d: %w", actor.Role, ap.Level, ErrForbidden)
	}

	upd := storage.DecisionUpdate{
		ApprovalID: ap.ID,
		Status:     expense.ApprovalStatus(decision),
		Comment:    comment,
		ExpenseID:  ap.ExpenseID,
	}

	switch decision {
	case expense.DecisionRejected:
		upd.ExpenseStatus = expense.StatusRejected
	case expense.DecisionApproved:
		if ap.Level >= s.chain.Length() {
			upd.ExpenseStatus = expense.StatusApproved
		} else {
			approver, err := s.RouteLevel(ctx, ap.Level+1)
			if err != nil {
				return expense.Detail{}, err
			}
			upd.Next = &expense.Approval{
				ExpenseID:  ap.ExpenseID,
				ApproverID: approver.ID,
				Level:      ap.Level + 1,
				Status:     expense.ApprovalPending,
			}
		}
	default:
		return expense.Detail{}, fmt.Errorf("decision %q: %w", decision, ErrInvalidInput)
	}

	if err := s.approvals.ApplyDecision(ctx, upd); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return expense.Detail{}, fmt.Errorf("%v: %w", err, ErrAlreadyDecided)
		}
		return expense.Detail{}, err
	}

	metrics.ObserveDecision(string(decision))
	entry := s.log.WithField("approval_id", ap.ID).
		WithField("expense_id", ap.ExpenseID).
		WithField("level", ap.Level).
		WithField("decision", string(decision))
	if upd.Next != nil {
		entry = entry.WithField("next_level", upd.Next.Level)
	}
	entry.Info("approval decided")

	return s.ExpenseDetail(ctx, ap.ExpenseID)
}

// ExpenseDetail assembles the joined view of an expense: the claim, its owner
// and the ordered approval chain with approver identities.
func (s *Service) ExpenseDetail(ctx context.Context, expenseID string) (expense.Detail, error) {
	exp, err := s.expenses.GetExpense(ctx, expenseID)
	if err != nil {
		return expense.Detail{}, err
	}
	owner, err := s.users.GetUser(ctx, exp.OwnerID)
	if err != nil {
		return expense.Detail{}, err
	}
	chain, err := s.approvals.ListApprovals(ctx, exp.ID)
	if err != nil {
		return expense.Detail{}, err
	}

	detail := expense.Detail{Expense: exp, Owner: owner, Approvals: make([]expense.ApprovalDetail, 0, len(chain))}
	for _, ap := range chain {
		approver, err := s.users.GetUser(ctx, ap.ApproverID)
		if err != nil {
			return expense.Detail{}, err
		}
		detail.Approvals = append(detail.Approvals, expense.ApprovalDetail{Approval: ap, Approver: approver})
	}
	return detail, nil
}
