// Package expenses implements the expense lifecycle manager: submission with
// currency normalization and first-level approval seeding, read projections,
// and owner cancellation.
package expenses

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/metrics"
	"github.com/oddo-hq/expenseflow/internal/app/services/approvals"
	"github.com/oddo-hq/expenseflow/internal/app/services/currency"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
	"github.com/oddo-hq/expenseflow/pkg/logger"
)

// Service orchestrates expense creation and closure around the approval
// chain engine.
type Service struct {
	users     storage.UserStore
	expenses  storage.ExpenseStore
	engine    *approvals.Service
	converter currency.Converter
	log       *logger.Logger
}

// New constructs an expense lifecycle manager. converter may be nil, in which
// case every submission records the identity conversion.
func New(users storage.UserStore, expenses storage.ExpenseStore, engine *approvals.Service, converter currency.Converter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("expenses")
	}
	return &Service{users: users, expenses: expenses, engine: engine, converter: converter, log: log}
}

// SubmitInput carries the fields of a new expense claim.
type SubmitInput struct {
	Title       string
	Description string
	Amount      float64
	Currency    string
	OwnerID     string
}

func (in *SubmitInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.OwnerID = strings.TrimSpace(in.OwnerID)

	if in.Title == "" {
		return fmt.Errorf("title is required: %w", approvals.ErrInvalidInput)
	}
	if in.OwnerID == "" {
		return fmt.Errorf("owner is required: %w", approvals.ErrInvalidInput)
	}
	if in.Currency == "" {
		return fmt.Errorf("currency is required: %w", approvals.ErrInvalidInput)
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return fmt.Errorf("amount must be a positive finite number: %w", approvals.ErrInvalidInput)
	}
	return nil
}

// Submit validates and persists a new expense claim. The amount is converted
// to the base currency once, degrading to the identity conversion when the
// rate service is unavailable; the level-1 approval is created in the same
// transaction, routed via the approval chain.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (expense.Detail, error) {
	if err := in.validate(); err != nil {
		return expense.Detail{}, err
	}
	owner, err := s.users.GetUser(ctx, in.OwnerID)
	if err != nil {
		return expense.Detail{}, err
	}

	conv := s.convert(ctx, in.Amount, in.Currency)

	approver, err := s.engine.RouteLevel(ctx, 1)
	if err != nil {
		return expense.Detail{}, err
	}

	exp := expense.Expense{
		OwnerID:         owner.ID,
		Title:           in.Title,
		Description:     strings.TrimSpace(in.Description),
		Amount:          in.Amount,
		Currency:        in.Currency,
		ConvertedAmount: conv.ConvertedAmount,
		ConvertedTo:     conv.To,
		Status:          expense.StatusPending,
	}
	first := &expense.Approval{
		ApproverID: approver.ID,
		Level:      1,
		Status:     expense.ApprovalPending,
	}

	created, err := s.expenses.CreateExpense(ctx, exp, first)
	if err != nil {
		return expense.Detail{}, err
	}

	metrics.ObserveSubmission()
	s.log.WithField("expense_id", created.ID).
		WithField("owner_id", owner.ID).
		WithField("amount", created.Amount).
		WithField("currency", created.Currency).
		Info("expense submitted")

	return s.engine.ExpenseDetail(ctx, created.ID)
}

// convert normalizes the amount into the base currency, never failing the
// submission: any converter error degrades to the identity conversion.
func (s *Service) convert(ctx context.Context, amount float64, from string) currency.Conversion {
	if s.converter == nil {
		return currency.Identity(amount, from)
	}
	conv, err := s.converter.Convert(ctx, amount, from, currency.BaseCurrency)
	if err != nil {
		metrics.ObserveConversionFallback()
		s.log.WithError(err).
			WithField("currency", from).
			Warn("currency conversion degraded to identity")
		return currency.Identity(amount, from)
	}
	return conv
}

// Get returns the joined view of one expense.
func (s *Service) Get(ctx context.Context, id string) (expense.Detail, error) {
	return s.engine.ExpenseDetail(ctx, id)
}

// List returns the expenses visible to the actor, newest first. Admins,
// managers and the CFO see every claim; employees only their own.
func (s *Service) List(ctx context.Context, actor user.User) ([]expense.Detail, error) {
	filter := storage.ExpenseFilter{}
	switch actor.Role {
	case user.RoleAdmin, user.RoleManager, user.RoleCFO:
	default:
		filter.OwnerID = actor.ID
	}

	matches, err := s.expenses.ListExpenses(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]expense.Detail, 0, len(matches))
	for _, exp := range matches {
		detail, err := s.engine.ExpenseDetail(ctx, exp.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, detail)
	}
	return result, nil
}

// Cancel withdraws a still-pending expense. Only the owner may cancel, and
// only while the claim is PENDING; the open approval is voided atomically
// with the status write.
func (s *Service) Cancel(ctx context.Context, id string, actor user.User) (expense.Detail, error) {
	exp, err := s.expenses.GetExpense(ctx, id)
	if err != nil {
		return expense.Detail{}, err
	}
	if exp.OwnerID != actor.ID {
		return expense.Detail{}, fmt.Errorf("only the owner may cancel: %w", approvals.ErrForbidden)
	}
	if exp.Status != expense.StatusPending {
		return expense.Detail{}, fmt.Errorf("expense is %s: %w", exp.Status, approvals.ErrAlreadyDecided)
	}

	if err := s.expenses.CancelExpense(ctx, id); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return expense.Detail{}, fmt.Errorf("%v: %w", err, approvals.ErrAlreadyDecided)
		}
		return expense.Detail{}, err
	}

	s.log.WithField("expense_id", id).WithField("owner_id", actor.ID).Info("expense cancelled")
	return s.engine.ExpenseDetail(ctx, id)
}
