package expenses_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/policy"
	"github.com/oddo-hq/expenseflow/internal/app/services/approvals"
	"github.com/oddo-hq/expenseflow/internal/app/services/currency"
	"github.com/oddo-hq/expenseflow/internal/app/services/expenses"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
	"github.com/oddo-hq/expenseflow/internal/app/storage/memory"
	"github.com/oddo-hq/expenseflow/pkg/logger"
)

type env struct {
	store  *memory.Store
	claims *expenses.Service

	employee user.User
	other    user.User
	manager  user.User
	cfo      user.User
}

func newEnv(t *testing.T, converter currency.Converter) *env {
	t.Helper()

	store := memory.New()
	log := logger.NewDefault("test")
	log.SetOutput(io.Discard)

	engine := approvals.New(store, store, store, policy.Default(), log)
	e := &env{store: store, claims: expenses.New(store, store, engine, converter, log)}

	seed := func(name string, role user.Role) user.User {
		u, err := store.CreateUser(context.Background(), user.User{Name: name, Email: name + "@example.com", Role: role})
		if err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
		return u
	}
	e.employee = seed("alice", user.RoleEmployee)
	e.other = seed("bob", user.RoleEmployee)
	e.manager = seed("mallory", user.RoleManager)
	e.cfo = seed("carol", user.RoleCFO)
	return e
}

func (e *env) submit(t *testing.T, owner user.User, title string) expense.Detail {
	t.Helper()
	detail, err := e.claims.Submit(context.Background(), expenses.SubmitInput{
		Title:    title,
		Amount:   10,
		Currency: "USD",
		OwnerID:  owner.ID,
	})
	if err != nil {
		t.Fatalf("submit %q: %v", title, err)
	}
	return detail
}

func TestSubmitCreatesFirstApproval(t *testing.T) {
	e := newEnv(t, nil)

	detail, err := e.claims.Submit(context.Background(), expenses.SubmitInput{
		Title:       "  Taxi  ",
		Description: " airport transfer ",
		Amount:      55.5,
		Currency:    "eur",
		OwnerID:     e.employee.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if detail.Title != "Taxi" || detail.Description != "airport transfer" {
		t.Fatalf("fields not trimmed: %+v", detail.Expense)
	}
	if detail.Currency != "EUR" {
		t.Fatalf("currency = %s, want EUR", detail.Currency)
	}
	if detail.Status != expense.StatusPending {
		t.Fatalf("status = %s, want PENDING", detail.Status)
	}
	if detail.Owner.ID != e.employee.ID {
		t.Fatalf("owner = %s, want %s", detail.Owner.ID, e.employee.ID)
	}
	if len(detail.Approvals) != 1 {
		t.Fatalf("approvals = %d, want 1", len(detail.Approvals))
	}
	first := detail.Approvals[0]
	if first.Level != 1 || first.Status != expense.ApprovalPending || first.Approver.ID != e.manager.ID {
		t.Fatalf("first approval = %+v", first)
	}

	// No converter configured: the identity conversion is recorded.
	if detail.ConvertedAmount != 55.5 || detail.ConvertedTo != "EUR" {
		t.Fatalf("conversion = %.2f %s, want identity", detail.ConvertedAmount, detail.ConvertedTo)
	}
}

func TestSubmitValidation(t *testing.T) {
	e := newEnv(t, nil)

	cases := []struct {
		name string
		in   expenses.SubmitInput
	}{
		{"missing title", expenses.SubmitInput{Amount: 10, Currency: "USD", OwnerID: e.employee.ID}},
		{"missing owner", expenses.SubmitInput{Title: "x", Amount: 10, Currency: "USD"}},
		{"missing currency", expenses.SubmitInput{Title: "x", Amount: 10, OwnerID: e.employee.ID}},
		{"zero amount", expenses.SubmitInput{Title: "x", Amount: 0, Currency: "USD", OwnerID: e.employee.ID}},
		{"negative amount", expenses.SubmitInput{Title: "x", Amount: -1, Currency: "USD", OwnerID: e.employee.ID}},
		{"nan amount", expenses.SubmitInput{Title: "x", Amount: math.NaN(), Currency: "USD", OwnerID: e.employee.ID}},
		{"infinite amount", expenses.SubmitInput{Title: "x", Amount: math.Inf(1), Currency: "USD", OwnerID: e.employee.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.claims.Submit(context.Background(), tc.in); !errors.Is(err, approvals.ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}

	_, err := e.claims.Submit(context.Background(), expenses.SubmitInput{Title: "x", Amount: 10, Currency: "USD", OwnerID: "ghost"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown owner = %v, want ErrNotFound", err)
	}
}

func TestSubmitAppliesConversion(t *testing.T) {
	converter := currency.ConverterFunc(func(_ context.Context, amount float64, from, to string) (currency.Conversion, error) {
		return currency.Conversion{From: from, To: to, Amount: amount, ConvertedAmount: amount * 1.1, Rate: 1.1}, nil
	})
	e := newEnv(t, converter)

	detail, err := e.claims.Submit(context.Background(), expenses.SubmitInput{
		Title: "Hotel", Amount: 100, Currency: "EUR", OwnerID: e.employee.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if detail.ConvertedTo != currency.BaseCurrency {
		t.Fatalf("converted to %s, want %s", detail.ConvertedTo, currency.BaseCurrency)
	}
	if math.Abs(detail.ConvertedAmount-110) > 1e-9 {
		t.Fatalf("converted amount = %.4f, want 110", detail.ConvertedAmount)
	}
}

func TestSubmitDegradesWhenConverterFails(t *testing.T) {
	converter := currency.ConverterFunc(func(context.Context, float64, string, string) (currency.Conversion, error) {
		return currency.Conversion{}, fmt.Errorf("rate service down")
	})
	e := newEnv(t, converter)

	detail, err := e.claims.Submit(context.Background(), expenses.SubmitInput{
		Title: "Hotel", Amount: 100, Currency: "EUR", OwnerID: e.employee.ID,
	})
	if err != nil {
		t.Fatalf("a converter outage must not fail the submission: %v", err)
	}
	if detail.ConvertedAmount != 100 || detail.ConvertedTo != "EUR" {
		t.Fatalf("conversion = %.2f %s, want identity fallback", detail.ConvertedAmount, detail.ConvertedTo)
	}
}

func TestSubmitUnroutableWithoutManager(t *testing.T) {
	store := memory.New()
	log := logger.NewDefault("test")
	log.SetOutput(io.Discard)
	engine := approvals.New(store, store, store, policy.Default(), log)
	claims := expenses.New(store, store, engine, nil, log)

	owner, err := store.CreateUser(context.Background(), user.User{Name: "alice", Email: "a@example.com", Role: user.RoleEmployee})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = claims.Submit(context.Background(), expenses.SubmitInput{Title: "x", Amount: 10, Currency: "USD", OwnerID: owner.ID})
	if !errors.Is(err, approvals.ErrUnroutable) {
		t.Fatalf("submit without a manager = %v, want ErrUnroutable", err)
	}

	// The unroutable claim must not be persisted.
	list, err := store.ListExpenses(context.Background(), storage.ExpenseFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expenses = %d, want none", len(list))
	}
}

func TestListVisibility(t *testing.T) {
	e := newEnv(t, nil)
	e.submit(t, e.employee, "Lunch")
	e.submit(t, e.other, "Dinner")

	mine, err := e.claims.List(context.Background(), e.employee)
	if err != nil {
		t.Fatalf("list as employee: %v", err)
	}
	if len(mine) != 1 || mine[0].Title != "Lunch" {
		t.Fatalf("employee sees %d claims, want only their own", len(mine))
	}

	for _, actor := range []user.User{e.manager, e.cfo} {
		all, err := e.claims.List(context.Background(), actor)
		if err != nil {
			t.Fatalf("list as %s: %v", actor.Role, err)
		}
		if len(all) != 2 {
			t.Fatalf("%s sees %d claims, want 2", actor.Role, len(all))
		}
	}
}

func TestCancel(t *testing.T) {
	e := newEnv(t, nil)
	detail := e.submit(t, e.employee, "Lunch")

	if _, err := e.claims.Cancel(context.Background(), detail.ID, e.other); !errors.Is(err, approvals.ErrForbidden) {
		t.Fatalf("non-owner cancel = %v, want ErrForbidden", err)
	}

	cancelled, err := e.claims.Cancel(context.Background(), detail.ID, e.employee)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != expense.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", cancelled.Status)
	}
	if len(cancelled.Approvals) != 0 {
		t.Fatalf("open approvals must be voided, got %d", len(cancelled.Approvals))
	}

	if _, err := e.claims.Cancel(context.Background(), detail.ID, e.employee); !errors.Is(err, approvals.ErrAlreadyDecided) {
		t.Fatalf("double cancel = %v, want ErrAlreadyDecided", err)
	}
}

func TestGetNotFound(t *testing.T) {
	e := newEnv(t, nil)
	if _, err := e.claims.Get(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get = %v, want ErrNotFound", err)
	}
}
