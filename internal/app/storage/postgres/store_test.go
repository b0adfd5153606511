package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyDecisionFinalizes(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM approvals").
		WithArgs("ap-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec("UPDATE approvals").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE expenses").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ApplyDecision(context.Background(), storage.DecisionUpdate{
		ApprovalID:    "ap-1",
		Status:        expense.ApprovalApproved,
		Comment:       "ok",
		ExpenseID:     "exp-1",
		ExpenseStatus: expense.StatusApproved,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	expectationsMet(t, mock)
}

func TestApplyDecisionEscalates(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM approvals").
		WithArgs("ap-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec("UPDATE approvals").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO approvals").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ApplyDecision(context.Background(), storage.DecisionUpdate{
		ApprovalID: "ap-1",
		Status:     expense.ApprovalApproved,
		ExpenseID:  "exp-1",
		Next: &expense.Approval{
			ExpenseID:  "exp-1",
			ApproverID: "cfo-1",
			Level:      2,
			Status:     expense.ApprovalPending,
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	expectationsMet(t, mock)
}

func TestApplyDecisionConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM approvals").
		WithArgs("ap-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectRollback()

	err := store.ApplyDecision(context.Background(), storage.DecisionUpdate{
		ApprovalID: "ap-1",
		Status:     expense.ApprovalApproved,
		ExpenseID:  "exp-1",
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("apply = %v, want ErrConflict", err)
	}
	expectationsMet(t, mock)
}

func TestCreateExpenseWithFirstApproval(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO expenses").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO approvals").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := store.CreateExpense(context.Background(), expense.Expense{
		OwnerID:  "u-1",
		Title:    "Taxi",
		Amount:   20,
		Currency: "USD",
	}, &expense.Approval{ApproverID: "mgr-1", Level: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Status != expense.StatusPending {
		t.Fatalf("created = %+v", created)
	}
	expectationsMet(t, mock)
}

func TestCancelExpenseConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM expenses").
		WithArgs("exp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectRollback()

	if err := store.CancelExpense(context.Background(), "exp-1"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("cancel = %v, want ErrConflict", err)
	}
	expectationsMet(t, mock)
}

func TestGetExpenseNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM expenses").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetExpense(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestFindUserByRole(t *testing.T) {
	store, mock := newMock(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("MANAGER").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "created_at", "updated_at"}).
			AddRow("u-1", "Mallory", "m@example.com", "MANAGER", now, now))

	found, err := store.FindUserByRole(context.Background(), user.RoleManager)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != "u-1" || found.Role != user.RoleManager {
		t.Fatalf("found = %+v", found)
	}
	expectationsMet(t, mock)
}
