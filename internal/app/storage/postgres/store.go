// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ExpenseStore = (*Store)(nil)
var _ storage.ApprovalStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Name, u.Email, string(u.Role), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *Store) FindUserByRole(ctx context.Context, role user.Role) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users
		WHERE role = $1
		ORDER BY created_at, id
		LIMIT 1
	`, string(role))
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		var u user.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Role = user.Role(role)
		result = append(result, u)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (user.User, error) {
	var u user.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, mapErr(err)
	}
	u.Role = user.Role(role)
	return u, nil
}

// --- ExpenseStore -----------------------------------------------------------

func (s *Store) CreateExpense(ctx context.Context, exp expense.Expense, first *expense.Approval) (expense.Expense, error) {
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exp.CreatedAt = now
	exp.UpdatedAt = now
	if exp.Status == "" {
		exp.Status = expense.StatusPending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return expense.Expense{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, owner_id, title, description, amount, currency, converted_amount, converted_to, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, exp.ID, exp.OwnerID, exp.Title, exp.Description, exp.Amount, exp.Currency,
		exp.ConvertedAmount, exp.ConvertedTo, string(exp.Status), exp.CreatedAt, exp.UpdatedAt)
	if err != nil {
		return expense.Expense{}, err
	}

	if first != nil {
		ap := *first
		if ap.ID == "" {
			ap.ID = uuid.NewString()
		}
		ap.ExpenseID = exp.ID
		if ap.Status == "" {
			ap.Status = expense.ApprovalPending
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO approvals (id, expense_id, approver_id, level, status, comment, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, ap.ID, ap.ExpenseID, ap.ApproverID, ap.Level, string(ap.Status), ap.Comment, now, now)
		if err != nil {
			return expense.Expense{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return expense.Expense{}, err
	}
	return exp, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (expense.Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, amount, currency, converted_amount, converted_to, status, created_at, updated_at
		FROM expenses
		WHERE id = $1
	`, id)
	return scanExpense(row)
}

func (s *Store) ListExpenses(ctx context.Context, filter storage.ExpenseFilter) ([]expense.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, amount, currency, converted_amount, converted_to, status, created_at, updated_at
		FROM expenses
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, filter.OwnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []expense.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, exp)
	}
	return result, rows.Err()
}

func scanExpense(row rowScanner) (expense.Expense, error) {
	var exp expense.Expense
	var status string
	if err := row.Scan(&exp.ID, &exp.OwnerID, &exp.Title, &exp.Description, &exp.Amount, &exp.Currency,
		&exp.ConvertedAmount, &exp.ConvertedTo, &status, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
		return expense.Expense{}, mapErr(err)
	}
	exp.Status = expense.Status(status)
	return exp, nil
}

func (s *Store) UpdateExpenseStatus(ctx context.Context, id string, status expense.Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CancelExpense(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM expenses WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		return mapErr(err)
	}
	if expense.Status(status) != expense.StatusPending {
		return fmt.Errorf("expense %s is %s: %w", id, status, storage.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE expenses SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(expense.StatusCancelled), time.Now().UTC()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM approvals WHERE expense_id = $1 AND status = $2
	`, id, string(expense.ApprovalPending)); err != nil {
		return err
	}
	return tx.Commit()
}

// --- ApprovalStore ----------------------------------------------------------

func (s *Store) CreateApproval(ctx context.Context, ap expense.Approval) (expense.Approval, error) {
	if ap.ID == "" {
		ap.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ap.CreatedAt = now
	ap.UpdatedAt = now
	if ap.Status == "" {
		ap.Status = expense.ApprovalPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, expense_id, approver_id, level, status, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ap.ID, ap.ExpenseID, ap.ApproverID, ap.Level, string(ap.Status), ap.Comment, ap.CreatedAt, ap.UpdatedAt)
	if err != nil {
		return expense.Approval{}, err
	}
	return ap, nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (expense.Approval, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, expense_id, approver_id, level, status, comment, created_at, updated_at
		FROM approvals
		WHERE id = $1
	`, id)
	return scanApproval(row)
}

func (s *Store) ListApprovals(ctx context.Context, expenseID string) ([]expense.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expense_id, approver_id, level, status, comment, created_at, updated_at
		FROM approvals
		WHERE expense_id = $1
		ORDER BY level
	`, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []expense.Approval
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ap)
	}
	return result, rows.Err()
}

func scanApproval(row rowScanner) (expense.Approval, error) {
	var ap expense.Approval
	var status string
	if err := row.Scan(&ap.ID, &ap.ExpenseID, &ap.ApproverID, &ap.Level, &status, &ap.Comment, &ap.CreatedAt, &ap.UpdatedAt); err != nil {
		return expense.Approval{}, mapErr(err)
	}
	ap.Status = expense.ApprovalStatus(status)
	return ap, nil
}

func (s *Store) UpdateApproval(ctx context.Context, id string, status expense.ApprovalStatus, comment string) (expense.Approval, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = $2, comment = $3, updated_at = $4
		WHERE id = $1
	`, id, string(status), comment, time.Now().UTC())
	if err != nil {
		return expense.Approval{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return expense.Approval{}, fmt.Errorf("approval %s: %w", id, storage.ErrNotFound)
	}
	return s.GetApproval(ctx, id)
}

// ApplyDecision applies the approval write, the expense transition and the
// next-level approval in one transaction. The approval row is locked and
// re-checked so a concurrent decision on the same record fails with
// ErrConflict instead of double-applying.
func (s *Store) ApplyDecision(ctx context.Context, upd storage.DecisionUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM approvals WHERE id = $1 FOR UPDATE
	`, upd.ApprovalID).Scan(&status)
	if err != nil {
		return mapErr(err)
	}
	if expense.ApprovalStatus(status) != expense.ApprovalPending {
		return fmt.Errorf("approval %s already %s: %w", upd.ApprovalID, status, storage.ErrConflict)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE approvals SET status = $2, comment = $3, updated_at = $4 WHERE id = $1
	`, upd.ApprovalID, string(upd.Status), upd.Comment, now); err != nil {
		return err
	}

	if upd.ExpenseStatus != "" {
		result, err := tx.ExecContext(ctx, `
			UPDATE expenses SET status = $2, updated_at = $3 WHERE id = $1
		`, upd.ExpenseID, string(upd.ExpenseStatus), now)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("expense %s: %w", upd.ExpenseID, storage.ErrNotFound)
		}
	}

	if upd.Next != nil {
		next := *upd.Next
		if next.ID == "" {
			next.ID = uuid.NewString()
		}
		if next.Status == "" {
			next.Status = expense.ApprovalPending
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO approvals (id, expense_id, approver_id, level, status, comment, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, next.ID, next.ExpenseID, next.ApproverID, next.Level, string(next.Status), next.Comment, now, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
