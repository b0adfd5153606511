// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
)

// Store holds all records behind a single mutex, which gives every multi-step
// write the same all-or-nothing behaviour as a database transaction.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	users     map[string]user.User
	expenses  map[string]expense.Expense
	approvals map[string]expense.Approval
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ExpenseStore = (*Store)(nil)
var _ storage.ApprovalStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:    1,
		users:     make(map[string]user.User),
		expenses:  make(map[string]expense.Expense),
		approvals: make(map[string]expense.Approval),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) FindUserByRole(_ context.Context, role user.Role) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found bool
		best  user.User
	)
	for _, u := range s.users {
		if u.Role != role {
			continue
		}
		if !found || u.CreatedAt.Before(best.CreatedAt) || (u.CreatedAt.Equal(best.CreatedAt) && u.ID < best.ID) {
			best = u
			found = true
		}
	}
	if !found {
		return user.User{}, fmt.Errorf("no user with role %s: %w", role, storage.ErrNotFound)
	}
	return best, nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ExpenseStore implementation -------------------------------------------------

func (s *Store) CreateExpense(_ context.Context, exp expense.Expense, first *expense.Approval) (expense.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp.ID == "" {
		exp.ID = s.nextIDLocked()
	} else if _, exists := s.expenses[exp.ID]; exists {
		return expense.Expense{}, fmt.Errorf("expense %s already exists", exp.ID)
	}
	if _, ok := s.users[exp.OwnerID]; !ok {
		return expense.Expense{}, fmt.Errorf("owner %s: %w", exp.OwnerID, storage.ErrNotFound)
	}

	now := time.Now().UTC()
	exp.CreatedAt = now
	exp.UpdatedAt = now
	if exp.Status == "" {
		exp.Status = expense.StatusPending
	}

	s.expenses[exp.ID] = exp

	if first != nil {
		ap := *first
		ap.ID = s.nextIDLocked()
		ap.ExpenseID = exp.ID
		ap.CreatedAt = now
		ap.UpdatedAt = now
		s.approvals[ap.ID] = ap
	}
	return exp, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.expenses[id]
	if !ok {
		return expense.Expense{}, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	return exp, nil
}

func (s *Store) ListExpenses(_ context.Context, filter storage.ExpenseFilter) ([]expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]expense.Expense, 0)
	for _, exp := range s.expenses {
		if filter.OwnerID != "" && exp.OwnerID != filter.OwnerID {
			continue
		}
		result = append(result, exp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateExpenseStatus(_ context.Context, id string, status expense.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateExpenseStatusLocked(id, status)
}

func (s *Store) updateExpenseStatusLocked(id string, status expense.Status) error {
	exp, ok := s.expenses[id]
	if !ok {
		return fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	exp.Status = status
	exp.UpdatedAt = time.Now().UTC()
	s.expenses[id] = exp
	return nil
}

func (s *Store) CancelExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expenses[id]
	if !ok {
		return fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	if exp.Status != expense.StatusPending {
		return fmt.Errorf("expense %s is %s: %w", id, exp.Status, storage.ErrConflict)
	}

	exp.Status = expense.StatusCancelled
	exp.UpdatedAt = time.Now().UTC()
	s.expenses[id] = exp

	for apID, ap := range s.approvals {
		if ap.ExpenseID == id && ap.Status == expense.ApprovalPending {
			delete(s.approvals, apID)
		}
	}
	return nil
}

// ApprovalStore implementation ------------------------------------------------

func (s *Store) CreateApproval(_ context.Context, ap expense.Approval) (expense.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createApprovalLocked(ap)
}

func (s *Store) createApprovalLocked(ap expense.Approval) (expense.Approval, error) {
	if _, ok := s.expenses[ap.ExpenseID]; !ok {
		return expense.Approval{}, fmt.Errorf("expense %s: %w", ap.ExpenseID, storage.ErrNotFound)
	}
	if ap.ID == "" {
		ap.ID = s.nextIDLocked()
	} else if _, exists := s.approvals[ap.ID]; exists {
		return expense.Approval{}, fmt.Errorf("approval %s already exists", ap.ID)
	}

	now := time.Now().UTC()
	ap.CreatedAt = now
	ap.UpdatedAt = now
	if ap.Status == "" {
		ap.Status = expense.ApprovalPending
	}

	s.approvals[ap.ID] = ap
	return ap, nil
}

func (s *Store) GetApproval(_ context.Context, id string) (expense.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ap, ok := s.approvals[id]
	if !ok {
		return expense.Approval{}, fmt.Errorf("approval %s: %w", id, storage.ErrNotFound)
	}
	return ap, nil
}

func (s *Store) ListApprovals(_ context.Context, expenseID string) ([]expense.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]expense.Approval, 0)
	for _, ap := range s.approvals {
		if ap.ExpenseID == expenseID {
			result = append(result, ap)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result, nil
}

func (s *Store) UpdateApproval(_ context.Context, id string, status expense.ApprovalStatus, comment string) (expense.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ap, ok := s.approvals[id]
	if !ok {
		return expense.Approval{}, fmt.Errorf("approval %s: %w", id, storage.ErrNotFound)
	}
	ap.Status = status
	ap.Comment = comment
	ap.UpdatedAt = time.Now().UTC()
	s.approvals[id] = ap
	return ap, nil
}

func (s *Store) ApplyDecision(_ context.Context, upd storage.DecisionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ap, ok := s.approvals[upd.ApprovalID]
	if !ok {
		return fmt.Errorf("approval %s: %w", upd.ApprovalID, storage.ErrNotFound)
	}
	if ap.Status != expense.ApprovalPending {
		return fmt.Errorf("approval %s already %s: %w", ap.ID, ap.Status, storage.ErrConflict)
	}

	now := time.Now().UTC()
	ap.Status = upd.Status
	ap.Comment = upd.Comment
	ap.UpdatedAt = now
	s.approvals[ap.ID] = ap

	if upd.ExpenseStatus != "" {
		if err := s.updateExpenseStatusLocked(upd.ExpenseID, upd.ExpenseStatus); err != nil {
			// Roll the approval write back so a missing expense leaves no
			// partial state.
			ap.Status = expense.ApprovalPending
			ap.Comment = ""
			s.approvals[ap.ID] = ap
			return err
		}
	}
	if upd.Next != nil {
		if _, err := s.createApprovalLocked(*upd.Next); err != nil {
			ap.Status = expense.ApprovalPending
			ap.Comment = ""
			s.approvals[ap.ID] = ap
			return err
		}
	}
	return nil
}
