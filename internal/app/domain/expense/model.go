// Package expense defines the expense claim, its approval records and the
// state vocabulary shared by the services and stores.
package expense

import (
	"fmt"
	"strings"
	"time"

	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
)

// Status is the lifecycle state of an expense claim.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the expense can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// ApprovalStatus is the state of a single approval record.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Decision is an approver's verdict on a pending approval.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ParseDecision converts external input into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionApproved, DecisionRejected:
		return d, nil
	default:
		return "", fmt.Errorf("decision must be APPROVED or REJECTED, got %q", s)
	}
}

// Expense is a submitted claim. ConvertedAmount holds the amount normalized
// to ConvertedTo at submission time; when conversion was unavailable it equals
// Amount in the original currency.
type Expense struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	ConvertedAmount float64   `json:"converted_amount"`
	ConvertedTo     string    `json:"converted_to"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Approval is one level of an expense's approval chain.
type Approval struct {
	ID         string         `json:"id"`
	ExpenseID  string         `json:"expense_id"`
	ApproverID string         `json:"approver_id"`
	Level      int            `json:"level"`
	Status     ApprovalStatus `json:"status"`
	Comment    string         `json:"comment"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ApprovalDetail is an approval joined with its approver's identity.
type ApprovalDetail struct {
	Approval
	Approver user.User `json:"approver"`
}

// Detail is the joined read view of an expense: the claim, its owner and the
// approval chain ordered by level.
type Detail struct {
	Expense
	Owner     user.User        `json:"owner"`
	Approvals []ApprovalDetail `json:"approvals"`
}
