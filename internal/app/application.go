// Package app wires the workflow services to their stores.
package app

import (
	"github.com/oddo-hq/expenseflow/internal/app/policy"
	"github.com/oddo-hq/expenseflow/internal/app/services/approvals"
	"github.com/oddo-hq/expenseflow/internal/app/services/currency"
	"github.com/oddo-hq/expenseflow/internal/app/services/expenses"
	"github.com/oddo-hq/expenseflow/internal/app/services/users"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
	"github.com/oddo-hq/expenseflow/internal/app/storage/memory"
	"github.com/oddo-hq/expenseflow/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users     storage.UserStore
	Expenses  storage.ExpenseStore
	Approvals storage.ApprovalStore
}

// Options carries optional collaborators. A zero Options runs the default
// two-tier chain with identity currency conversion.
type Options struct {
	Chain     policy.Chain
	Converter currency.Converter
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Users     *users.Service
	Expenses  *expenses.Service
	Approvals *approvals.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Expenses == nil {
		stores.Expenses = mem
	}
	if stores.Approvals == nil {
		stores.Approvals = mem
	}

	chain := opts.Chain
	if chain.Length() == 0 {
		chain = policy.Default()
	}

	userService := users.New(stores.Users, log)
	engine := approvals.New(stores.Users, stores.Expenses, stores.Approvals, chain, log)
	expenseService := expenses.New(stores.Users, stores.Expenses, engine, opts.Converter, log)

	return &Application{
		log:       log,
		Users:     userService,
		Expenses:  expenseService,
		Approvals: engine,
	}
}
