// Package main seeds the workflow database with demo users and sample
// expenses for local development.
package main

import (
	"context"
	"database/sql"
	"os"

	_ "github.com/lib/pq"

	app "github.com/oddo-hq/expenseflow/internal/app"
	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/services/expenses"
	"github.com/oddo-hq/expenseflow/internal/app/storage/postgres"
	"github.com/oddo-hq/expenseflow/internal/config"
	"github.com/oddo-hq/expenseflow/pkg/logger"
)

func main() {
	log := logger.NewDefault("seed")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Error("open database")
		os.Exit(1)
	}
	defer db.Close()

	store := postgres.New(db)
	application := app.New(app.Stores{Users: store, Expenses: store, Approvals: store}, app.Options{
		Chain: config.LoadChainOrDefault(cfg.ChainPath),
	}, log)

	ctx := context.Background()

	seedUsers := []struct {
		name  string
		email string
		role  user.Role
	}{
		{"Admin User", "admin@oddo.com", user.RoleAdmin},
		{"John Manager", "manager@oddo.com", user.RoleManager},
		{"Sarah CFO", "cfo@oddo.com", user.RoleCFO},
		{"Alice Employee", "employee1@oddo.com", user.RoleEmployee},
		{"Bob Employee", "employee2@oddo.com", user.RoleEmployee},
	}

	created := make(map[string]user.User, len(seedUsers))
	for _, seed := range seedUsers {
		u, err := application.Users.Create(ctx, seed.name, seed.email, seed.role)
		if err != nil {
			log.WithError(err).WithField("email", seed.email).Error("create user")
			os.Exit(1)
		}
		created[seed.email] = u
	}

	alice := created["employee1@oddo.com"]
	bob := created["employee2@oddo.com"]
	manager := created["manager@oddo.com"]
	cfo := created["cfo@oddo.com"]

	submit := func(in expenses.SubmitInput) expense.Detail {
		detail, err := application.Expenses.Submit(ctx, in)
		if err != nil {
			log.WithError(err).WithField("title", in.Title).Error("submit expense")
			os.Exit(1)
		}
		return detail
	}

	submit(expenses.SubmitInput{
		Title:       "Client Dinner",
		Description: "Business dinner with potential client",
		Amount:      150,
		Currency:    "USD",
		OwnerID:     alice.ID,
	})
	submit(expenses.SubmitInput{
		Title:       "Office Supplies",
		Description: "Stationery and office materials",
		Amount:      75.50,
		Currency:    "USD",
		OwnerID:     bob.ID,
	})
	travel := submit(expenses.SubmitInput{
		Title:       "Conference Travel",
		Description: "Flight and hotel for tech conference",
		Amount:      1200,
		Currency:    "USD",
		OwnerID:     alice.ID,
	})

	// Walk the travel claim through the full chain so the demo data shows a
	// finished approval trail.
	travel, err = application.Approvals.Decide(ctx, travel.Approvals[0].ID, expense.DecisionApproved, manager, "Approved for conference attendance")
	if err != nil {
		log.WithError(err).Error("manager approval")
		os.Exit(1)
	}
	if _, err := application.Approvals.Decide(ctx, travel.Approvals[1].ID, expense.DecisionApproved, cfo, "Final approval for conference travel"); err != nil {
		log.WithError(err).Error("cfo approval")
		os.Exit(1)
	}

	log.WithField("users", len(created)).Info("seed complete")
}
