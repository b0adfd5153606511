// Package users manages the workflow's actor directory.
package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/services/approvals"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
	"github.com/oddo-hq/expenseflow/pkg/logger"
)

// Service manages user records.
type Service struct {
	store storage.UserStore
	log   *logger.Logger
}

// New constructs a user directory service.
func New(store storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, log: log}
}

// Create registers a new actor. Role must be one of the defined values.
func (s *Service) Create(ctx context.Context, name, email string, role user.Role) (user.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return user.User{}, fmt.Errorf("name and email are required: %w", approvals.ErrInvalidInput)
	}
	if !role.Valid() {
		return user.User{}, fmt.Errorf("unknown role %q: %w", role, approvals.ErrInvalidInput)
	}

	created, err := s.store.CreateUser(ctx, user.User{Name: name, Email: email, Role: role})
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", created.ID).
		WithField("role", string(created.Role)).
		Info("user created")
	return created, nil
}

// Get fetches one user by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns all users, oldest first.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}
