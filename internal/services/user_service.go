package services

import (
	"context"
	"errors"
	"strings"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

// UserService owns account rules above the store: email normalization and
// payload validation. Password hashing stays with the caller.
type UserService struct {
	db core.DbClient
}

func NewUserService(db core.DbClient) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Create(ctx context.Context, u *models.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return errors.New("a valid email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("a password is required")
	}
	return s.db.CreateUser(ctx, u)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.db.GetUserByEmail(ctx, normalizeEmail(email))
}

// Emails compare case-insensitively; stored lowercased so the unique index
// catches Foo@x and foo@x as the same account.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
