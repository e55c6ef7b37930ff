package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
	"github.com/scoutexam/exam-backend/internal/response"
)

// User errors.
var (
	ErrEmailTaken        = errors.New("email already registered")
	ErrCannotDeleteSelf  = errors.New("an administrator cannot delete their own account")
	ErrCategoryForbidden = errors.New("only students carry a category")
)

// UserService manages accounts: administrators, leaders and students.
type UserService struct {
	userRepo *repository.UserRepository
	auth     *AuthService
	audit    *AuditService
}

// NewUserService creates a new UserService.
func NewUserService(userRepo *repository.UserRepository, auth *AuthService, audit *AuditService) *UserService {
	return &UserService{userRepo: userRepo, auth: auth, audit: audit}
}

// List retrieves users with filters and pagination.
func (s *UserService) List(ctx context.Context, filter model.UserFilter, page, perPage int) ([]model.User, *response.Pagination, error) {
	page, perPage = pageBounds(page, perPage)
	filter.Search = strings.TrimSpace(filter.Search)

	users, total, err := s.userRepo.List(ctx, filter, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	return users, response.NewPagination(page, perPage, total), nil
}

// Export returns every account matching filter, up to exportLimit rows.
func (s *UserService) Export(ctx context.Context, filter model.UserFilter) ([]model.User, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	users, err := collectPages(ctx, exportLimit, func(ctx context.Context, page, perPage int) ([]model.User, int64, error) {
		return s.userRepo.List(ctx, filter, page, perPage)
	})
	if err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	return users, nil
}

// Create registers a new account.
func (s *UserService) Create(ctx context.Context, actorID int, req *model.CreateUserRequest) (*model.User, error) {
	if req.Role != model.RoleStudent && req.Category != nil {
		return nil, ErrCategoryForbidden
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Role:         req.Role,
		Category:     req.Category,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	id := strconv.Itoa(user.ID)
	s.audit.Record(ctx, actorID, model.AuditAddUser, "user", &id, map[string]any{
		"email": user.Email,
		"role":  user.Role,
	})
	return user, nil
}

// Delete removes one or many accounts. The acting administrator is never
// among them.
func (s *UserService) Delete(ctx context.Context, actorID int, ids []int) (int64, error) {
	if slices.Contains(ids, actorID) {
		return 0, ErrCannotDeleteSelf
	}

	n, err := s.userRepo.DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete users: %w", err)
	}

	action := model.AuditBulkDeleteUsers
	var resourceID *string
	if len(ids) == 1 {
		action = model.AuditDeleteUser
		id := strconv.Itoa(ids[0])
		resourceID = &id
	}
	s.audit.Record(ctx, actorID, action, "user", resourceID, map[string]any{
		"ids":     ids,
		"deleted": n,
	})
	return n, nil
}

// ResetPassword replaces a user's password and signs them out of their
// current device.
func (s *UserService) ResetPassword(ctx context.Context, actorID, userID int, password string) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.auth.Logout(ctx, userID); err != nil {
		return fmt.Errorf("revoke device session: %w", err)
	}

	id := strconv.Itoa(userID)
	s.audit.Record(ctx, actorID, model.AuditResetPassword, "user", &id, nil)
	return nil
}
