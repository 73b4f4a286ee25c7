package service

import (
	"context"
	"errors"
	"time"

	"bell-backend/internal/apps/user/models"
	"bell-backend/internal/apps/user/repository"

	"github.com/google/uuid"
)

// UserService defines the interface for user business logic
type UserService interface {
	FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, error)
	FindOrCreateByEmail(ctx context.Context, email string) (*models.User, error)
	RecordLogin(ctx context.Context, user *models.User, at time.Time) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.UserResponse, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.UserResponse, error)
}

// userService implements UserService
type userService struct {
	repo repository.UserRepository
}

// NewUserService creates a new instance of UserService
func NewUserService(repo repository.UserRepository) UserService {
	return &userService{repo: repo}
}

// FindOrCreateByPhone returns the user owning a verified phone number, creating it on first login
func (s *userService) FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.findOrCreate(ctx, s.repo.FindByPhone, phone, func(u *models.User) { u.Phone = &phone })
}

// FindOrCreateByEmail returns the user owning a verified email address, creating it on first login
func (s *userService) FindOrCreateByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOrCreate(ctx, s.repo.FindByEmail, email, func(u *models.User) { u.Email = &email })
}

func (s *userService) findOrCreate(
	ctx context.Context,
	find func(context.Context, string) (*models.User, error),
	key string,
	assign func(*models.User),
) (*models.User, error) {
	user, err := find(ctx, key)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	user = &models.User{Metadata: models.Metadata{}}
	assign(user)
	if err := s.repo.Create(ctx, user); err != nil {
		// lost a race with a concurrent first login
		if errors.Is(err, repository.ErrUserExists) {
			return find(ctx, key)
		}
		return nil, err
	}
	return user, nil
}

// RecordLogin stamps the user's last login time
func (s *userService) RecordLogin(ctx context.Context, user *models.User, at time.Time) error {
	at = at.UTC()
	user.LastLoginAt = &at
	return s.repo.Update(ctx, user)
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*models.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := user.ToResponse()
	return &resp, nil
}

// UpdateUser updates an existing user
func (s *userService) UpdateUser(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = req.Name
	}
	// Merge metadata if provided (partial update)
	if len(req.Metadata) > 0 {
		if user.Metadata == nil {
			user.Metadata = make(models.Metadata)
		}
		for key, value := range req.Metadata {
			user.Metadata[key] = value
		}
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	resp := user.ToResponse()
	return &resp, nil
}
