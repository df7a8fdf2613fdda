package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/storage"
	"github.com/harentsoaR/dentalab-api/internal/utils"
)

const passwordRule = "min=8"

type UserStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	PutUser(ctx context.Context, u models.User) error
	DeleteUser(ctx context.Context, id string) error
}

// DirectoryInvalidator drops cached copies of the user list.
type DirectoryInvalidator interface {
	Invalidate(ctx context.Context) error
}

// UserInput is a new account, or the fields to change on an existing one.
// The validate tags apply to creation; updates check only what they set.
type UserInput struct {
	FullName      string      `json:"fullName" validate:"required"`
	Email         string      `json:"email" validate:"required,email"`
	Password      string      `json:"password" validate:"required,min=8"`
	Role          models.Role `json:"role"`
	RelatedEntity string      `json:"relatedEntity"`
}

type UserService struct {
	store     UserStore
	directory DirectoryInvalidator
	logger    *zap.Logger
}

func NewUserService(store UserStore, directory DirectoryInvalidator, logger *zap.Logger) *UserService {
	return &UserService{store: store, directory: directory, logger: logger}
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Technicians lists technician accounts for handover pickers.
func (s *UserService) Technicians(ctx context.Context) ([]models.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	techs := make([]models.User, 0)
	for _, u := range users {
		if u.Role == models.RoleTechnician {
			techs = append(techs, u)
		}
	}
	return techs, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

func (s *UserService) Create(ctx context.Context, in UserInput) (models.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalizeEmail(in.Email)
	if err := checkStruct(in); err != nil {
		return models.User{}, err
	}
	if !in.Role.Valid() {
		return models.User{}, validationError("role %q is invalid", in.Role)
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return models.User{}, fmt.Errorf("%w: email %s", ErrConflict, in.Email)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := models.User{
		ID:            uuid.NewString(),
		FullName:      in.FullName,
		Email:         in.Email,
		Password:      hash,
		Role:          in.Role,
		RelatedEntity: strings.TrimSpace(in.RelatedEntity),
	}
	if err := s.store.PutUser(ctx, u); err != nil {
		return models.User{}, fmt.Errorf("save user: %w", err)
	}
	s.invalidate(ctx)
	s.logger.Info("user created", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// Update changes the non-empty fields of in. A new password is re-hashed.
func (s *UserService) Update(ctx context.Context, id string, in UserInput) (models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if name := strings.TrimSpace(in.FullName); name != "" {
		u.FullName = name
	}
	if in.Email != "" {
		email := normalizeEmail(in.Email)
		if err := checkVar("email", email, "email"); err != nil {
			return models.User{}, err
		}
		if email != u.Email {
			if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
				return models.User{}, fmt.Errorf("%w: email %s", ErrConflict, email)
			} else if !errors.Is(err, storage.ErrNotFound) {
				return models.User{}, fmt.Errorf("lookup email: %w", err)
			}
			u.Email = email
		}
	}
	if in.Role != "" {
		if !in.Role.Valid() {
			return models.User{}, validationError("role %q is invalid", in.Role)
		}
		u.Role = in.Role
	}
	if in.RelatedEntity != "" {
		u.RelatedEntity = strings.TrimSpace(in.RelatedEntity)
	}
	if in.Password != "" {
		if err := checkVar("password", in.Password, passwordRule); err != nil {
			return models.User{}, err
		}
		if u.Password, err = utils.HashPassword(in.Password); err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
	}
	if err := s.store.PutUser(ctx, u); err != nil {
		return models.User{}, fmt.Errorf("save user: %w", err)
	}
	s.invalidate(ctx)
	return u, nil
}

// UpdateProfile lets a user change their own display name. Orders keep the
// name they were created with.
func (s *UserService) UpdateProfile(ctx context.Context, id, fullName string) (models.User, error) {
	if strings.TrimSpace(fullName) == "" {
		return models.User{}, validationError("no update fields provided")
	}
	return s.Update(ctx, id, UserInput{FullName: fullName})
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	err := s.store.DeleteUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	s.invalidate(ctx)
	s.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

// Authenticate returns the account for email when password matches its hash.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, fmt.Errorf("lookup email: %w", err)
	}
	if !utils.CheckPasswordHash(password, u.Password) {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) invalidate(ctx context.Context) {
	if s.directory == nil {
		return
	}
	if err := s.directory.Invalidate(ctx); err != nil {
		s.logger.Warn("user directory not invalidated", zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
