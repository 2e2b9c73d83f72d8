package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/pkg/utils"
)

// ProfileInput is the editable part of a user profile
type ProfileInput struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	SIREN    *string `json:"siren_number"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
}

// UserService manages user profiles
type UserService interface {
	Me(ctx context.Context, userID string) (*entity.User, error)
	Upsert(ctx context.Context, userID string, input ProfileInput) (*entity.User, error)
}

type userServiceImpl struct {
	users  port.UserRepository
	logger Logger
}

// NewUserService creates a new UserService
func NewUserService(users port.UserRepository, logger Logger) UserService {
	return &userServiceImpl{
		users:  users,
		logger: logger,
	}
}

// Me returns the caller's profile
func (s *userServiceImpl) Me(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, entity.ErrNotFound)
	}
	return user, nil
}

// Upsert creates or replaces the caller's profile
func (s *userServiceImpl) Upsert(ctx context.Context, userID string, input ProfileInput) (*entity.User, error) {
	input.Email = strings.TrimSpace(input.Email)
	if input.Email != "" {
		if err := utils.ValidateEmail(input.Email); err != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrInvalidInput, err)
		}
	}
	if input.SIREN != nil {
		siren := strings.ReplaceAll(*input.SIREN, " ", "")
		if !entity.IsValidSIREN(siren) {
			return nil, fmt.Errorf("%w: siren_number must be 9 digits", entity.ErrInvalidInput)
		}
		input.SIREN = &siren
	}

	user := &entity.User{
		ID:        userID,
		Email:     input.Email,
		Username:  utils.SanitizeString(input.Username),
		SIREN:     input.SIREN,
		Phone:     input.Phone,
		Address:   input.Address,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		s.logger.Error("Failed to save user", "user_id", userID, "error", err)
		return nil, err
	}

	s.logger.Info("User profile saved", "user_id", userID)
	return s.Me(ctx, userID)
}
