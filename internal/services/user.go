package services

import (
	"context"
	"strings"
	"time"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

type userUSStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

type userService struct {
	Store    userUSStore
	clockNow func() time.Time
}

func NewUserService(store userUSStore) *userService {
	return &userService{
		Store:    store,
		clockNow: time.Now,
	}
}

// Register creates the profile for a verified Firebase user. Registering
// twice returns the existing profile.
func (s *userService) Register(ctx context.Context, uid, email string, req dto.CreateUserRequest) (*models.User, error) {
	// Logger already carries uid, email, request_id, method, path
	log := logger.FromContext(ctx)

	if uid == "" {
		return nil, errs.NewValidationError("missing user identity")
	}

	now := s.clockNow()
	user := &models.User{
		UID:       uid,
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.Store.CreateUser(ctx, user)
	if errs.IsAlreadyExists(err) {
		log.Debug("user already registered")
		return s.Store.GetUser(ctx, uid)
	}
	if err != nil {
		log.Error("failed to create user in store", "error", err)
		return nil, err
	}

	log.Info("user created successfully", "first_name", user.FirstName, "last_name", user.LastName)
	log.Debug("user created with full details", "user", user)
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, uid string) (*models.User, error) {
	return s.Store.GetUser(ctx, uid)
}

func (s *userService) UpdateUser(ctx context.Context, uid, email string, req dto.UpdateUserRequest) (*models.User, error) {
	user, err := s.Store.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if email != "" {
		user.Email = email
	}
	user.UpdatedAt = s.clockNow()

	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
