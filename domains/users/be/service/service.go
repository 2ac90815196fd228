package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the service layer.
var ErrNotFound = errors.New("user not found")

// User represents the domain model for an application user. Authentication
// lives with the identity provider; the record stores no credentials. The
// optional MetabaseUserID links the user to their external analytics
// identity once one exists.
type User struct {
	ID             uuid.UUID
	Email          string
	DisplayName    *string
	MetabaseUserID *int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EnsureInput represents the verified identity to upsert.
type EnsureInput struct {
	Email       string
	DisplayName *string
}

// Repository abstracts persistence.
type Repository interface {
	EnsureByEmail(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	LinkMetabaseUser(ctx context.Context, id uuid.UUID, metabaseUserID int) error
}

// Service provides user registry operations.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("users repo is required")
	}
	return &Service{repo: repo}
}

// Ensure upserts a local user for a verified identity and returns it.
func (s *Service) Ensure(ctx context.Context, input EnsureInput) (User, error) {
	if input.Email == "" {
		return User{}, errors.New("email is required")
	}

	now := time.Now().UTC()
	return s.repo.EnsureByEmail(ctx, User{
		ID:          uuid.New(),
		Email:       input.Email,
		DisplayName: input.DisplayName,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// LinkMetabaseUser records the user's external analytics identity.
func (s *Service) LinkMetabaseUser(ctx context.Context, id uuid.UUID, metabaseUserID int) error {
	return s.repo.LinkMetabaseUser(ctx, id, metabaseUserID)
}
