package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/monitoring"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const defaultDisplayName = "New User"

var ErrNoAuthorization = errors.New("no authorization header")

// UserDirectory is the write side of the profile and category collections.
type UserDirectory interface {
	UpsertUser(ctx context.Context, user models.User) (models.User, error)
	EnsureCategories(ctx context.Context, owner uuid.UUID, wanted []models.NewCategory) ([]models.Category, error)
}

type ProvisionResult struct {
	User              models.User       `json:"user"`
	CreatedCategories []models.Category `json:"created_categories"`
}

// ProvisioningService turns a verified account into a usable one: confirmed
// email, a profile row and the default categories. Running it twice for the
// same account creates nothing new.
type ProvisioningService struct {
	auth      AuthService
	directory UserDirectory
	log       *zap.Logger
}

func NewProvisioningService(auth AuthService, directory UserDirectory, log *zap.Logger) *ProvisioningService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProvisioningService{auth: auth, directory: directory, log: log.Named("provisioning")}
}

// DisplayName picks the requested name, else the email local part, else a
// fixed placeholder.
func DisplayName(requested, email string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(email, "@"); strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return defaultDisplayName
}

func (s *ProvisioningService) Provision(ctx context.Context, accessToken, name string) (result *ProvisionResult, err error) {
	defer func() { monitoring.RecordProvisioning(err) }()

	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrNoAuthorization
	}
	identity, err := s.auth.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	if err := s.auth.ConfirmEmail(ctx, identity.ID); err != nil {
		return nil, err
	}

	user, err := s.directory.UpsertUser(ctx, models.User{
		ID:    identity.ID,
		Name:  DisplayName(name, identity.Email),
		Email: identity.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	created, err := s.directory.EnsureCategories(ctx, identity.ID, models.DefaultCategories)
	if err != nil {
		return nil, fmt.Errorf("create default categories: %w", err)
	}

	s.log.Info("user provisioned",
		zap.String("user_id", identity.ID.String()),
		zap.Int("categories_created", len(created)),
	)
	return &ProvisionResult{User: user, CreatedCategories: created}, nil
}

// ProvisionUser lets the in-process service stand in for the HTTP endpoint.
func (s *ProvisioningService) ProvisionUser(ctx context.Context, accessToken, name string) error {
	_, err := s.Provision(ctx, accessToken, name)
	return err
}
