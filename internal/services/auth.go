package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"taskflow/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type AuthService interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
	VerifyAccessToken(token string) (*models.Identity, error)
	LookupProfile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	ConfirmEmail(ctx context.Context, userID uuid.UUID) error
}

// ProfileDirectory resolves public profiles; the task provider's users
// collection is the source of truth.
type ProfileDirectory interface {
	UserByID(id uuid.UUID) (models.User, bool)
}

type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:       "default_secret",
		Issuer:          "taskflow",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

type AuthServiceImpl struct {
	db       *gorm.DB
	profiles ProfileDirectory
	config   AuthConfig
	now      func() time.Time
	log      *zap.Logger
}

type accessClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func NewAuthService(db *gorm.DB, profiles ProfileDirectory, config AuthConfig, log *zap.Logger) *AuthServiceImpl {
	defaults := DefaultAuthConfig()
	if config.JWTSecret == "" {
		config.JWTSecret = defaults.JWTSecret
	}
	if config.Issuer == "" {
		config.Issuer = defaults.Issuer
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = defaults.AccessTokenTTL
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = defaults.RefreshTokenTTL
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = defaults.BcryptCost
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{
		db:       db,
		profiles: profiles,
		config:   config,
		now:      time.Now,
		log:      log.Named("auth"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidCredentials)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidCredentials, minPasswordLength)
	}

	var existing models.Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := models.Account{
		ID:           uuid.Must(uuid.NewV4()),
		Email:        email,
		PasswordHash: string(hash),
		LastSignInAt: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.log.Info("account created", zap.String("user_id", account.ID.String()))
	return s.issueSession(ctx, s.db.WithContext(ctx), account)
}

func (s *AuthServiceImpl) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !VerifyPassword(account.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&account).Update("last_sign_in_at", now).Error; err != nil {
		return nil, fmt.Errorf("record sign in: %w", err)
	}
	return s.issueSession(ctx, s.db.WithContext(ctx), account)
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// session is issued.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	tokenID, err := uuid.FromString(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var session *models.Session
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token models.RefreshToken
		if err := tx.Where("token = ? AND expires_at > ?", tokenID, s.now()).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		var account models.Account
		if err := tx.First(&account, "id = ?", token.AccountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		if err := tx.Delete(&token).Error; err != nil {
			return err
		}

		var err error
		session, err = s.issueSession(ctx, tx, account)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return session, nil
}

// SignOut revokes the refresh token. Revoking an unknown token is not an error.
func (s *AuthServiceImpl) SignOut(ctx context.Context, refreshToken string) error {
	tokenID, err := uuid.FromString(refreshToken)
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.db.WithContext(ctx).Where("token = ?", tokenID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *AuthServiceImpl) VerifyAccessToken(token string) (*models.Identity, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.FromString(claims.UserID)
	if err != nil || id.IsNil() {
		return nil, fmt.Errorf("%w: bad user_id claim", ErrInvalidToken)
	}
	return &models.Identity{ID: id, Email: claims.Email}, nil
}

func (s *AuthServiceImpl) LookupProfile(_ context.Context, userID uuid.UUID) (*models.User, error) {
	user, ok := s.profiles.UserByID(userID)
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &user, nil
}

func (s *AuthServiceImpl) ConfirmEmail(ctx context.Context, userID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"email_confirmed": true, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("confirm email: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("confirm email: account %s: %w", userID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *AuthServiceImpl) issueSession(ctx context.Context, db *gorm.DB, account models.Account) (*models.Session, error) {
	now := s.now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := accessClaims{
		UserID: account.ID.String(),
		Email:  account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh := models.RefreshToken{
		ID:        uuid.Must(uuid.NewV4()),
		AccountID: account.ID,
		Token:     uuid.Must(uuid.NewV4()),
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
		CreatedAt: now,
	}
	if err := db.WithContext(ctx).Create(&refresh).Error; err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &models.Session{
		AccessToken:  accessToken,
		RefreshToken: refresh.Token.String(),
		TokenType:    "bearer",
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
		Identity:     models.Identity{ID: account.ID, Email: account.Email},
	}, nil
}
