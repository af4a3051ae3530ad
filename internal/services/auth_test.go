package services_test

import (
	"context"
	"testing"
	"time"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/store"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.Account{}, &models.RefreshToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testAuthConfig() services.AuthConfig {
	return services.AuthConfig{
		JWTSecret:       "test-secret",
		Issuer:          "taskflow",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
	}
}

type AuthServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	provider *services.TaskProvider
	service  *services.AuthServiceImpl
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.db = openTestDB(s.T())
	s.provider = newProvider(s.T(), store.NewMemoryBackend(), newClock())
	s.service = services.NewAuthService(s.db, s.provider, testAuthConfig(), nil)
}

func (s *AuthServiceTestSuite) TestSignUpIssuesSession() {
	session, err := s.service.SignUp(context.Background(), " Ada@Example.com ", "secret123")
	s.Require().NoError(err)

	s.Equal("ada@example.com", session.Identity.Email)
	s.Equal("bearer", session.TokenType)
	s.Equal(int64(3600), session.ExpiresIn)
	s.NotEmpty(session.AccessToken)
	s.NotEmpty(session.RefreshToken)

	var account models.Account
	s.Require().NoError(s.db.First(&account, "id = ?", session.Identity.ID).Error)
	s.False(account.EmailConfirmed)
	s.NotEqual("secret123", account.PasswordHash)

	identity, err := s.service.VerifyAccessToken(session.AccessToken)
	s.Require().NoError(err)
	s.Equal(session.Identity, *identity)
}

func (s *AuthServiceTestSuite) TestSignUpRejectsDuplicatesAndWeakInput() {
	_, err := s.service.SignUp(context.Background(), "ada@example.com", "secret123")
	s.Require().NoError(err)

	_, err = s.service.SignUp(context.Background(), "ADA@example.com", "another1")
	s.ErrorIs(err, services.ErrEmailTaken)

	_, err = s.service.SignUp(context.Background(), "not-an-email", "secret123")
	s.ErrorIs(err, services.ErrInvalidCredentials)

	_, err = s.service.SignUp(context.Background(), "bob@example.com", "123")
	s.ErrorIs(err, services.ErrInvalidCredentials)
}

func (s *AuthServiceTestSuite) TestSignIn() {
	_, err := s.service.SignUp(context.Background(), "ada@example.com", "secret123")
	s.Require().NoError(err)

	session, err := s.service.SignIn(context.Background(), "ada@example.com", "secret123")
	s.Require().NoError(err)
	s.NotEmpty(session.AccessToken)

	_, err = s.service.SignIn(context.Background(), "ada@example.com", "wrong-password")
	s.ErrorIs(err, services.ErrInvalidCredentials)

	_, err = s.service.SignIn(context.Background(), "nobody@example.com", "secret123")
	s.ErrorIs(err, services.ErrInvalidCredentials)
}

func (s *AuthServiceTestSuite) TestRefreshRotatesToken() {
	session, err := s.service.SignUp(context.Background(), "ada@example.com", "secret123")
	s.Require().NoError(err)

	refreshed, err := s.service.Refresh(context.Background(), session.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(session.RefreshToken, refreshed.RefreshToken)
	s.Equal(session.Identity, refreshed.Identity)

	_, err = s.service.Refresh(context.Background(), session.RefreshToken)
	s.ErrorIs(err, services.ErrInvalidToken)

	_, err = s.service.Refresh(context.Background(), "not-a-uuid")
	s.ErrorIs(err, services.ErrInvalidToken)
}

func (s *AuthServiceTestSuite) TestSignOutRevokes() {
	session, err := s.service.SignUp(context.Background(), "ada@example.com", "secret123")
	s.Require().NoError(err)

	s.Require().NoError(s.service.SignOut(context.Background(), session.RefreshToken))
	_, err = s.service.Refresh(context.Background(), session.RefreshToken)
	s.ErrorIs(err, services.ErrInvalidToken)

	s.NoError(s.service.SignOut(context.Background(), uuid.Must(uuid.NewV4()).String()))
	s.ErrorIs(s.service.SignOut(context.Background(), "garbage"), services.ErrInvalidToken)
}

func (s *AuthServiceTestSuite) TestVerifyAccessTokenRejectsForgedTokens() {
	claims := jwt.MapClaims{
		"user_id": uuid.Must(uuid.NewV4()).String(),
		"iss":     "taskflow",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	s.Require().NoError(err)

	_, err = s.service.VerifyAccessToken(forged)
	s.ErrorIs(err, services.ErrInvalidToken)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uuid.Must(uuid.NewV4()).String(),
		"iss":     "taskflow",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	s.Require().NoError(err)

	_, err = s.service.VerifyAccessToken(expired)
	s.ErrorIs(err, services.ErrInvalidToken)

	_, err = s.service.VerifyAccessToken("")
	s.ErrorIs(err, services.ErrInvalidToken)
}

func (s *AuthServiceTestSuite) TestLookupProfileAndConfirmEmail() {
	session, err := s.service.SignUp(context.Background(), "ada@example.com", "secret123")
	s.Require().NoError(err)
	id := session.Identity.ID

	_, err = s.service.LookupProfile(context.Background(), id)
	s.ErrorIs(err, services.ErrProfileNotFound)

	_, err = s.provider.UpsertUser(context.Background(), models.User{ID: id, Name: "Ada", Email: "ada@example.com"})
	s.Require().NoError(err)

	profile, err := s.service.LookupProfile(context.Background(), id)
	s.Require().NoError(err)
	s.Equal("Ada", profile.Name)

	s.Require().NoError(s.service.ConfirmEmail(context.Background(), id))
	var account models.Account
	s.Require().NoError(s.db.First(&account, "id = ?", id).Error)
	s.True(account.EmailConfirmed)

	s.Error(s.service.ConfirmEmail(context.Background(), uuid.Must(uuid.NewV4())))
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
