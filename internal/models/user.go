package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// User is the public profile row of an account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account holds the credentials behind a User. Profiles and accounts share
// the same identifier.
type Account struct {
	ID             uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Email          string     `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash   string     `json:"-" gorm:"not null"`
	EmailConfirmed bool       `json:"email_confirmed" gorm:"default:false"`
	LastSignInAt   *time.Time `json:"last_sign_in_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type RefreshToken struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	AccountID uuid.UUID `json:"account_id" gorm:"type:uuid;not null;index"`
	Token     uuid.UUID `json:"token" gorm:"type:uuid;uniqueIndex;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is what a verified access token asserts.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"user"`
}
