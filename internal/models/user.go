package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleUser is the default role assigned to new profiles.
const RoleUser = "user"

// UserProfile is an account plus its display profile. The ID doubles as
// the auth subject; listings reference it as user_id.
type UserProfile struct {
	ID           uuid.UUID `bson:"_id,omitempty" json:"id,omitempty"`
	Email        string    `bson:"email" json:"email"`
	FullName     string    `bson:"full_name" json:"full_name"`
	Role         string    `bson:"role" json:"role"`
	PasswordHash string    `bson:"password" json:"-"` // Store hash, not plaintext
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// AuthUser is the authenticated-user view exposed to the rest of the
// application: identity and display fields only, no credentials.
type AuthUser struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}

// Session is an issued authentication token plus the user it belongs to.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      AuthUser  `json:"user"`
}
