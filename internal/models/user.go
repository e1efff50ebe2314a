package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWT claims issued by the identity provider. UserID is the opaque UID.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type SessionInfo struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id,omitempty"`
	Authenticated bool     `json:"authenticated"`
	CartMode      CartMode `json:"cart_mode"`
	Currency      string   `json:"currency"`
	Language      string   `json:"language"`
}

type Preferences struct {
	Currency string `json:"currency" validate:"omitempty,len=3"`
	Language string `json:"language" validate:"omitempty,max=8"`
}
