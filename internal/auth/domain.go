package auth

import "time"

// Identity is an account that can authenticate and hold group memberships.
type Identity struct {
	ID               int64
	Username         string
	Email            *string
	PasswordHash     string
	Role             string
	RefreshToken     *string
	RefreshExpiresAt *time.Time
	Groups           []string
}

// GetID implements shared.Principal.
func (i *Identity) GetID() int64 { return i.ID }

// GetUsername implements shared.Principal.
func (i *Identity) GetUsername() string { return i.Username }

// GetRole implements shared.Principal.
func (i *Identity) GetRole() string { return i.Role }

// Group is a named collection of identities and the unit of permission grants.
type Group struct {
	ID   int64
	Name string
}

// NewIdentity carries the fields persisted at registration.
type NewIdentity struct {
	Username     string
	Email        *string
	PasswordHash string
	Role         string
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Username string   `json:"username" validate:"required,min=3,max=50"`
	Password string   `json:"password" validate:"required,min=6,max=72"`
	Email    *string  `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Groups   []string `json:"groups" validate:"omitempty,max=50,dive,required,max=50"`
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
