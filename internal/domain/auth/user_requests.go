package auth

import (
	"errors"
	"net/mail"
	"strings"
)

// Request validation errors.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidRole  = errors.New("invalid role")
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	ErrEmptyName    = errors.New("name is required")
	ErrEmptyUpdate  = errors.New("no fields to update")
)

// MinPasswordLength applies to passwords set through the admin surface.
const MinPasswordLength = 8

// CreateUserRequest provisions a password account.
type CreateUserRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     Role     `json:"role"`
	Labels   []string `json:"labels,omitempty"`
	Avatar   *string  `json:"avatar,omitempty"`

	// PasswordHash is filled by the service; callers leave it empty.
	PasswordHash string `json:"-"`
}

// Normalize trims fields, lowercases the email and defaults the role.
func (r *CreateUserRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	if r.Role == "" {
		r.Role = DefaultRole
	}
}

// Validate checks a normalized request.
func (r *CreateUserRequest) Validate() error {
	if r.Name == "" {
		return ErrEmptyName
	}
	if !ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	if len(r.Password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if !r.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// UpdateUserRequest patches a user. Nil fields are left untouched.
type UpdateUserRequest struct {
	Name     *string   `json:"name,omitempty"`
	Role     *Role     `json:"role,omitempty"`
	IsActive *bool     `json:"isActive,omitempty"`
	Labels   *[]string `json:"labels,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
}

// HasUpdates reports whether any field is set.
func (r *UpdateUserRequest) HasUpdates() bool {
	return r.Name != nil || r.Role != nil || r.IsActive != nil || r.Labels != nil || r.Avatar != nil
}

// Validate checks the set fields.
func (r *UpdateUserRequest) Validate() error {
	if !r.HasUpdates() {
		return ErrEmptyUpdate
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return ErrEmptyName
	}
	if r.Role != nil && !r.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// UpsertUserRequest provisions or refreshes an SSO user keyed by email.
type UpsertUserRequest struct {
	Email  string
	Name   string
	Role   Role
	Labels []string
	// SyncRole overwrites the stored role of an existing user.
	SyncRole bool
}

// ListUsersOptions filters and pages user listings.
type ListUsersOptions struct {
	Limit  int
	Offset int
	Role   *Role
	Active *bool
	Search string
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s is a bare address.
func ValidEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// MaskEmail keeps the first three characters for logs.
func MaskEmail(s string) string {
	if len(s) <= 3 {
		return "***"
	}
	return s[:3] + "***"
}
