package auth

// Package auth contains domain-level types for sessions, roles, and permissions.
// It is pure and free of framework/adapter concerns.

import "time"

// Identity represents the authenticated principal returned by an SSO IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	Subject   string // stable IdP identifier (e.g., samAccountName or sub)
	FirstName string
	LastName  string
	Email     string
	Groups    []string
	ExpiresAt time.Time
}

// Name joins the identity's given and family names.
func (i Identity) Name() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	default:
		return i.FirstName + " " + i.LastName
	}
}

// User is the stored account record. Only Role is authoritative for authorization;
// Labels are carried for display and provisioning.
type User struct {
	ID           string     `json:"id"             db:"id"`
	Name         string     `json:"name"           db:"name"`
	Email        string     `json:"email"          db:"email"`
	Role         string     `json:"role"           db:"role"`
	Avatar       *string    `json:"avatar,omitempty" db:"avatar"`
	IsActive     bool       `json:"isActive"       db:"is_active"`
	Labels       []string   `json:"labels"         db:"labels"`
	PasswordHash string     `json:"-"              db:"password_hash"`
	CreatedAt    time.Time  `json:"createdAt"      db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt"      db:"updated_at"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}

// SessionUser is the authorization subject derived from a User on every request.
// Permissions are always exactly PermissionsFor(Role).
type SessionUser struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	IsActive    bool         `json:"isActive"`
	Labels      []string     `json:"labels"`
}

// HasPermission reports whether the subject carries perm.
func (u *SessionUser) HasPermission(perm Permission) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Subject is the outcome of a successful authorization check.
type Subject struct {
	Session *Session
	User    *SessionUser
}

// RemoteSession is a session record held by the account store.
// Secret authenticates follow-up account calls and never leaves the server except in the
// HttpOnly session cookie.
type RemoteSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cookie converts the remote session into the record carried by the session cookie.
func (s RemoteSession) Cookie() Session {
	out := Session{SessionID: s.ID, UserID: s.UserID, Secret: s.Secret}
	if !s.ExpiresAt.IsZero() {
		out.Expire = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out
}
