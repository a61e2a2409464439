package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/http/validation"
	"github.com/dernekportal/portal-api/internal/service"
)

const (
	maxNameLength  = 120
	maxLabelLength = 64
)

// UserServiceInterface defines the user administration operations used by the handlers.
type UserServiceInterface interface {
	List(ctx context.Context, opts domainauth.ListUsersOptions) ([]domainauth.User, error)
	Get(ctx context.Context, id string) (domainauth.User, error)
	Create(ctx context.Context, req domainauth.CreateUserRequest) (domainauth.User, error)
	Update(ctx context.Context, id string, req domainauth.UpdateUserRequest) (domainauth.User, error)
}

// UserHandlers serves the user administration endpoints.
type UserHandlers struct {
	Svc    UserServiceInterface
	Logger *slog.Logger
}

func (h *UserHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func roleNames() []string {
	roles := domainauth.AllRoles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.String()
	}
	return out
}

// List returns a page of users.
// GET /api/users?limit=&offset=&role=&active=&search=.
func (h *UserHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, service.DefaultUserListLimit, service.MaxUserListLimit)
	opts := domainauth.ListUsersOptions{
		Limit:  limit,
		Offset: offset,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}

	fv := validation.New()
	if raw := r.URL.Query().Get("role"); raw != "" {
		if role, ok := domainauth.ParseRole(raw); ok {
			opts.Role = &role
		} else {
			fv.Validate("role", raw, validation.OneOf("Role", roleNames()))
		}
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		fv.Validate("active", raw, validation.Bool("Active"))
		if active, err := strconv.ParseBool(raw); err == nil {
			opts.Active = &active
		}
	}
	if !fv.Valid() {
		WriteValidationErrors(w, fv.Errors())
		return
	}

	users, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "list users", "error", err)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

// Get returns one user.
// GET /api/users/{id}.
func (h *UserHandlers) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, user)
}

type createUserRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	Labels   []string `json:"labels,omitempty"`
	Avatar   *string  `json:"avatar,omitempty"`
}

func (req createUserRequest) validate() map[string]string {
	fv := validation.New().
		Validate("name", req.Name, validation.Required("Name", maxNameLength)).
		Validate("email", req.Email, validation.Email("Email"), validation.Optional("Email", maxEmailLength)).
		Validate("password", req.Password, validation.Length("Password", domainauth.MinPasswordLength, maxPasswordLength)).
		Validate("role", req.Role, validation.OneOf("Role", roleNames())).
		Each("labels", req.Labels, validation.Required("Label", maxLabelLength))
	return fv.Errors()
}

// Create provisions a password account.
// POST /api/users.
func (h *UserHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteValidationErrors(w, errs)
		return
	}

	var role domainauth.Role
	if req.Role != "" {
		role, _ = domainauth.ParseRole(req.Role)
	}
	user, err := h.Svc.Create(r.Context(), domainauth.CreateUserRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
		Labels:   req.Labels,
		Avatar:   req.Avatar,
	})
	if err != nil {
		if !errors.Is(err, domainauth.ErrEmailExists) {
			h.logger().WarnContext(r.Context(), "create user", "error", err)
		}
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	Name     *string   `json:"name,omitempty"`
	Role     *string   `json:"role,omitempty"`
	IsActive *bool     `json:"isActive,omitempty"`
	Labels   *[]string `json:"labels,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
}

// Update patches role, activation, and profile fields.
// PATCH /api/users/{id}.
func (h *UserHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	fv := validation.New()
	if req.Name != nil {
		fv.Validate("name", *req.Name, validation.Required("Name", maxNameLength))
	}
	upd := domainauth.UpdateUserRequest{IsActive: req.IsActive, Labels: req.Labels, Avatar: req.Avatar}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		upd.Name = &name
	}
	if req.Role != nil {
		fv.Validate("role", *req.Role, validation.Required("Role", maxLabelLength), validation.OneOf("Role", roleNames()))
		if role, ok := domainauth.ParseRole(*req.Role); ok {
			upd.Role = &role
		}
	}
	if req.Labels != nil {
		fv.Each("labels", *req.Labels, validation.Required("Label", maxLabelLength))
	}
	if !fv.Valid() {
		WriteValidationErrors(w, fv.Errors())
		return
	}

	user, err := h.Svc.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if actor := UserFromContext(r.Context()); actor != nil {
		h.logger().InfoContext(r.Context(), "user updated", "user_id", user.ID, "actor_id", actor.ID)
	}
	WriteSuccess(w, http.StatusOK, user)
}
