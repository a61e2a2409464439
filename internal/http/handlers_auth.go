package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/http/validation"
	"github.com/dernekportal/portal-api/internal/service"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookie     = "post_login_redirect"
	rememberMeCookie    = "oauth_remember"
	maxEmailLength      = 254
	maxPasswordLength   = 128
	credentialsRejected = "invalid email or password"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Logout(ctx context.Context, session *domainauth.Session) error
	CheckSession(raw string) (*domainauth.Session, error)
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, in service.CompleteLoginInput) (*service.LoginResult, error)
	SSOEnabled() bool
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies CookieConfig
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) cookies() CookieConfig { return h.Cookies.withDefaults() }

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (req loginRequest) validate() map[string]string {
	fv := validation.New().
		Validate("email", req.Email, validation.Email("Email"), validation.Optional("Email", maxEmailLength)).
		Validate("password", req.Password, validation.Length("Password", 1, maxPasswordLength))
	return fv.Errors()
}

type sessionView struct {
	SessionID string `json:"sessionId"`
	Expire    string `json:"expire,omitempty"`
}

type loginResponse struct {
	User    *domainauth.SessionUser `json:"user"`
	Session sessionView             `json:"session"`
}

// Login handles password login.
// POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteValidationErrors(w, errs)
		return
	}

	result, err := h.Svc.Login(r.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		h.writeLoginError(w, r, err)
		return
	}
	if !h.writeSessionCookies(w, r, result) {
		return
	}
	WriteSuccess(w, http.StatusOK, loginResponse{
		User:    result.User,
		Session: sessionView{SessionID: result.Session.SessionID, Expire: result.Session.Expire},
	})
}

func (h *AuthHandlers) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAccountInactive):
		WriteAuthError(w, domainauth.Unauthorized(credentialsRejected))
	case errors.Is(err, service.ErrUpstreamThrottled):
		WriteError(w, ErrorParams{Code: http.StatusTooManyRequests, ErrCode: CodeRateLimited, Err: errTooManyRequests})
	default:
		h.logger().ErrorContext(r.Context(), "login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
	}
}

// writeSessionCookies sets the session and CSRF cookies. It reports false after writing a
// 500 when the session cannot be encoded.
func (h *AuthHandlers) writeSessionCookies(w http.ResponseWriter, r *http.Request, result *service.LoginResult) bool {
	value, err := domainauth.EncodeSession(result.Session)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "encode session", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
		return false
	}
	c := h.cookies()
	c.setSession(w, r, value, result.MaxAge)
	c.setCSRF(w, r, result.CSRFToken)
	return true
}

// Logout deletes the remote session when possible and always clears every auth cookie.
// POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	c := h.cookies()
	if session := domainauth.DecodeSession(c.sessionValue(r)); session != nil {
		if err := h.Svc.Logout(r.Context(), session); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	c.clearAll(w, r)
	WriteJSON(w, http.StatusOK, Envelope{Success: true})
}

type sessionStatus struct {
	UserID    string `json:"userId"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// Session reports the cookie's session without touching any store.
// GET /api/auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	c := h.cookies()
	session, err := h.Svc.CheckSession(c.sessionValue(r))
	switch {
	case errors.Is(err, service.ErrNoSession):
		WriteAuthError(w, domainauth.Unauthorized("no active session"))
	case errors.Is(err, service.ErrInvalidSession):
		WriteAuthError(w, domainauth.Unauthorized("invalid session"))
	case errors.Is(err, service.ErrSessionExpired):
		c.clearSession(w, r)
		WriteAuthError(w, domainauth.Unauthorized("session expired"))
	case err != nil:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
	default:
		WriteSuccess(w, http.StatusOK, sessionStatus{UserID: session.UserID, ExpiresAt: session.Expire})
	}
}

// Me returns the caller resolved by the guard.
// GET /api/auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		WriteAuthError(w, domainauth.Unauthorized(domainauth.MsgNoSession))
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{"user": user})
}

// SSOLogin starts the single sign-on flow.
// GET /api/auth/sso/login?redirect_uri=<optional_redirect>&rememberMe=true.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.SSOEnabled() {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: CodeNotFound, Err: service.ErrSSODisabled})
		return
	}
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin sso login", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
		return
	}

	c := h.cookies()
	c.setShortLived(w, r, oauthStateCookie, result.State)
	c.setShortLived(w, r, oauthNonceCookie, result.Nonce)
	c.setShortLived(w, r, postLoginCookie, redirectURI)
	if strings.EqualFold(r.URL.Query().Get("rememberMe"), "true") {
		c.setShortLived(w, r, rememberMeCookie, "1")
	}
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// SSOCallback completes the flow and sets the same cookies as password login.
// GET /api/auth/sso/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.SSOEnabled() {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: CodeNotFound, Err: service.ErrSSODisabled})
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: CodeBadRequest,
			Err:     errors.New("code and state parameters are required"),
		})
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeBadRequest, Err: errors.New("invalid or missing state parameter")})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeBadRequest, Err: errors.New("missing nonce parameter")})
		return
	}
	_, rememberErr := r.Cookie(rememberMeCookie)

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:       code,
		State:      state,
		Nonce:      nonceCookie.Value,
		RememberMe: rememberErr == nil,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "sso login failed", "error", err)
		if errors.Is(err, service.ErrAccountInactive) {
			WriteAuthError(w, domainauth.Unauthorized(credentialsRejected))
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
		return
	}
	if !h.writeSessionCookies(w, r, result) {
		return
	}

	c := h.cookies()
	redirectURI := "/"
	if ck, err := r.Cookie(postLoginCookie); err == nil {
		redirectURI = safeRedirectPath(ck.Value)
	}
	for _, name := range []string{oauthStateCookie, oauthNonceCookie, postLoginCookie, rememberMeCookie} {
		c.clear(w, r, name, true, http.SameSiteLaxMode)
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
