package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	apperrors "github.com/dernekportal/portal-api/internal/errors"
)

// Error codes written to the envelope's code field.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidJSON  = "INVALID_JSON"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeBadRequest   = "BAD_REQUEST"
	maxJSONBodyBytes = 1 << 20
)

// Envelope is the response shape of every JSON endpoint.
type Envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeInvalidJSON, Err: errors.New("invalid request body")})
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// WriteSuccess writes {success:true, data}.
func WriteSuccess(w http.ResponseWriter, code int, data any) {
	WriteJSON(w, code, Envelope{Success: true, Data: data})
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes {success:false, error, code}. Messages of 5xx errors are replaced so
// internals never reach the client.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := "internal server error"
	if p.Err != nil && (p.Code < http.StatusInternalServerError || p.Code == http.StatusServiceUnavailable) {
		msg = p.Err.Error()
	}
	WriteJSON(w, p.Code, Envelope{Success: false, Error: msg, Code: p.ErrCode})
}

// WriteValidationErrors writes a 400 with per-field messages.
func WriteValidationErrors(w http.ResponseWriter, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, Envelope{
		Success: false,
		Error:   "validation failed",
		Code:    CodeValidation,
		Errors:  fields,
	})
}

// WriteAuthError writes a guard or CSRF rejection.
func WriteAuthError(w http.ResponseWriter, ae *domainauth.AuthError) {
	WriteJSON(w, ae.Status(), Envelope{Success: false, Error: ae.Message, Code: string(ae.Kind)})
}

// WriteServiceError maps store and domain errors to statuses.
func WriteServiceError(w http.ResponseWriter, err error) {
	var ae *domainauth.AuthError
	switch {
	case errors.As(err, &ae):
		WriteAuthError(w, ae)
	case errors.Is(err, domainauth.ErrUserNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: CodeNotFound, Err: domainauth.ErrUserNotFound})
	case errors.Is(err, domainauth.ErrEmailExists):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: CodeConflict, Err: domainauth.ErrEmailExists})
	case isDomainValidation(err):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeValidation, Err: err})
	default:
		if appErr, ok := apperrors.As(err); ok {
			WriteError(w, ErrorParams{Code: appErr.Status(), ErrCode: appErr.APICode(), Err: errors.New(appErr.Message)})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
	}
}

func isDomainValidation(err error) bool {
	for _, target := range []error{
		domainauth.ErrInvalidEmail,
		domainauth.ErrInvalidRole,
		domainauth.ErrWeakPassword,
		domainauth.ErrEmptyName,
		domainauth.ErrEmptyUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
