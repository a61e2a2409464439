package httpx

import (
	"context"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

type (
	subjectKey   struct{}
	requestIDKey struct{}
)

// SetRequestIDInContext stores the correlation id set by RequestID.
func SetRequestIDInContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id, or "" outside RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// SetSubjectInContext returns a child context that carries the authorized subject.
// If subject is nil, the original ctx is returned unchanged.
func SetSubjectInContext(ctx context.Context, subject *domainauth.Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject stored by RequirePermission.
func SubjectFromContext(ctx context.Context) (*domainauth.Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(*domainauth.Subject)
	return s, ok && s != nil
}

// UserFromContext returns the authorized user, or nil.
func UserFromContext(ctx context.Context) *domainauth.SessionUser {
	if s, ok := SubjectFromContext(ctx); ok {
		return s.User
	}
	return nil
}
