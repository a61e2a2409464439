package data

import (
	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

// Repository sentinels. They alias the domain errors so callers can match either.
var (
	ErrUserNotFound    = domainauth.ErrUserNotFound
	ErrUserEmailExists = domainauth.ErrEmailExists
)
