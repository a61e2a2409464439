package devseed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	apperrors "github.com/dernekportal/portal-api/internal/errors"
)

type fakeCreator struct {
	existing map[string]bool
	fail     string
	created  []domainauth.CreateUserRequest
}

func (f *fakeCreator) Create(_ context.Context, req domainauth.CreateUserRequest) (domainauth.User, error) {
	if f.existing[req.Email] {
		return domainauth.User{}, apperrors.Conflict("email already registered")
	}
	if req.Email == f.fail {
		return domainauth.User{}, errors.New("db down")
	}
	f.created = append(f.created, req)
	return domainauth.User{Email: req.Email, Role: req.Role}, nil
}

func TestTestUsers(t *testing.T) {
	users := TestUsers()
	require.Len(t, users, 4)
	assert.Equal(t, "admin@test.com", users[0].Email)
	assert.Equal(t, domainauth.RoleAdmin, users[0].Role)
	assert.Equal(t, domainauth.RoleViewer, users[3].Role)
}

func TestRunSkipsExisting(t *testing.T) {
	f := &fakeCreator{existing: map[string]bool{"admin@test.com": true}}

	require.NoError(t, Run(context.Background(), f, nil))
	assert.Len(t, f.created, 3)
}

func TestRunReportsFailures(t *testing.T) {
	f := &fakeCreator{fail: "member@test.com"}

	err := Run(context.Background(), f, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 seed errors")
	assert.Len(t, f.created, 3)
}
