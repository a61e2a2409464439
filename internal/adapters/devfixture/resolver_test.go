package devfixture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/mocks"
)

func TestResolver_Fixture(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockUserResolver(ctrl)
	r := NewResolver(next)

	u, err := r.Resolve(context.Background(), &domainauth.Session{SessionID: "s", UserID: "mock-admin-1"})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "admin@test.com", u.Email)
	assert.Equal(t, domainauth.RoleAdmin, u.Role)
	assert.Contains(t, u.Permissions, domainauth.PermUsersCreate)
}

func TestResolver_UnknownFixture(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewResolver(mocks.NewMockUserResolver(ctrl))

	u, err := r.Resolve(context.Background(), &domainauth.Session{SessionID: "s", UserID: "mock-root"})
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestResolver_DelegatesOtherIDs(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockUserResolver(ctrl)
	sess := &domainauth.Session{SessionID: "s", UserID: "u-42"}
	want := &domainauth.SessionUser{ID: "u-42"}
	next.EXPECT().Resolve(gomock.Any(), sess).Return(want, nil)

	got, err := NewResolver(next).Resolve(context.Background(), sess)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolver_ExpiredSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewResolver(mocks.NewMockUserResolver(ctrl))
	past := time.Now().Add(-time.Hour).Format(time.RFC3339)

	u, err := r.Resolve(context.Background(), &domainauth.Session{SessionID: "s", UserID: "mock-admin-1", Expire: past})
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, u)
}
