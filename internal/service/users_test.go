package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	"github.com/dernekportal/portal-api/internal/mocks"
)

func newUserService(t *testing.T) (*mocks.MockUserDirectory, *mocks.MockSessionRevoker, *UserService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockUserDirectory(ctrl)
	rev := mocks.NewMockSessionRevoker(ctrl)
	return dir, rev, NewUserService(UserServiceOptions{Users: dir, Revoker: rev})
}

func TestUserService_List_ClampsPaging(t *testing.T) {
	dir, _, svc := newUserService(t)
	dir.EXPECT().List(gomock.Any(), domainauth.ListUsersOptions{Limit: DefaultUserListLimit}).Return(nil, nil)
	dir.EXPECT().List(gomock.Any(), domainauth.ListUsersOptions{Limit: MaxUserListLimit, Offset: 0}).Return(nil, nil)

	_, err := svc.List(context.Background(), domainauth.ListUsersOptions{})
	require.NoError(t, err)
	_, err = svc.List(context.Background(), domainauth.ListUsersOptions{Limit: 5000, Offset: -3})
	require.NoError(t, err)
}

func TestUserService_Create(t *testing.T) {
	dir, _, svc := newUserService(t)
	dir.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domainauth.CreateUserRequest) (domainauth.User, error) {
			assert.Equal(t, "new@test.com", req.Email)
			assert.Empty(t, req.Password)
			require.NoError(t, VerifyPassword(req.PasswordHash, "longenough"))
			assert.Equal(t, domainauth.RoleMember, req.Role)
			return domainauth.User{ID: "u9", Email: req.Email, Role: string(req.Role), IsActive: true}, nil
		})

	u, err := svc.Create(context.Background(), domainauth.CreateUserRequest{
		Name: " New User ", Email: "NEW@test.com", Password: "longenough",
	})
	require.NoError(t, err)
	assert.Equal(t, "u9", u.ID)
}

func TestUserService_Create_Validation(t *testing.T) {
	_, _, svc := newUserService(t)
	tests := []struct {
		name string
		req  domainauth.CreateUserRequest
		want error
	}{
		{"missing name", domainauth.CreateUserRequest{Email: "a@test.com", Password: "longenough"}, domainauth.ErrEmptyName},
		{"bad email", domainauth.CreateUserRequest{Name: "A", Email: "not-an-email", Password: "longenough"}, domainauth.ErrInvalidEmail},
		{"short password", domainauth.CreateUserRequest{Name: "A", Email: "a@test.com", Password: "short"}, domainauth.ErrWeakPassword},
		{"bad role", domainauth.CreateUserRequest{Name: "A", Email: "a@test.com", Password: "longenough", Role: "OWNER"}, domainauth.ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUserService_Update_DeactivationRevokesSessions(t *testing.T) {
	dir, rev, svc := newUserService(t)
	inactive := false
	req := domainauth.UpdateUserRequest{IsActive: &inactive}

	dir.EXPECT().Update(gomock.Any(), "u1", req).Return(domainauth.User{ID: "u1"}, nil)
	rev.EXPECT().DeleteAllForUser(gomock.Any(), "u1").Return(2, nil)

	u, err := svc.Update(context.Background(), "u1", req)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestUserService_Update_RevokeFailureIsNotFatal(t *testing.T) {
	dir, rev, svc := newUserService(t)
	inactive := false
	req := domainauth.UpdateUserRequest{IsActive: &inactive}
	dir.EXPECT().Update(gomock.Any(), "u1", req).Return(domainauth.User{ID: "u1"}, nil)
	rev.EXPECT().DeleteAllForUser(gomock.Any(), "u1").Return(0, errors.New("redis down"))

	_, err := svc.Update(context.Background(), "u1", req)
	require.NoError(t, err)
}

func TestUserService_Update_RoleChangeKeepsSessions(t *testing.T) {
	dir, _, svc := newUserService(t)
	role := domainauth.RoleViewer
	req := domainauth.UpdateUserRequest{Role: &role}
	dir.EXPECT().Update(gomock.Any(), "u1", req).Return(domainauth.User{ID: "u1", Role: "VIEWER"}, nil)

	_, err := svc.Update(context.Background(), "u1", req)
	require.NoError(t, err)
}

func TestUserService_Update_Validation(t *testing.T) {
	_, _, svc := newUserService(t)
	_, err := svc.Update(context.Background(), "u1", domainauth.UpdateUserRequest{})
	assert.ErrorIs(t, err, domainauth.ErrEmptyUpdate)

	bad := domainauth.Role("ROOT")
	_, err = svc.Update(context.Background(), "u1", domainauth.UpdateUserRequest{Role: &bad})
	assert.ErrorIs(t, err, domainauth.ErrInvalidRole)
}
