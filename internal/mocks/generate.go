// Package mocks provides gomock implementations of the auth ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	accounts := mocks.NewMockAccountService(ctrl)
//	accounts.EXPECT().DeleteSession(gomock.Any(), "s1").Return(nil)
package mocks

// Generate mocks for the account, resolver and user store ports from internal/ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/dernekportal/portal-api/internal/ports AccountService,UserResolver,UserStore,UserDirectory,SessionRevoker
