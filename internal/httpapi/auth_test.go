package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return domain.Conflict("create user", "username %s already exists", user.Username)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func newTestAuth(t *testing.T, store *userStoreStub) *AuthManager {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewAuthManager(testSecret, time.Hour, store, logger)
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"manager": {Username: "manager", Password: "manager123", Role: domain.RoleManager, Active: true, CreatedAt: time.Now().UTC()},
		},
	}
	auth := newTestAuth(t, store)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "manager", Password: "manager123"})
	require.NoError(t, err)

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, strings.HasPrefix(users[0].Password, "$2"), "expected bcrypt hash, got %s", users[0].Password)
	assert.GreaterOrEqual(t, store.updates, 1)
}

func TestTokenCarriesActor(t *testing.T) {
	store := &userStoreStub{}
	auth := newTestAuth(t, store)
	_, err := auth.CreateUser(context.Background(), domain.CreateUserRequest{Username: "anna", Password: "pass1234", Role: domain.RoleManager})
	require.NoError(t, err)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ANNA ", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, resp.Role)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "anna", Role: domain.RoleManager}, actor)

	other := NewAuthManager("another-secret-another-secret-xx", time.Hour, store, nil)
	_, err = other.ParseToken(resp.AccessToken)
	assert.Error(t, err)
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	hash, err := hashPassword("pass1234")
	require.NoError(t, err)
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"gone": {Username: "gone", Password: hash, Role: domain.RoleSeller, Active: false},
		},
	}
	auth := newTestAuth(t, store)

	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "pass1234"})
	assert.EqualError(t, err, "account is inactive")

	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "wrong"})
	assert.ErrorIs(t, err, errInvalidCredentials)
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{}
	auth := newTestAuth(t, store)

	user, err := auth.CreateUser(context.Background(), domain.CreateUserRequest{Username: "Seller2", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, "seller2", user.Username)
	assert.Equal(t, domain.RoleSeller, user.Role)
	assert.Empty(t, user.Password)

	saved := store.users["seller2"]
	assert.NotEqual(t, "pass1234", saved.Password)
	assert.True(t, strings.HasPrefix(saved.Password, "$2"))
}

func TestCreateUserValidation(t *testing.T) {
	auth := newTestAuth(t, &userStoreStub{})
	cases := map[string]domain.CreateUserRequest{
		"short username": {Username: "abc", Password: "pass1234"},
		"spaces":         {Username: "new seller", Password: "pass1234"},
		"short password": {Username: "seller9", Password: "123"},
		"unknown role":   {Username: "seller9", Password: "pass1234", Role: "owner"},
	}
	for name, req := range cases {
		_, err := auth.CreateUser(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	store := &userStoreStub{}
	auth := newTestAuth(t, store)
	req := domain.CreateUserRequest{Username: "manager", Password: "manager123", Role: domain.RoleManager}

	require.NoError(t, auth.EnsureUser(context.Background(), req))
	require.NoError(t, auth.EnsureUser(context.Background(), req))
	assert.Len(t, store.users, 1)
}
