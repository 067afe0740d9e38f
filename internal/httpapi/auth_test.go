package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"kasirinaja/cashdesk/internal/domain"
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

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, "123456", store)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"kasir2": {
				Username: "kasir2",
				Password: "pass1234",
				Role:     "cashier",
				Active:   false,
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, "123456", store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "kasir2", Password: "pass1234"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestParseTokenRoundTripsActor(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"cashier": {Username: "cashier", Password: "cashier123", Role: "cashier", Active: true},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, "123456", store)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "Cashier ", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != "cashier" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret", time.Hour, "123456", store)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, "654321", store)

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}

	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}

	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestEmptyManagerPINRejectsEverything(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "", nil)
	if manager.ValidateManagerPIN("") || manager.ValidateManagerPIN("123456") {
		t.Fatalf("expected no pin to validate when none is configured")
	}
}

func TestSeedUsersOnlyFillsAnEmptyStore(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, "123456", store)

	created, err := manager.SeedUsers(context.Background(), []domain.UserAccount{
		{Username: "admin", Password: "admin-secret", Role: "admin"},
		{Username: "cashier", Password: "", Role: "cashier"},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 seeded account, got %d", created)
	}
	if !strings.HasPrefix(store.users["admin"].Password, "$2") {
		t.Fatalf("expected seeded password to be hashed")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin-secret"}); err != nil {
		t.Fatalf("login with seeded admin failed: %v", err)
	}

	created, err = manager.SeedUsers(context.Background(), []domain.UserAccount{
		{Username: "other", Password: "other-secret", Role: "admin"},
	})
	if err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no accounts seeded into a non-empty store, got %d", created)
	}
}
