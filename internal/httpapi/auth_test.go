package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lumipos/backend/internal/domain"
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

func hashedUser(t *testing.T, username, password, role string, active bool) domain.UserAccount {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: "admin", Active: true},
		},
	}

	auth := NewAuthManager("test-secret", time.Hour, store)

	store.mu.Lock()
	stored := store.users["admin"].Password
	updates := store.updates
	store.mu.Unlock()

	if updates != 1 {
		t.Fatalf("expected one password upgrade write, got %d", updates)
	}
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected stored password upgraded to bcrypt, got %q", stored)
	}

	// The plain password still logs in against the upgraded hash.
	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}
}

func TestAuthManagerLogin(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"cashier":  hashedUser(t, "cashier", "secret-pass", "cashier", true),
			"inactive": hashedUser(t, "inactive", "secret-pass", "cashier", false),
		},
	}
	auth := NewAuthManager("test-secret", time.Hour, store)

	resp, err := auth.Login(domain.LoginRequest{Username: " Cashier ", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "cashier" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "cashier", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "inactive", Password: "secret-pass"}); err == nil {
		t.Fatalf("expected inactive account to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "secret-pass"}); err == nil {
		t.Fatalf("expected unknown account to fail")
	}
}

func TestCreateCashier(t *testing.T) {
	store := &userStoreStub{}
	auth := NewAuthManager("test-secret", time.Hour, store)

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "abc", Password: "longenough"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "newcashier", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	created, err := auth.CreateCashier(domain.CashierCreateRequest{Username: " NewCashier ", Password: "s3cret-pw"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Username != "newcashier" || created.Role != "cashier" {
		t.Fatalf("unexpected cashier: %+v", created)
	}

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "newcashier", Password: "s3cret-pw"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	store.mu.Lock()
	persisted := store.users["newcashier"].Password
	store.mu.Unlock()
	if !strings.HasPrefix(persisted, "$2") {
		t.Fatalf("expected persisted bcrypt hash, got %q", persisted)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "newcashier", Password: "s3cret-pw"}); err != nil {
		t.Fatalf("new cashier login failed: %v", err)
	}

	cashiers := auth.ListCashiers()
	if len(cashiers) != 1 || cashiers[0].Username != "newcashier" {
		t.Fatalf("unexpected cashier list: %+v", cashiers)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"cashier": hashedUser(t, "cashier", "secret-pass", "cashier", true),
		},
	}
	auth := NewAuthManager("test-secret", time.Hour, store)

	resp, err := auth.Login(domain.LoginRequest{Username: "cashier", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != "cashier" {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}

	// A token signed with a different secret must be rejected.
	other := NewAuthManager("another-secret", time.Hour, store)
	foreign, err := other.Login(domain.LoginRequest{Username: "cashier", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := auth.ParseToken(foreign.AccessToken); err == nil {
		t.Fatalf("expected cross-secret token to fail")
	}
}
