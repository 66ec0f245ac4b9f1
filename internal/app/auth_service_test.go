package app_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/app"
)

func TestAuthService_Login(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.backend.AddUser("Ada", "ada@example.com", "secret")

	var loading []bool
	f.app.Auth.IsLoading.Subscribe(func(v bool) { loading = append(loading, v) })

	if err := f.app.Auth.Login(ctx, "  ada@example.com ", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if u := f.app.Auth.CurrentUser.Get(); u == nil || u.Name != "Ada" {
		t.Fatalf("unexpected user %+v", u)
	}
	if !f.app.Auth.IsAuthenticated() || !f.app.Auth.HasSession(ctx) {
		t.Error("expected an authenticated session")
	}
	if len(loading) != 2 || !loading[0] || loading[1] {
		t.Errorf("expected loading true then false, got %v", loading)
	}

	claims, err := f.app.Auth.SessionClaims(ctx)
	if err != nil || claims.Email != "ada@example.com" || claims.Name != "Ada" {
		t.Errorf("unexpected claims %+v, %v", claims, err)
	}
}

func TestAuthService_LoginRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.backend.AddUser("Ada", "ada@example.com", "secret")

	if err := f.app.Auth.Login(context.Background(), "ada@example.com", "nope"); api.KindOf(err) != api.KindAuth {
		t.Fatalf("expected an auth error, got %v", err)
	}
	if got := f.app.Auth.ErrorMessage.Get(); got != "invalid credentials" {
		t.Errorf("expected the backend message, got %q", got)
	}
	if f.app.Auth.IsAuthenticated() || f.app.Auth.HasSession(context.Background()) {
		t.Error("a failed login leaves no session")
	}
}

func TestAuthService_LoginServerDown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.backend.Fail(http.MethodPost, "/auth/login", http.StatusInternalServerError, "")

	if err := f.app.Auth.Login(context.Background(), "ada@example.com", "secret"); api.KindOf(err) != api.KindServer {
		t.Fatalf("expected a server error, got %v", err)
	}
	if f.app.Auth.ErrorMessage.Get() == "" {
		t.Error("expected a displayable error message")
	}
}

func TestAuthService_Register(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.Auth.Register(ctx, "Grace", "grace@example.com", "pw"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if u := f.app.Auth.CurrentUser.Get(); u == nil || u.Email != "grace@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := f.app.Auth.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := f.app.Auth.Register(ctx, "Grace", "grace@example.com", "pw"); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if got := f.app.Auth.ErrorMessage.Get(); got != "email already registered" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestAuthService_HasSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.backend.AddUser("Ada", "ada@example.com", "secret")

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "live jwt", token: f.backend.IssueToken("ada@example.com", time.Hour), want: true},
		{name: "expired jwt", token: f.backend.IssueToken("ada@example.com", -time.Minute), want: false},
		{name: "opaque token", token: "not-a-jwt", want: true},
	}
	for _, tt := range tests {
		if err := f.app.Tokens.Save(ctx, tt.token); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if got := f.app.Auth.HasSession(ctx); got != tt.want {
			t.Errorf("%s: HasSession = %v, want %v", tt.name, got, tt.want)
		}
	}

	if err := f.app.Tokens.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if f.app.Auth.HasSession(ctx) {
		t.Error("no token means no session")
	}
	if _, err := f.app.Auth.SessionClaims(ctx); !errors.Is(err, app.ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}
}
