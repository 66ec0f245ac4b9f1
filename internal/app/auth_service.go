package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/signal"
	"github.com/raysh454/iro/internal/tokenstore"
)

// ErrNotLoggedIn is returned by SessionClaims when no token is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// SessionClaims are the claims read from a stored token. The signature is
// not verified; the backend remains the authority on validity.
type SessionClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthService tracks the signed-in user.
type AuthService struct {
	api    *api.Client
	tokens tokenstore.Store
	logger logging.Logger
	now    func() time.Time

	CurrentUser  *signal.Value[*model.User]
	IsLoading    *signal.Value[bool]
	ErrorMessage *signal.Value[string]
}

func NewAuthService(client *api.Client, logger logging.Logger) *AuthService {
	return &AuthService{
		api:          client,
		tokens:       client.Tokens(),
		logger:       logger.With(logging.Field{Key: "component", Value: "auth"}),
		now:          time.Now,
		CurrentUser:  signal.New[*model.User](nil),
		IsLoading:    signal.New(false),
		ErrorMessage: signal.New(""),
	}
}

// Login signs in. On failure ErrorMessage holds a displayable reason.
func (s *AuthService) Login(ctx context.Context, email, password string) error {
	return s.authenticate(func() (*model.AuthResponse, error) {
		return s.api.Login(ctx, model.LoginRequest{Email: strings.TrimSpace(email), Password: password})
	})
}

// Register creates an account and signs in with it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) error {
	return s.authenticate(func() (*model.AuthResponse, error) {
		return s.api.Register(ctx, model.RegisterRequest{
			Name:     strings.TrimSpace(name),
			Email:    strings.TrimSpace(email),
			Password: password,
		})
	})
}

func (s *AuthService) authenticate(fn func() (*model.AuthResponse, error)) error {
	s.IsLoading.Set(true)
	s.ErrorMessage.Set("")
	defer s.IsLoading.Set(false)

	resp, err := fn()
	if err != nil {
		s.logger.Warn("authentication failed", logging.Field{Key: "error", Value: err})
		s.ErrorMessage.Set(api.UserMessage(err))
		return err
	}
	s.CurrentUser.Set(resp.User)
	return nil
}

// Logout clears the stored token and the current user.
func (s *AuthService) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	s.CurrentUser.Set(nil)
	s.ErrorMessage.Set("")
	return err
}

// IsAuthenticated reports whether a user signed in during this process.
func (s *AuthService) IsAuthenticated() bool {
	return s.CurrentUser.Get() != nil
}

// HasSession reports whether a stored token exists and has not expired.
// Tokens that are not JWTs, or carry no expiry, count as live.
func (s *AuthService) HasSession(ctx context.Context) bool {
	claims, err := s.SessionClaims(ctx)
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return false
	case err != nil:
		s.logger.Debug("stored token is opaque", logging.Field{Key: "error", Value: err})
		return true
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(s.now()) {
		return false
	}
	return true
}

// SessionClaims decodes the stored token without verifying it.
func (s *AuthService) SessionClaims(ctx context.Context) (*SessionClaims, error) {
	if s.tokens == nil {
		return nil, ErrNotLoggedIn
	}
	token, err := s.tokens.Load(ctx)
	if errors.Is(err, tokenstore.ErrNoToken) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}

	var claims SessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}
