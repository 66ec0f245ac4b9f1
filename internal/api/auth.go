package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
)

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	return c.authenticate(ctx, "login", "/auth/login", req)
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	return c.authenticate(ctx, "register", "/auth/register", req)
}

func (c *Client) authenticate(ctx context.Context, op, path string, in any) (*model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.doJSON(ctx, call{op: op, method: http.MethodPost, path: path, rejectKind: KindAuth}, in, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success || out.Token == "" {
		return nil, &Error{Kind: KindAuth, Op: op, Message: out.Message}
	}
	if c.tokens != nil {
		if err := c.tokens.Save(ctx, out.Token); err != nil {
			return nil, fmt.Errorf("%s: store token: %w", op, err)
		}
	}
	fields := []logging.Field{{Key: "op", Value: op}}
	if out.User != nil {
		fields = append(fields, logging.Field{Key: "user_id", Value: out.User.ID})
	}
	c.logger.Info("authenticated", fields...)
	return &out, nil
}

// Logout forgets the stored token. The backend keeps no session to end.
func (c *Client) Logout(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	if err := c.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.logger.Info("logged out")
	return nil
}
