package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/selection"
	"github.com/raysh454/iro/internal/tokenstore"
	"github.com/raysh454/iro/internal/webclient"
)

// Application is the global runtime state container. It holds config and
// the services shared by the CLI and the bridge server. Pass Application
// into modules that need access to the global state rather than using
// package-level variables.
type Application struct {
	Config *Config
	Logger logging.Logger

	WebClient webclient.WebClient
	Tokens    tokenstore.Store
	API       *api.Client

	Auth         *AuthService
	Images       *ImageService
	History      *HistoryService
	Orchestrator *Orchestrator
}

// NewApplication builds the transport, opens the token store at
// cfg.TokenDBPath and wires the services.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	wc, err := webclient.NewWebClient(cfg.WebClient, logger)
	if err != nil {
		return nil, fmt.Errorf("webclient: %w", err)
	}
	path, err := cfg.TokenDBPath()
	if err != nil {
		_ = wc.Close()
		return nil, err
	}
	tokens, err := tokenstore.Open(path, logger)
	if err != nil {
		_ = wc.Close()
		return nil, fmt.Errorf("token store: %w", err)
	}
	return NewApplicationWith(cfg, logger, wc, tokens), nil
}

// NewApplicationWith wires the services over an existing transport and
// token store. The Application takes ownership of both.
func NewApplicationWith(cfg *Config, logger logging.Logger, wc webclient.WebClient, tokens tokenstore.Store) *Application {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	client := api.NewClient(cfg.APIURL, wc, tokens, logger)
	images := NewImageService(client, selection.DefaultCatalog(), cfg, logger)
	hist := NewHistoryService(client, cfg, logger)
	orch := NewOrchestrator(images, hist, logger)
	orch.SetRetention(cfg.JobRetention)

	return &Application{
		Config:       cfg,
		Logger:       logger,
		WebClient:    wc,
		Tokens:       tokens,
		API:          client,
		Auth:         NewAuthService(client, logger),
		Images:       images,
		History:      hist,
		Orchestrator: orch,
	}
}

// Logout signs out and drops every piece of per-user state.
func (a *Application) Logout(ctx context.Context) error {
	err := a.Auth.Logout(ctx)
	a.Images.Reset()
	a.History.Reset()
	return err
}

// Close releases the transport and the token store.
func (a *Application) Close() error {
	if a == nil {
		return errors.New("application is nil")
	}
	var errs []error
	if a.WebClient != nil {
		errs = append(errs, a.WebClient.Close())
	}
	if a.Tokens != nil {
		errs = append(errs, a.Tokens.Close())
	}
	return errors.Join(errs...)
}
