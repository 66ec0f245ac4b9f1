package server

import (
	"github.com/raysh454/iro/internal/app"
	"github.com/raysh454/iro/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address of the bridge API.
	ListenAddr string

	// AllowedOrigins feeds CORS and the WebSocket origin check. "*" allows any.
	AllowedOrigins []string

	// App holds the services the routes expose. Required.
	App *app.Application

	Logger logging.Logger
}
