package webclient

import "time"

type Client string

const (
	ClientNetHTTP Client = "nethttp"
)

// DefaultMaxResponseBytes caps a response body. Batch archives are the
// largest payloads the backend sends.
const DefaultMaxResponseBytes int64 = 256 << 20

// Config selects and tunes a WebClient backend. It is filled from app.Config.
type Config struct {
	Client Client `yaml:"client"`
	// Timeout bounds a whole request. Zero leaves the transport default,
	// which never times out.
	Timeout time.Duration `yaml:"timeout"`
	// UserAgent is sent when a request carries none.
	UserAgent string `yaml:"user_agent"`
	// MaxResponseBytes rejects larger bodies. Zero means no limit.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

func DefaultConfig() Config {
	return Config{
		Client:           ClientNetHTTP,
		UserAgent:        "iro",
		MaxResponseBytes: DefaultMaxResponseBytes,
	}
}
