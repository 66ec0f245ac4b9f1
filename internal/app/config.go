package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/imagefile"
	"github.com/raysh454/iro/internal/webclient"
)

// EnvPrefix prefixes every environment variable LoadConfig reads.
const EnvPrefix = "IRO_"

// Config holds the runtime options of the client. Zero values are replaced
// by DefaultConfig's.
type Config struct {
	// APIURL is the backend API root.
	APIURL string `yaml:"api_url"`

	// TokenDB is the SQLite file holding the session token. "~" expands to
	// the home directory.
	TokenDB string `yaml:"token_db"`

	LogLevel string `yaml:"log_level"`

	WebClient webclient.Config `yaml:"webclient"`

	// DeleteConcurrency bounds the parallel deletes of one image's history.
	DeleteConcurrency int `yaml:"delete_concurrency"`

	// ProgressInterval is the tick of the simulated transform progress.
	ProgressInterval time.Duration `yaml:"progress_interval"`

	// JobRetention is how long `serve` keeps finished jobs queryable.
	JobRetention time.Duration `yaml:"job_retention"`

	// PreviewSize is the thumbnail edge in pixels. Negative disables previews.
	PreviewSize int `yaml:"preview_size"`

	// Bridge server
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultProgressInterval is used when a Config carries no positive
// progress_interval.
const DefaultProgressInterval = 500 * time.Millisecond

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		APIURL:            "http://localhost:3000/api",
		TokenDB:           "~/.config/iro/session.db",
		LogLevel:          "info",
		WebClient:         webclient.DefaultConfig(),
		DeleteConcurrency: api.DefaultDeleteConcurrency,
		ProgressInterval:  DefaultProgressInterval,
		JobRetention:      DefaultJobRetention,
		PreviewSize:       imagefile.DefaultPreviewSize,
		ListenAddr:        "127.0.0.1:4300",
		AllowedOrigins:    []string{"http://localhost:4200"},
	}
}

// LoadConfig layers, lowest first: defaults, the YAML file at path, the
// dotenv file at envFile and the process environment. Empty path or envFile
// skip that layer; a missing envFile is not an error, a missing path is.
func LoadConfig(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("API_URL", &c.APIURL)
	str("TOKEN_DB", &c.TokenDB)
	str("LOG_LEVEL", &c.LogLevel)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("USER_AGENT", &c.WebClient.UserAgent)

	if v, ok := lookup("WEBCLIENT"); ok && v != "" {
		c.WebClient.Client = webclient.Client(v)
	}
	if v, ok := lookup("TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		c.WebClient.Timeout = d
	}
	for key, dst := range map[string]*time.Duration{"PROGRESS_INTERVAL": &c.ProgressInterval, "JOB_RETENTION": &c.JobRetention} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	for key, dst := range map[string]*int{"DELETE_CONCURRENCY": &c.DeleteConcurrency, "PREVIEW_SIZE": &c.PreviewSize} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup("MAX_RESPONSE_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_RESPONSE_BYTES: %w", EnvPrefix, err)
		}
		c.WebClient.MaxResponseBytes = n
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	return nil
}

// Validate checks the values LoadConfig cannot fix on its own.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_url %q must be an absolute http(s) URL", c.APIURL)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.DeleteConcurrency <= 0 {
		return fmt.Errorf("delete_concurrency must be positive, got %d", c.DeleteConcurrency)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress_interval must be positive, got %s", c.ProgressInterval)
	}
	if c.JobRetention < 0 {
		return fmt.Errorf("job_retention must not be negative, got %s", c.JobRetention)
	}
	if c.WebClient.Timeout < 0 {
		return fmt.Errorf("webclient.timeout must not be negative")
	}
	if c.WebClient.MaxResponseBytes < 0 {
		return fmt.Errorf("webclient.max_response_bytes must not be negative")
	}
	return nil
}

// TokenDBPath returns TokenDB with a leading "~" expanded.
func (c *Config) TokenDBPath() (string, error) {
	p := c.TokenDB
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
