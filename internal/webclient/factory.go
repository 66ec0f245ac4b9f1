package webclient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/raysh454/iro/internal/logging"
)

// ErrUnknownBackend is returned by NewWebClient for an unregistered name.
var ErrUnknownBackend = errors.New("webclient: unknown backend")

// Constructor builds a backend from cfg.
type Constructor func(cfg Config, logger logging.Logger) (WebClient, error)

var backends = struct {
	sync.RWMutex
	byName map[string]Constructor
}{
	byName: map[string]Constructor{
		string(ClientNetHTTP): func(cfg Config, logger logging.Logger) (WebClient, error) {
			return NewNetHTTPClient(cfg, logger, nil)
		},
	},
}

func backendName(c Client) string {
	name := strings.ToLower(strings.TrimSpace(string(c)))
	if name == "" {
		return string(ClientNetHTTP)
	}
	return name
}

// Register adds or replaces a named backend. Tests use it to swap the
// transport under app.NewApplication.
func Register(name Client, ctor Constructor) error {
	if strings.TrimSpace(string(name)) == "" || ctor == nil {
		return errors.New("webclient: backend needs a name and a constructor")
	}
	backends.Lock()
	backends.byName[backendName(name)] = ctor
	backends.Unlock()
	return nil
}

// NewWebClient builds the backend named by cfg.Client, nethttp when empty.
func NewWebClient(cfg Config, logger logging.Logger) (WebClient, error) {
	name := backendName(cfg.Client)
	backends.RLock()
	ctor, ok := backends.byName[name]
	backends.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("webclient %s: %w", name, err)
	}
	if wc == nil {
		return nil, fmt.Errorf("webclient %s: constructor returned no client", name)
	}
	return wc, nil
}

// Backends lists registered backend names in order.
func Backends() []string {
	backends.RLock()
	defer backends.RUnlock()
	out := make([]string, 0, len(backends.byName))
	for name := range backends.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
