// Package renewer asks a home router for a fresh public IP address.
package renewer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/rs/zerolog"
)

var ErrUnknownRenewer = errors.New("renewer: unknown renewer")

// Renewer triggers an IP renewal on one router. Init runs once before the
// server starts accepting requests.
type Renewer interface {
	Init(ctx context.Context) error
	RenewIP(ctx context.Context) error
}

// Factory builds a renewer from its [server.renewer.<name>] table.
type Factory func(cfg config.Backend, logger zerolog.Logger) (Renewer, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = f
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the renewer named by cfg. It does not call Init.
func New(cfg config.Backend, logger zerolog.Logger) (Renewer, error) {
	mu.RLock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(cfg.Name))]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q, must be one of %s", ErrUnknownRenewer, cfg.Name, strings.Join(Names(), ", "))
	}
	return f(cfg, logger.With().Str("component", "renewer."+cfg.Name).Logger())
}

func init() {
	Register("dummy", newDummy)
	Register("dlink", newDLinkFromConfig)
	Register("fritzbox", newFritzBoxFromConfig)
	Register("fritzbox_local", newFritzBoxLocalFromConfig)
}
