// Package notifier broadcasts renewal events and delivers them to listening
// clients.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/protocol"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownNotifier   = errors.New("notifier: unknown notifier")
	ErrListenUnsupported = errors.New("notifier: listening is not supported by this notifier")
)

// Handler receives one decoded event and the address it came from.
type Handler func(ev protocol.Event, from net.Addr)

// Notifier sends events and, where the transport allows it, listens for them.
type Notifier interface {
	Notify(ctx context.Context, ev protocol.Event) error
	// Listen blocks delivering events to fn until ctx is cancelled or the
	// transport fails. Cancellation returns nil.
	Listen(ctx context.Context, fn Handler) error
}

// Factory builds a notifier from its config table.
type Factory func(cfg config.Backend, logger zerolog.Logger) (Notifier, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Names lists registered notifiers in order.
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

// New builds the notifier named by cfg.
func New(cfg config.Backend, logger zerolog.Logger) (Notifier, error) {
	mu.RLock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(cfg.Name))]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q, must be one of %s", ErrUnknownNotifier, cfg.Name, strings.Join(Names(), ", "))
	}
	return f(cfg, logger.With().Str("component", "notifier."+cfg.Name).Logger())
}

func init() {
	Register("multicast", newMulticastFromConfig)
	Register("none", newNoop)
	Register("noop", newNoop)
}
