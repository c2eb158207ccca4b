package notifier

import (
	"context"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/protocol"
	"github.com/rs/zerolog"
)

// Noop discards events.
type Noop struct{}

func newNoop(config.Backend, zerolog.Logger) (Notifier, error) {
	return Noop{}, nil
}

func (Noop) Notify(context.Context, protocol.Event) error {
	return nil
}

func (Noop) Listen(context.Context, Handler) error {
	return ErrListenUnsupported
}
