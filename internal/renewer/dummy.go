package renewer

import (
	"context"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/rs/zerolog"
)

// Dummy pretends every renewal succeeds.
type Dummy struct {
	logger zerolog.Logger
}

func newDummy(_ config.Backend, logger zerolog.Logger) (Renewer, error) {
	return Dummy{logger: logger}, nil
}

func (Dummy) Init(context.Context) error {
	return nil
}

func (d Dummy) RenewIP(context.Context) error {
	d.logger.Info().Msg("pretending to renew ip")
	return nil
}
