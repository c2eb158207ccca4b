package main

import (
	"context"
	"fmt"
	"net"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/notifier"
	"github.com/Robertof/oxixenon/internal/observability"
	"github.com/Robertof/oxixenon/internal/renewer"
	"github.com/Robertof/oxixenon/internal/session"
	"github.com/rs/zerolog"
)

func runServer(ctx context.Context, cfg config.Config, n notifier.Notifier, logger zerolog.Logger) error {
	r, err := renewer.New(cfg.Server.Renewer, logger)
	if err != nil {
		return fmt.Errorf("can't initialize renewer: %w", err)
	}
	if err := r.Init(ctx); err != nil {
		return fmt.Errorf("can't initialize renewer: %w", err)
	}

	observability.RegisterMetrics()
	srv := session.NewServer(session.ServerConfig{
		BindTo: cfg.Server.BindTo,
		Config: session.DefaultConfig(),
	}, r, n, logger, observability.Recorder{})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	statusErr := make(chan error, 1)
	if cfg.Server.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.Server.MetricsAddr)
		if err != nil {
			return fmt.Errorf("status listen %s: %w", cfg.Server.MetricsAddr, err)
		}
		router := observability.NewStatusRouter(logger.With().Str("component", "status").Logger(), srv, observability.StatusInfo{
			Renewer:  cfg.Server.Renewer.Name,
			Notifier: cfg.Notifier.Name,
		})
		logger.Info().Str("addr", ln.Addr().String()).Msg("status endpoint listening")
		go func() {
			err := observability.ServeStatus(ctx, ln, router)
			if err != nil {
				cancel()
			}
			statusErr <- err
		}()
	} else {
		statusErr <- nil
	}

	serveErr := srv.ListenAndServe(ctx)
	cancel()
	if err := <-statusErr; err != nil && serveErr == nil {
		return fmt.Errorf("status endpoint: %w", err)
	}
	return serveErr
}
