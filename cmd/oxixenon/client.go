package main

import (
	"context"
	"fmt"
	"net"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/notifier"
	"github.com/Robertof/oxixenon/internal/protocol"
	"github.com/Robertof/oxixenon/internal/session"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

func runClient(ctx context.Context, cfg config.Client, n notifier.Notifier, logger zerolog.Logger) error {
	logger.Info().Str("action", cfg.Action.String()).Msg("running client action")
	if cfg.Action.Kind == config.ActionNotifications {
		return listenNotifications(ctx, n, logger)
	}

	client := session.NewClient(cfg.ConnectTo, session.DefaultConfig(), logger.With().Str("component", "client").Logger())
	switch cfg.Action.Kind {
	case config.ActionRenew:
		if err := client.RenewIP(ctx); err != nil {
			return fmt.Errorf("renew ip: %w", err)
		}
		logger.Info().Msg("IP renewed successfully")
	case config.ActionSetAvailability:
		if err := client.SetAvailability(ctx, cfg.Action.Availability); err != nil {
			return fmt.Errorf("set availability: %w", err)
		}
		logger.Info().Str("availability", cfg.Action.Availability.String()).Msg("renewal availability updated")
	default:
		return config.InvalidOptionError{Name: "client.action.name", Reason: fmt.Sprintf("unknown client action %q", cfg.Action.Kind)}
	}
	return nil
}

func listenNotifications(ctx context.Context, n notifier.Notifier, logger zerolog.Logger) error {
	logger.Info().Msg("listening for notifications, press Ctrl+C to stop")
	return n.Listen(ctx, func(ev protocol.Event, from net.Addr) {
		logger.Debug().Str("event", ev.String()).Str("from", from.String()).Msg("notification received")
		showNotification(ev, from)
	})
}

func showNotification(ev protocol.Event, from net.Addr) {
	pterm.Info.WithPrefix(pterm.Prefix{Text: "oxixenon", Style: pterm.NewStyle(pterm.BgCyan, pterm.FgBlack)}).
		Println(ev.Description() + "\nRequest sent by " + from.String())
}
