package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/logging"
	"github.com/Robertof/oxixenon/internal/notifier"
	"github.com/rs/zerolog"
)

const (
	exitConfig  = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "oxixenon: %v\n%s\n", err, usage)
		return exitConfig
	}

	cfg, err := config.Load(opts.configPath, opts.overrides)
	if err != nil {
		fmt.Fprintf(stderr, "oxixenon: can't parse config file %q or command line arguments\n%v\n", opts.configPath, err)
		return exitConfig
	}

	logger, closer, err := logging.Build(cfg.Logging, opts.debug)
	if err != nil {
		fmt.Fprintf(stderr, "oxixenon: failed to initialize logging: %v\n", err)
		return exitConfig
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("oxixenon failed")
		if errors.Is(err, config.ErrMissingOption) || errors.Is(err, config.ErrInvalidOption) {
			return exitConfig
		}
		return exitRuntime
	}
	return 0
}

func start(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	logger.Info().Str("mode", cfg.Mode.String()).Str("notifier", cfg.Notifier.Name).Msg("starting oxixenon")
	n, err := notifier.New(cfg.Notifier, logger)
	if err != nil {
		return fmt.Errorf("can't initialize notifier: %w", err)
	}
	switch cfg.Mode {
	case config.ModeServer:
		return runServer(ctx, cfg, n, logger)
	case config.ModeClient:
		return runClient(ctx, cfg.Client, n, logger)
	default:
		return config.InvalidOptionError{Name: "mode", Reason: fmt.Sprintf("unknown run mode %q", cfg.Mode)}
	}
}
