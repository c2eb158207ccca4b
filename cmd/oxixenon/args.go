package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/protocol"
)

var errUsage = errors.New("usage error")

const usage = `usage:
  oxixenon [-c config.toml] [-d] [-n notifier] client [-a addr] renew
  oxixenon [-c config.toml] [-d] [-n notifier] client [-a addr] set_availability available|unavailable [reason]
  oxixenon [-c config.toml] [-d] [-n notifier] client notifications
  oxixenon [-c config.toml] [-d] [-n notifier] server [-r renewer]`

type options struct {
	configPath string
	debug      bool
	overrides  config.Overrides
}

// parseArgs maps the command line onto config overrides. Anything left
// unset falls back to the config file.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	opts := options{configPath: config.DefaultPath}

	fs := flag.NewFlagSet("oxixenon", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, usage) }
	fs.StringVar(&opts.configPath, "c", config.DefaultPath, "config file path")
	fs.BoolVar(&opts.debug, "d", false, "enable debug output")
	fs.StringVar(&opts.overrides.Notifier, "n", "", "notifier to use")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return opts, nil
	}
	switch rest[0] {
	case "server":
		opts.overrides.Mode = config.ModeServer
		sfs := flag.NewFlagSet("server", flag.ContinueOnError)
		sfs.SetOutput(stderr)
		sfs.StringVar(&opts.overrides.Renewer, "r", "", "renewer to use")
		if err := sfs.Parse(rest[1:]); err != nil {
			return options{}, fmt.Errorf("%w: %v", errUsage, err)
		}
		if sfs.NArg() > 0 {
			return options{}, fmt.Errorf("%w: unexpected argument %q", errUsage, sfs.Arg(0))
		}
	case "client":
		opts.overrides.Mode = config.ModeClient
		cfs := flag.NewFlagSet("client", flag.ContinueOnError)
		cfs.SetOutput(stderr)
		cfs.StringVar(&opts.overrides.ConnectTo, "a", "", "server address (host:port)")
		if err := cfs.Parse(rest[1:]); err != nil {
			return options{}, fmt.Errorf("%w: %v", errUsage, err)
		}
		if cfs.NArg() > 0 {
			action, err := parseAction(cfs.Args())
			if err != nil {
				return options{}, err
			}
			opts.overrides.Action = &action
		}
	default:
		return options{}, fmt.Errorf("%w: unknown subcommand %q", errUsage, rest[0])
	}
	return opts, nil
}

func parseAction(args []string) (config.ClientAction, error) {
	kind := config.ActionKind(args[0])
	switch kind {
	case config.ActionRenew, config.ActionNotifications:
		if len(args) > 1 {
			return config.ClientAction{}, fmt.Errorf("%w: %s takes no arguments", errUsage, kind)
		}
		return config.ClientAction{Kind: kind}, nil
	case config.ActionSetAvailability:
		if len(args) < 2 {
			return config.ClientAction{}, fmt.Errorf("%w: set_availability needs available|unavailable", errUsage)
		}
		switch args[1] {
		case "available":
			if len(args) > 2 {
				return config.ClientAction{}, fmt.Errorf("%w: available takes no reason", errUsage)
			}
			return config.ClientAction{Kind: kind, Availability: protocol.Available()}, nil
		case "unavailable":
			reason := strings.TrimSpace(strings.Join(args[2:], " "))
			if reason == "" {
				return config.ClientAction{}, fmt.Errorf("%w: unavailable needs a reason", errUsage)
			}
			return config.ClientAction{Kind: kind, Availability: protocol.Unavailable(reason)}, nil
		default:
			return config.ClientAction{}, fmt.Errorf("%w: invalid availability %q", errUsage, args[1])
		}
	default:
		return config.ClientAction{}, fmt.Errorf("%w: unknown client action %q", errUsage, args[0])
	}
}
