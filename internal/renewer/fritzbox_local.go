package renewer

import (
	"context"
	"fmt"
	"os"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/runner"
	"github.com/rs/zerolog"
)

const ctlmgrPath = "/usr/bin/ctlmgr_ctl"

type fritzBoxLocalConfig struct {
	CtlmgrPath string            `toml:"ctlmgr_path"`
	SSH        *runner.SSHConfig `toml:"ssh"`
}

// FritzBoxLocal drives ctlmgr_ctl on the router itself, either because
// oxixenon runs there or through an SSH runner.
type FritzBoxLocal struct {
	runner runner.Runner
	path   string
	logger zerolog.Logger
}

func newFritzBoxLocalFromConfig(backend config.Backend, logger zerolog.Logger) (Renewer, error) {
	var cfg fritzBoxLocalConfig
	if backend.Configured() {
		if err := backend.Decode(&cfg); err != nil {
			return nil, err
		}
	}
	var r runner.Runner = runner.Local{}
	if cfg.SSH != nil {
		ssh, err := runner.NewSSH(*cfg.SSH)
		if err != nil {
			return nil, config.InvalidOptionError{Name: "server.renewer.fritzbox_local.ssh", Reason: err.Error()}
		}
		r = ssh
	}
	return NewFritzBoxLocal(r, cfg.CtlmgrPath, logger), nil
}

func NewFritzBoxLocal(r runner.Runner, path string, logger zerolog.Logger) *FritzBoxLocal {
	if path == "" {
		path = ctlmgrPath
	}
	return &FritzBoxLocal{runner: r, path: path, logger: logger}
}

// Init checks that ctlmgr_ctl is available where commands will run.
func (f *FritzBoxLocal) Init(ctx context.Context) error {
	if _, ok := f.runner.(runner.Local); ok {
		info, err := os.Stat(f.path)
		if err != nil || !info.Mode().IsRegular() {
			f.logger.Error().Str("path", f.path).Msg("oxixenon must run on the FritzBox! router for this renewer to work")
			return fmt.Errorf("renewer: FritzBox! renewer failed to initialize: %s not found", f.path)
		}
		return nil
	}
	if _, err := f.runner.Run(ctx, "test", "-x", f.path); err != nil {
		return fmt.Errorf("renewer: %s not executable on %s: %w", f.path, f.runner, err)
	}
	return nil
}

func (f *FritzBoxLocal) RenewIP(ctx context.Context) error {
	if err := f.ctlmgr(ctx, "settings/cmd_disconnect"); err != nil {
		return fmt.Errorf("failed to disconnect network: %w", err)
	}
	if err := f.ctlmgr(ctx, "settings/cmd_connect"); err != nil {
		return fmt.Errorf("failed to reconnect network: %w", err)
	}
	f.logger.Info().Str("runner", f.runner.String()).Msg("successfully asked for another IP")
	return nil
}

func (f *FritzBoxLocal) ctlmgr(ctx context.Context, param string) error {
	_, err := f.runner.Run(ctx, f.path, "w", "connection0", param, "")
	return err
}
