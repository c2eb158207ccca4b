package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type templateDoc struct {
	Mode         string                    `toml:"mode"`
	NotifierName string                    `toml:"notifier_name"`
	Notifier     map[string]map[string]any `toml:"notifier"`
	Logging      templateLogging           `toml:"logging"`
	Server       *templateServer           `toml:"server,omitempty"`
	Client       *templateClient           `toml:"client,omitempty"`
}

type templateLogging struct {
	Verbosity string   `toml:"verbosity"`
	Backends  []string `toml:"backends"`
}

type templateServer struct {
	BindTo      string                    `toml:"bind_to"`
	RenewerName string                    `toml:"renewer_name"`
	Renewer     map[string]map[string]any `toml:"renewer"`
}

type templateClient struct {
	ConnectTo string               `toml:"connect_to"`
	Action    templateClientAction `toml:"action"`
}

type templateClientAction struct {
	Name string `toml:"name"`
}

func defaultNotifierTables() map[string]map[string]any {
	return map[string]map[string]any{
		"multicast": {
			"addr":      "239.255.77.1:27200",
			"bind_addr": "0.0.0.0:27200",
			"loopback":  true,
			"ttl":       1,
		},
	}
}

// Template renders a starter config for the given mode.
func Template(mode string) (string, error) {
	doc := templateDoc{
		NotifierName: "multicast",
		Notifier:     defaultNotifierTables(),
		Logging: templateLogging{
			Verbosity: "info",
			Backends:  []string{"stdout"},
		},
	}
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModeServer:
		doc.Mode = string(ModeServer)
		doc.Server = &templateServer{
			BindTo:      "0.0.0.0:27100",
			RenewerName: "dummy",
			Renewer: map[string]map[string]any{
				"fritzbox": {
					"ip":       "192.168.178.1",
					"password": "changeme",
				},
			},
		}
	case ModeClient:
		doc.Mode = string(ModeClient)
		doc.Client = &templateClient{
			ConnectTo: "127.0.0.1:27100",
			Action:    templateClientAction{Name: string(ActionRenew)},
		}
	default:
		return "", fmt.Errorf("unknown config mode: %s", mode)
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", mode, err)
	}
	return string(out), nil
}

func WriteTemplate(path, mode string, overwrite bool) error {
	template, err := Template(mode)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
