package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Robertof/oxixenon/internal/protocol"
)

const DefaultPath = "config.toml"

type Mode string

const (
	ModeServer Mode = "server"
	ModeClient Mode = "client"
)

func (m Mode) String() string {
	return string(m) + " mode"
}

type ActionKind string

const (
	ActionRenew           ActionKind = "renew"
	ActionSetAvailability ActionKind = "set_availability"
	ActionNotifications   ActionKind = "notifications"
)

// ClientAction is what a client invocation does.
type ClientAction struct {
	Kind         ActionKind
	Availability protocol.RenewAvailability
}

func (a ClientAction) String() string {
	switch a.Kind {
	case ActionRenew:
		return "renew ip"
	case ActionSetAvailability:
		return "set renewal availability to " + a.Availability.String()
	case ActionNotifications:
		return "listen to notifications"
	default:
		return string(a.Kind)
	}
}

type Config struct {
	Mode     Mode
	Notifier Backend
	Logging  Logging
	Server   Server
	Client   Client
}

type Logging struct {
	Level    string
	Backends []string
	File     FileLogging
	Syslog   SyslogLogging
}

type FileLogging struct {
	Path string `toml:"path"`
}

type SyslogLogging struct {
	Protocol       string `toml:"protocol"`
	ServerAddr     string `toml:"server_addr"`
	UnixSocketPath string `toml:"unix_socket_path"`
	Hostname       string `toml:"hostname"`
	Tag            string `toml:"tag"`
}

type Server struct {
	BindTo      string
	MetricsAddr string
	Renewer     Backend
}

type Client struct {
	ConnectTo string
	Action    ClientAction
}

// Overrides carries command-line values. Non-empty fields take priority over
// the config file.
type Overrides struct {
	Mode      Mode
	Notifier  string
	Renewer   string
	ConnectTo string
	Action    *ClientAction
	LogLevel  string
}

// config.toml key mapping.
type fileConfig struct {
	Mode         string                    `toml:"mode"`
	NotifierName string                    `toml:"notifier_name"`
	Notifier     map[string]toml.Primitive `toml:"notifier"`
	Logging      fileLogging               `toml:"logging"`
	Server       fileServer                `toml:"server"`
	Client       fileClient                `toml:"client"`
}

type fileLogging struct {
	Verbosity string        `toml:"verbosity"`
	Backends  []string      `toml:"backends"`
	File      FileLogging   `toml:"file"`
	Syslog    SyslogLogging `toml:"syslog"`
}

type fileServer struct {
	BindTo      string                    `toml:"bind_to"`
	RenewerName string                    `toml:"renewer_name"`
	MetricsAddr string                    `toml:"metrics_addr"`
	Renewer     map[string]toml.Primitive `toml:"renewer"`
}

type fileClient struct {
	ConnectTo string           `toml:"connect_to"`
	Action    fileClientAction `toml:"action"`
}

type fileClientAction struct {
	Name            string              `toml:"name"`
	SetAvailability fileSetAvailability `toml:"set_availability"`
}

type fileSetAvailability struct {
	Available bool   `toml:"available"`
	Reason    string `toml:"reason"`
}

// Default returns settings used for keys absent from the config file.
func Default() Config {
	return Config{
		Notifier: Backend{Name: "none", Section: "notifier.none"},
		Logging: Logging{
			Level:    "info",
			Backends: []string{"stdout"},
		},
	}
}

// Load reads the TOML file at path, overlays it onto Default and applies
// command-line overrides.
func Load(path string, ov Overrides) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := build(&meta, raw, ov)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func build(meta *toml.MetaData, raw fileConfig, ov Overrides) (Config, error) {
	cfg := Default()

	if meta.IsDefined("logging", "verbosity") {
		cfg.Logging.Level = strings.TrimSpace(raw.Logging.Verbosity)
	}
	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}
	if meta.IsDefined("logging", "backends") {
		cfg.Logging.Backends = normalizeList(raw.Logging.Backends)
	}
	cfg.Logging.File = raw.Logging.File
	cfg.Logging.Syslog = raw.Logging.Syslog

	notifierName := strings.TrimSpace(raw.NotifierName)
	if ov.Notifier != "" {
		notifierName = ov.Notifier
	}
	if notifierName != "" {
		cfg.Notifier = selectBackend(meta, "notifier", notifierName, raw.Notifier)
	}

	mode := Mode(strings.TrimSpace(raw.Mode))
	if ov.Mode != "" {
		mode = ov.Mode
	}
	if mode == "" {
		return Config{}, MissingOptionError{Name: "mode"}
	}
	cfg.Mode = mode

	switch mode {
	case ModeServer:
		if !meta.IsDefined("server") {
			return Config{}, MissingOptionError{Name: "server"}
		}
		cfg.Server.BindTo = strings.TrimSpace(raw.Server.BindTo)
		cfg.Server.MetricsAddr = strings.TrimSpace(raw.Server.MetricsAddr)
		renewerName := strings.TrimSpace(raw.Server.RenewerName)
		if ov.Renewer != "" {
			renewerName = ov.Renewer
		}
		if renewerName == "" {
			return Config{}, MissingOptionError{Name: "server.renewer_name"}
		}
		cfg.Server.Renewer = selectBackend(meta, "server.renewer", renewerName, raw.Server.Renewer)
	case ModeClient:
		cfg.Client.ConnectTo = strings.TrimSpace(raw.Client.ConnectTo)
		if ov.ConnectTo != "" {
			cfg.Client.ConnectTo = ov.ConnectTo
		}
		if ov.Action != nil {
			cfg.Client.Action = *ov.Action
			break
		}
		action, err := fileAction(meta, raw.Client.Action)
		if err != nil {
			return Config{}, err
		}
		cfg.Client.Action = action
	default:
		return Config{}, InvalidOptionError{Name: "mode", Reason: fmt.Sprintf("unknown run mode %q", mode)}
	}
	return cfg, nil
}

func fileAction(meta *toml.MetaData, raw fileClientAction) (ClientAction, error) {
	name := ActionKind(strings.TrimSpace(raw.Name))
	switch name {
	case "":
		return ClientAction{}, MissingOptionError{Name: "client.action.name"}
	case ActionRenew, ActionNotifications:
		return ClientAction{Kind: name}, nil
	case ActionSetAvailability:
		if !meta.IsDefined("client", "action", "set_availability", "available") {
			return ClientAction{}, MissingOptionError{Name: "client.action.set_availability.available"}
		}
		if raw.SetAvailability.Available {
			return ClientAction{Kind: name, Availability: protocol.Available()}, nil
		}
		return ClientAction{Kind: name, Availability: protocol.Unavailable(strings.TrimSpace(raw.SetAvailability.Reason))}, nil
	default:
		return ClientAction{}, InvalidOptionError{Name: "client.action.name", Reason: fmt.Sprintf("unknown client action %q", name)}
	}
}

func selectBackend(meta *toml.MetaData, section, name string, tables map[string]toml.Primitive) Backend {
	full := section + "." + name
	prim, ok := tables[name]
	if !ok {
		return Backend{Name: name, Section: full}
	}
	return primitiveBackend(name, full, meta, prim)
}

// Validate checks mode-specific required options.
func Validate(cfg Config) error {
	if len(cfg.Logging.Backends) == 0 {
		return InvalidOptionError{Name: "logging.backends", Reason: "at least one backend is required"}
	}
	switch cfg.Mode {
	case ModeServer:
		return ValidateServer(cfg.Server)
	case ModeClient:
		return ValidateClient(cfg.Client)
	default:
		return InvalidOptionError{Name: "mode", Reason: fmt.Sprintf("unknown run mode %q", cfg.Mode)}
	}
}

func ValidateServer(cfg Server) error {
	if cfg.BindTo == "" {
		return MissingOptionError{Name: "server.bind_to"}
	}
	if err := validateHostPort("server.bind_to", cfg.BindTo); err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		if err := validateHostPort("server.metrics_addr", cfg.MetricsAddr); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Renewer.Name) == "" {
		return MissingOptionError{Name: "server.renewer_name"}
	}
	return nil
}

func ValidateClient(cfg Client) error {
	switch cfg.Action.Kind {
	case ActionNotifications:
		return nil
	case ActionRenew:
	case ActionSetAvailability:
		if cfg.Action.Availability.Unavailable && cfg.Action.Availability.Reason == "" {
			return MissingOptionError{Name: "client.action.set_availability.reason"}
		}
	default:
		return InvalidOptionError{Name: "client.action.name", Reason: fmt.Sprintf("unknown client action %q", cfg.Action.Kind)}
	}
	if cfg.ConnectTo == "" {
		return MissingOptionError{Name: "client.connect_to"}
	}
	return validateHostPort("client.connect_to", cfg.ConnectTo)
}

func validateHostPort(name, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return InvalidOptionError{Name: name, Reason: err.Error()}
	}
	if strings.TrimSpace(port) == "" {
		return InvalidOptionError{Name: name, Reason: "port required"}
	}
	return nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
