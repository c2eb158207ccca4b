package logging

import (
	"errors"
	"fmt"
	"io"
	"log/syslog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "OXIXENON_LOG_LEVEL"
	EnvLogNoColor = "OXIXENON_LOG_NOCOLOR"
)

const (
	BackendStdout = "stdout"
	BackendFile   = "file"
	BackendSyslog = "syslog"
)

const defaultSyslogTag = "oxixenon"

var ErrUnknownBackend = errors.New("logging: unknown backend")

// Build returns a logger writing to every backend in cfg. The closer releases
// file and syslog handles and must be called on shutdown.
func Build(cfg config.Logging, debug bool) (zerolog.Logger, io.Closer, error) {
	level, ok := ParseLevel(cfg.Level)
	if !ok && strings.TrimSpace(cfg.Level) != "" {
		return zerolog.Nop(), nil, config.InvalidOptionError{
			Name:   "logging.verbosity",
			Reason: fmt.Sprintf("unknown level %q", cfg.Level),
		}
	}
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	if debug && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	noColor, _ := parseBool(os.Getenv(EnvLogNoColor))

	var (
		writers []io.Writer
		closers multiCloser
		host    string
	)
	for _, name := range cfg.Backends {
		switch strings.ToLower(name) {
		case BackendStdout:
			writers = append(writers, consoleWriter(noColor))
		case BackendFile:
			f, err := openFile(cfg.File)
			if err != nil {
				closers.Close()
				return zerolog.Nop(), nil, err
			}
			closers = append(closers, f)
			writers = append(writers, f)
		case BackendSyslog:
			w, err := dialSyslog(cfg.Syslog)
			if err != nil {
				closers.Close()
				return zerolog.Nop(), nil, err
			}
			closers = append(closers, w)
			writers = append(writers, zerolog.SyslogLevelWriter(w))
			host = strings.TrimSpace(cfg.Syslog.Hostname)
		default:
			closers.Close()
			return zerolog.Nop(), nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if host != "" {
		ctx = ctx.Str("host", host)
	}
	return ctx.Logger(), closers, nil
}

// consoleWriter sends error and above to stderr, the rest to stdout.
func consoleWriter(noColor bool) zerolog.LevelWriter {
	return splitWriter{
		low: zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		},
		high: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		},
	}
}

type splitWriter struct {
	low  io.Writer
	high io.Writer
}

func (w splitWriter) Write(p []byte) (int, error) {
	return w.low.Write(p)
}

func (w splitWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level >= zerolog.ErrorLevel && level != zerolog.NoLevel {
		return w.high.Write(p)
	}
	return w.low.Write(p)
}

func openFile(cfg config.FileLogging) (*os.File, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, config.MissingOptionError{Name: "logging.file.path"}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

func dialSyslog(cfg config.SyslogLogging) (*syslog.Writer, error) {
	tag := strings.TrimSpace(cfg.Tag)
	if tag == "" {
		tag = defaultSyslogTag
	}
	priority := syslog.LOG_INFO | syslog.LOG_DAEMON

	var network, addr string
	switch strings.ToLower(strings.TrimSpace(cfg.Protocol)) {
	case "", "unix":
		if cfg.UnixSocketPath != "" {
			network, addr = "unix", cfg.UnixSocketPath
		}
	case "tcp", "udp":
		network = strings.ToLower(strings.TrimSpace(cfg.Protocol))
		addr = strings.TrimSpace(cfg.ServerAddr)
		if addr == "" {
			return nil, config.MissingOptionError{Name: "logging.syslog.server_addr"}
		}
	default:
		return nil, config.InvalidOptionError{
			Name:   "logging.syslog.protocol",
			Reason: fmt.Sprintf("unsupported protocol %q", cfg.Protocol),
		}
	}
	w, err := syslog.Dial(network, addr, priority, tag)
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}
	return w, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseLevel maps a verbosity name onto a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
