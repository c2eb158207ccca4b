package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig is the ssh table of a renewer that runs commands remotely.
type SSHConfig struct {
	Host                        string `toml:"host"`
	Port                        string `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	Passphrase                  string `toml:"passphrase"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
	Timeout                     string `toml:"timeout"`
}

type SSH struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

func NewSSH(cfg SSHConfig) (SSH, error) {
	r := SSH{
		Host:                        strings.TrimSpace(cfg.Host),
		Port:                        strings.TrimSpace(cfg.Port),
		User:                        strings.TrimSpace(cfg.User),
		KeyPath:                     strings.TrimSpace(cfg.KeyPath),
		KnownHostsPath:              strings.TrimSpace(cfg.KnownHostsPath),
		InsecureSkipHostKeyChecking: cfg.InsecureSkipHostKeyChecking,
		Timeout:                     10 * time.Second,
	}
	if cfg.Passphrase != "" {
		r.Passphrase = []byte(cfg.Passphrase)
	}
	if raw := strings.TrimSpace(cfg.Timeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return SSH{}, fmt.Errorf("ssh timeout: %w", err)
		}
		r.Timeout = d
	}
	if _, err := r.address(); err != nil {
		return SSH{}, err
	}
	if r.User == "" {
		return SSH{}, fmt.Errorf("ssh user is required")
	}
	if r.KeyPath == "" {
		return SSH{}, fmt.Errorf("ssh key path is required")
	}
	return r, nil
}

func (r SSH) String() string {
	addr, _ := r.address()
	return "ssh://" + r.User + "@" + addr
}

func (r SSH) Run(ctx context.Context, name string, args ...string) (Result, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return Result{ExitCode: 255}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{ExitCode: 255}, err
	}
	defer session.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	command := joinCommand(name, args)
	err = session.Run(command)
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, &ExitError{Command: command, ExitCode: res.ExitCode, Stderr: stderr.String()}
	}
	res.ExitCode = 255
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, err
}

func (r SSH) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := r.address()
	if err != nil {
		return nil, err
	}

	config, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: r.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (r SSH) address() (string, error) {
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}

	if r.Port != "" {
		return net.JoinHostPort(host, r.Port), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (r SSH) clientConfig() (*ssh.ClientConfig, error) {
	if r.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := r.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if r.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := r.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.Timeout,
	}, nil
}

func (r SSH) signer() (ssh.Signer, error) {
	if r.KeyPath == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}

	privateKey, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, err
	}

	if len(r.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, r.Passphrase)
	}

	return ssh.ParsePrivateKey(privateKey)
}

func (r SSH) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(r.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}
