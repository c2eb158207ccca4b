package renewer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/httpclient"
	"github.com/Robertof/oxixenon/internal/session"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
)

// FritzBoxConfig is the [server.renewer.fritzbox] table.
type FritzBoxConfig struct {
	IP       string `toml:"ip"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// FritzBox renews by disconnecting the WAN link through the web UI.
type FritzBox struct {
	cfg    FritzBoxConfig
	http   *httpclient.Client
	logger zerolog.Logger

	sid string
}

type sessionInfo struct {
	SID       string `xml:"SID"`
	Challenge string `xml:"Challenge"`
	BlockTime int    `xml:"BlockTime"`
}

func (s sessionInfo) valid() bool {
	return s.SID != "" && strings.Trim(s.SID, "0") != ""
}

func newFritzBoxFromConfig(backend config.Backend, logger zerolog.Logger) (Renewer, error) {
	var cfg FritzBoxConfig
	if err := backend.Decode(&cfg); err != nil {
		return nil, err
	}
	return NewFritzBox(cfg, httpclient.New(httpclient.DefaultTimeout, logger), logger)
}

func NewFritzBox(cfg FritzBoxConfig, client *httpclient.Client, logger zerolog.Logger) (*FritzBox, error) {
	if strings.TrimSpace(cfg.IP) == "" {
		return nil, config.MissingOptionError{Name: "server.renewer.fritzbox.ip"}
	}
	if cfg.Password == "" {
		return nil, config.MissingOptionError{Name: "server.renewer.fritzbox.password"}
	}
	return &FritzBox{cfg: cfg, http: client, logger: logger}, nil
}

func (f *FritzBox) baseURL() string {
	return "http://" + strings.TrimSpace(f.cfg.IP)
}

func (f *FritzBox) Init(ctx context.Context) error {
	return f.login(ctx)
}

// login keeps the current SID when the router still accepts it, otherwise
// answers the challenge.
func (f *FritzBox) login(ctx context.Context) error {
	f.logger.Info().Msg("trying to login using specified credentials")
	loginURL := f.baseURL() + "/login_sid.lua"
	probeURL := loginURL
	if f.sid != "" {
		probeURL += "?sid=" + url.QueryEscape(f.sid)
	}

	res, err := f.http.Get(ctx, probeURL, nil)
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return fmt.Errorf("%w: login page returned %d", ErrLoginFailed, res.Status)
	}
	info, err := parseSessionInfo(res.Body)
	if err != nil {
		return err
	}
	if info.valid() {
		f.sid = info.SID
		f.logger.Info().Msg("login unnecessary, pre-existing SID is still valid")
		return nil
	}
	if info.Challenge == "" {
		return fmt.Errorf("%w: missing login challenge", ErrLoginFailed)
	}
	f.logger.Debug().Str("challenge", info.Challenge).Msg("answering challenge")

	response, err := fritzBoxResponse(info.Challenge, f.cfg.Password)
	if err != nil {
		return err
	}
	res, err = f.http.PostForm(ctx, loginURL, url.Values{
		"username": {f.cfg.Username},
		"response": {response},
	})
	if err != nil {
		return err
	}
	info, err = parseSessionInfo(res.Body)
	if err != nil {
		return err
	}
	f.logger.Debug().Int("block_time", info.BlockTime).Msg("login attempt finished")
	if !info.valid() {
		f.sid = ""
		return fmt.Errorf("%w: check your credentials", ErrLoginFailed)
	}
	f.sid = info.SID
	f.logger.Info().Msg("login OK")
	return nil
}

func parseSessionInfo(body string) (sessionInfo, error) {
	var info sessionInfo
	if err := xml.Unmarshal([]byte(body), &info); err != nil {
		return sessionInfo{}, fmt.Errorf("%w: malformed session info: %w", ErrUnexpectedReply, err)
	}
	return info, nil
}

// fritzBoxResponse computes "<challenge>-md5(utf16le(<challenge>-<password>))"
// with code points above 255 replaced by '.'.
func fritzBoxResponse(challenge, password string) (string, error) {
	plain := []rune(challenge + "-" + password)
	for i, r := range plain {
		if r > 255 {
			plain[i] = '.'
		}
	}
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(string(plain))
	if err != nil {
		return "", fmt.Errorf("encode challenge response: %w", err)
	}
	sum := md5.Sum([]byte(encoded))
	return challenge + "-" + hex.EncodeToString(sum[:]), nil
}

func (f *FritzBox) monitorURL(action string) string {
	return fmt.Sprintf("%s/internet/inetstat_monitor.lua?sid=%s&action=%s&xhr=1&myXhr=1",
		f.baseURL(), url.QueryEscape(f.sid), action)
}

// RenewIP disconnects the WAN link, logging in again once if the SID was
// rejected, then asks for an immediate reconnect.
func (f *FritzBox) RenewIP(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if f.sid == "" {
			if err := f.login(ctx); err != nil {
				return err
			}
		}
		res, err := f.http.Get(ctx, f.monitorURL("disconnect"), nil)
		if err != nil {
			return err
		}
		if res.Status == http.StatusForbidden {
			f.sid = ""
			if attempt == 0 {
				f.logger.Debug().Msg("sid rejected, logging in again")
				continue
			}
			return session.NewPublicError("Router rejected the disconnect request",
				fmt.Errorf("%w: disconnect forbidden after fresh login", ErrLoginFailed))
		}
		if !res.IsSuccess() {
			return fmt.Errorf("%w: renewal returned %d", ErrUnexpectedReply, res.Status)
		}
		break
	}

	if res, err := f.http.Get(ctx, f.monitorURL("connect"), nil); err != nil {
		f.logger.Debug().Err(err).Msg("reconnect request failed")
	} else if !res.IsSuccess() {
		f.logger.Debug().Int("status", res.Status).Msg("reconnect request rejected")
	}
	f.logger.Info().Msg("successfully asked for another IP")
	return nil
}
