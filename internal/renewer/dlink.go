package renewer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/httpclient"
	"github.com/Robertof/oxixenon/internal/session"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

var (
	ErrLoginFailed     = errors.New("renewer: router login failed")
	ErrTooManyRetries  = errors.New("renewer: too many retries, are the credentials correct?")
	ErrUnexpectedReply = errors.New("renewer: unexpected router reply")
)

const (
	dlinkLoginPath  = "/ui/login"
	dlinkMaxRetries = 3
)

// DLinkConfig is the [server.renewer.dlink] table.
type DLinkConfig struct {
	IP        string `toml:"ip"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Interface string `toml:"interface"`
}

// DLink renews through the router web UI by resetting a WAN interface.
type DLink struct {
	cfg     DLinkConfig
	http    *httpclient.Client
	backoff BackoffConfig
	rng     *rand.Rand
	logger  zerolog.Logger

	cookie string
}

func newDLinkFromConfig(backend config.Backend, logger zerolog.Logger) (Renewer, error) {
	var cfg DLinkConfig
	if err := backend.Decode(&cfg); err != nil {
		return nil, err
	}
	return NewDLink(cfg, httpclient.New(httpclient.DefaultTimeout, logger), logger)
}

func NewDLink(cfg DLinkConfig, client *httpclient.Client, logger zerolog.Logger) (*DLink, error) {
	required := map[string]string{
		"ip":        cfg.IP,
		"username":  cfg.Username,
		"password":  cfg.Password,
		"interface": cfg.Interface,
	}
	for _, key := range []string{"ip", "username", "password", "interface"} {
		if strings.TrimSpace(required[key]) == "" {
			return nil, config.MissingOptionError{Name: "server.renewer.dlink." + key}
		}
	}
	// interface is pasted into the reset URL as is
	if !validDLinkInterface(cfg.Interface) {
		return nil, config.InvalidOptionError{
			Name:   "server.renewer.dlink.interface",
			Reason: "invalid characters (allowed: a-z, 0-9, ?, =)",
		}
	}
	return &DLink{
		cfg:     cfg,
		http:    client,
		backoff: DefaultBackoff(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}, nil
}

func validDLinkInterface(name string) bool {
	for _, c := range name {
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isAlpha && !isDigit && c != '?' && c != '=' {
			return false
		}
	}
	return true
}

func (d *DLink) baseURL() string {
	return "http://" + strings.TrimSpace(d.cfg.IP)
}

func (d *DLink) Init(ctx context.Context) error {
	return d.login(ctx)
}

func (d *DLink) login(ctx context.Context) error {
	d.logger.Info().Msg("trying to login using specified credentials")
	loginURL := d.baseURL() + dlinkLoginPath
	res, err := d.http.Get(ctx, loginURL, nil)
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return fmt.Errorf("%w: login page returned %d", ErrLoginFailed, res.Status)
	}
	fields := hiddenInputs(strings.NewReader(res.Body), "nonce", "code1")
	nonce, ok := fields["nonce"]
	if !ok {
		return fmt.Errorf("%w: can't find nonce", ErrLoginFailed)
	}
	csrf, ok := fields["code1"]
	if !ok {
		return fmt.Errorf("%w: can't find CSRF token", ErrLoginFailed)
	}
	d.logger.Trace().Str("nonce", nonce).Str("csrf", csrf).Msg("extracted login tokens")

	res, err = d.http.PostForm(ctx, loginURL, url.Values{
		"code1":    {csrf},
		"language": {"IT"},
		"login":    {"Login"},
		"nonce":    {nonce},
		"userName": {d.cfg.Username},
		"userPwd":  {hashDLinkPassword(nonce, d.cfg.Password)},
	})
	if err != nil {
		return err
	}
	if !res.IsRedirect() {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, res.Status)
	}
	cookie := sessionCookie(res.Header)
	if cookie == "" {
		return fmt.Errorf("%w: no session cookie", ErrLoginFailed)
	}
	d.cookie = cookie
	d.logger.Info().Str("location", res.Location()).Msg("login OK")
	return nil
}

// hashDLinkPassword returns hex(HMAC-SHA256(key=nonce, password)).
func hashDLinkPassword(nonce, password string) string {
	mac := hmac.New(sha256.New, []byte(nonce))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

func sessionCookie(h http.Header) string {
	raw := h.Get("Set-Cookie")
	if raw == "" {
		return ""
	}
	cookie, _, _ := strings.Cut(raw, ";")
	return strings.TrimSpace(cookie)
}

// hiddenInputs collects the value attribute of <input> elements whose name
// is in names.
func hiddenInputs(r io.Reader, names ...string) map[string]string {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	out := make(map[string]string, len(names))
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			var name, value string
			hasValue := false
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "value":
					value, hasValue = attr.Val, true
				}
			}
			if wanted[name] && hasValue {
				if _, seen := out[name]; !seen {
					out[name] = value
				}
			}
		}
	}
}

// RenewIP resets the WAN interface. An expired session shows up as a
// redirect to the login page and is retried after logging in again.
func (d *DLink) RenewIP(ctx context.Context) error {
	renewURL := fmt.Sprintf("%s/ui/dboard/settings/netif/%s&action=reset", d.baseURL(), d.cfg.Interface)
	for attempt := 0; ; attempt++ {
		if d.cookie == "" {
			if err := d.login(ctx); err != nil {
				return err
			}
		} else {
			d.logger.Debug().Msg("trying to reuse existing sid to renew")
		}

		res, err := d.http.Get(ctx, renewURL, http.Header{"Cookie": {d.cookie}})
		if err != nil {
			return err
		}
		if !res.IsRedirect() {
			return fmt.Errorf("%w: expected redirect when renewing, got %d", ErrUnexpectedReply, res.Status)
		}
		if !isDLinkLoginRedirect(res.Location()) {
			d.logger.Info().Str("location", res.Location()).Msg("successfully asked for another IP")
			return nil
		}

		if attempt >= dlinkMaxRetries {
			return session.NewPublicError("Router session keeps expiring, check the renewer credentials", ErrTooManyRetries)
		}
		d.logger.Debug().Int("attempt", attempt+1).Msg("sid expired, clearing and retrying")
		d.cookie = ""
		if err := sleepContext(ctx, NextBackoffDelay(d.backoff, attempt+1, d.rng)); err != nil {
			return err
		}
	}
}

func isDLinkLoginRedirect(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Path == dlinkLoginPath
}
