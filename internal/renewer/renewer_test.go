package renewer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/httpclient"
	"github.com/Robertof/oxixenon/internal/runner"
	"github.com/Robertof/oxixenon/internal/session"
	"github.com/Robertof/oxixenon/internal/testutil/testlog"
)

func TestRegistry(t *testing.T) {
	logger := testlog.Start(t)
	if _, err := New(config.Backend{Name: "netgear"}, logger); !errors.Is(err, ErrUnknownRenewer) {
		t.Fatalf("expected ErrUnknownRenewer, got %v", err)
	}
	r, err := New(config.Backend{Name: "dummy"}, logger)
	if err != nil {
		t.Fatalf("new dummy: %v", err)
	}
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := r.RenewIP(context.Background()); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if _, err := New(config.Backend{Name: "fritzbox"}, logger); !errors.Is(err, config.ErrMissingOption) {
		t.Fatalf("expected missing table error, got %v", err)
	}
	want := "dlink,dummy,fritzbox,fritzbox_local"
	if got := strings.Join(Names(), ","); got != want {
		t.Fatalf("unexpected names: %s", got)
	}
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	cases := map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 300 * time.Millisecond,
		6: 300 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := NextBackoffDelay(cfg, attempt, nil); got != want {
			t.Fatalf("attempt %d: got=%v want=%v", attempt, got, want)
		}
	}

	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		got := NextBackoffDelay(cfg, 2, rng)
		if got < 100*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// fakeDLink mimics the D-Link web UI login and interface reset pages.
type fakeDLink struct {
	mu            sync.Mutex
	logins        int
	resets        int
	expireResets  int
	lastCookie    string
	wrongPassword bool
}

const dlinkLoginPage = `<html><body><form method="post">
<input type="hidden" name="nonce" value="n0nc3" />
<input type='hidden' name='code1' value='csrf-tok' />
<input name="userName" />
</form></body></html>`

func (f *fakeDLink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/ui/login" && r.Method == http.MethodGet:
		_, _ = w.Write([]byte(dlinkLoginPage))
	case r.URL.Path == "/ui/login" && r.Method == http.MethodPost:
		_ = r.ParseForm()
		want := hashDLinkPassword("n0nc3", "secret")
		if f.wrongPassword || r.PostForm.Get("userPwd") != want || r.PostForm.Get("code1") != "csrf-tok" ||
			r.PostForm.Get("userName") != "admin" || r.PostForm.Get("language") != "IT" {
			w.WriteHeader(http.StatusOK)
			return
		}
		f.logins++
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: fmt.Sprintf("s%d", f.logins), Path: "/"})
		http.Redirect(w, r, "/ui/dboard", http.StatusFound)
	case strings.HasPrefix(r.URL.Path, "/ui/dboard/settings/netif/"):
		f.resets++
		f.lastCookie = r.Header.Get("Cookie")
		if !strings.HasSuffix(r.URL.Path, "/wan1&action=reset") || f.lastCookie == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if f.expireResets > 0 {
			f.expireResets--
			http.Redirect(w, r, "/ui/login", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/ui/dboard/settings/netif", http.StatusFound)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestDLink(t *testing.T, router *fakeDLink) *DLink {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	logger := testlog.Start(t)
	d, err := NewDLink(DLinkConfig{
		IP:        strings.TrimPrefix(srv.URL, "http://"),
		Username:  "admin",
		Password:  "secret",
		Interface: "wan1",
	}, httpclient.New(time.Second, logger), logger)
	if err != nil {
		t.Fatalf("new dlink: %v", err)
	}
	d.backoff = BackoffConfig{}
	return d
}

func TestDLinkLoginAndRenew(t *testing.T) {
	router := &fakeDLink{}
	d := newTestDLink(t, router)
	ctx := context.Background()

	if err := d.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if d.cookie != "sid=s1" {
		t.Fatalf("unexpected cookie: %q", d.cookie)
	}
	if err := d.RenewIP(ctx); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if router.logins != 1 || router.resets != 1 || router.lastCookie != "sid=s1" {
		t.Fatalf("unexpected router state: %+v", router)
	}
}

func TestDLinkRenewReloginsOnExpiredSession(t *testing.T) {
	router := &fakeDLink{expireResets: 2}
	d := newTestDLink(t, router)

	if err := d.RenewIP(context.Background()); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if router.logins != 3 || router.resets != 3 || router.lastCookie != "sid=s3" {
		t.Fatalf("unexpected router state: logins=%d resets=%d cookie=%q", router.logins, router.resets, router.lastCookie)
	}
}

func TestDLinkRenewGivesUpAfterRetries(t *testing.T) {
	router := &fakeDLink{expireResets: 100}
	d := newTestDLink(t, router)

	err := d.RenewIP(context.Background())
	if !errors.Is(err, ErrTooManyRetries) {
		t.Fatalf("expected ErrTooManyRetries, got %v", err)
	}
	var public *session.PublicError
	if !errors.As(err, &public) || public.Message == "" {
		t.Fatalf("expected client-safe error, got %T", err)
	}
	if router.resets != dlinkMaxRetries+1 {
		t.Fatalf("unexpected reset attempts: %d", router.resets)
	}
}

func TestDLinkLoginRejected(t *testing.T) {
	router := &fakeDLink{wrongPassword: true}
	d := newTestDLink(t, router)
	if err := d.Init(context.Background()); !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestDLinkInterfaceValidation(t *testing.T) {
	base := DLinkConfig{IP: "192.168.1.1", Username: "admin", Password: "pw"}
	for _, iface := range []string{"wan1/../x", "wan 1", "wan&x"} {
		cfg := base
		cfg.Interface = iface
		if _, err := NewDLink(cfg, nil, testlog.Start(t)); !errors.Is(err, config.ErrInvalidOption) {
			t.Fatalf("interface %q: expected ErrInvalidOption, got %v", iface, err)
		}
	}
	cfg := base
	cfg.Interface = "ppp0?id=1"
	if _, err := NewDLink(cfg, nil, testlog.Start(t)); err != nil {
		t.Fatalf("valid interface rejected: %v", err)
	}
	if _, err := NewDLink(DLinkConfig{IP: "192.168.1.1"}, nil, testlog.Start(t)); !errors.Is(err, config.ErrMissingOption) {
		t.Fatalf("expected ErrMissingOption, got %v", err)
	}
}

func TestHiddenInputs(t *testing.T) {
	got := hiddenInputs(strings.NewReader(dlinkLoginPage), "nonce", "code1", "missing")
	if got["nonce"] != "n0nc3" || got["code1"] != "csrf-tok" {
		t.Fatalf("unexpected fields: %v", got)
	}
	if _, ok := got["missing"]; ok {
		t.Fatalf("unexpected missing field present")
	}
}

func TestFritzBoxResponse(t *testing.T) {
	got, err := fritzBoxResponse("1234567z", "äbc")
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	if got != "1234567z-9e224a41eeefa284df7bb0f26c2913e2" {
		t.Fatalf("unexpected response: %s", got)
	}

	dotted, err := fritzBoxResponse("1234567z", "€bc")
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	plain, _ := fritzBoxResponse("1234567z", ".bc")
	if dotted != plain {
		t.Fatalf("code points above 255 must map to '.': %s != %s", dotted, plain)
	}
}

// fakeFritzBox mimics login_sid.lua and inetstat_monitor.lua.
type fakeFritzBox struct {
	mu          sync.Mutex
	sid         string
	logins      int
	actions     []string
	forbidFirst bool
}

func (f *fakeFritzBox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/login_sid.lua":
		sid := "0000000000000000"
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
			want, _ := fritzBoxResponse("abcd1234", "secret")
			if r.PostForm.Get("response") == want {
				f.logins++
				f.sid = fmt.Sprintf("%016d", f.logins)
				sid = f.sid
			}
		} else if r.URL.Query().Get("sid") != "" && r.URL.Query().Get("sid") == f.sid {
			sid = f.sid
		}
		fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><SessionInfo><SID>%s</SID><Challenge>abcd1234</Challenge><BlockTime>0</BlockTime><Rights></Rights></SessionInfo>`, sid)
	case "/internet/inetstat_monitor.lua":
		q := r.URL.Query()
		if q.Get("xhr") != "1" || q.Get("myXhr") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.forbidFirst || q.Get("sid") != f.sid {
			f.forbidFirst = false
			w.WriteHeader(http.StatusForbidden)
			return
		}
		f.actions = append(f.actions, q.Get("action"))
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestFritzBox(t *testing.T, router *fakeFritzBox, password string) *FritzBox {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	logger := testlog.Start(t)
	f, err := NewFritzBox(FritzBoxConfig{
		IP:       strings.TrimPrefix(srv.URL, "http://"),
		Password: password,
	}, httpclient.New(time.Second, logger), logger)
	if err != nil {
		t.Fatalf("new fritzbox: %v", err)
	}
	return f
}

func TestFritzBoxLoginAndRenew(t *testing.T) {
	router := &fakeFritzBox{}
	f := newTestFritzBox(t, router, "secret")
	ctx := context.Background()

	if err := f.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := f.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if router.logins != 1 {
		t.Fatalf("valid SID should be reused, logins=%d", router.logins)
	}
	if err := f.RenewIP(ctx); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if strings.Join(router.actions, ",") != "disconnect,connect" {
		t.Fatalf("unexpected actions: %v", router.actions)
	}
}

func TestFritzBoxRenewReloginsOnForbidden(t *testing.T) {
	router := &fakeFritzBox{forbidFirst: true}
	f := newTestFritzBox(t, router, "secret")

	if err := f.RenewIP(context.Background()); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if router.logins != 2 {
		t.Fatalf("expected relogin after 403, logins=%d", router.logins)
	}
	if strings.Join(router.actions, ",") != "disconnect,connect" {
		t.Fatalf("unexpected actions: %v", router.actions)
	}
}

func TestFritzBoxWrongPassword(t *testing.T) {
	f := newTestFritzBox(t, &fakeFritzBox{}, "wrong")
	if err := f.RenewIP(context.Background()); !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

type fakeRunner struct {
	calls  []string
	failOn string
}

func (f *fakeRunner) String() string { return "fake" }

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (runner.Result, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.calls = append(f.calls, line)
	if f.failOn != "" && strings.Contains(line, f.failOn) {
		return runner.Result{ExitCode: 1}, &runner.ExitError{Command: line, ExitCode: 1}
	}
	return runner.Result{}, nil
}

func TestFritzBoxLocalRenew(t *testing.T) {
	r := &fakeRunner{}
	f := NewFritzBoxLocal(r, "", testlog.Start(t))
	if err := f.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := f.RenewIP(context.Background()); err != nil {
		t.Fatalf("renew: %v", err)
	}
	want := []string{
		"test -x /usr/bin/ctlmgr_ctl",
		"/usr/bin/ctlmgr_ctl w connection0 settings/cmd_disconnect",
		"/usr/bin/ctlmgr_ctl w connection0 settings/cmd_connect",
	}
	if strings.Join(r.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected commands: %q", r.calls)
	}
}

func TestFritzBoxLocalDisconnectFailureStops(t *testing.T) {
	r := &fakeRunner{failOn: "cmd_disconnect"}
	f := NewFritzBoxLocal(r, "", testlog.Start(t))
	err := f.RenewIP(context.Background())
	var exitErr *runner.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("connect must not run after failed disconnect: %q", r.calls)
	}
}

func TestFritzBoxLocalInitRequiresBinary(t *testing.T) {
	f := NewFritzBoxLocal(runner.Local{}, t.TempDir()+"/ctlmgr_ctl", testlog.Start(t))
	if err := f.Init(context.Background()); err == nil {
		t.Fatalf("expected init failure when ctlmgr_ctl is missing")
	}
}

func TestFritzBoxLocalFromConfig(t *testing.T) {
	logger := testlog.Start(t)
	r, err := New(config.Backend{Name: "fritzbox_local"}, logger)
	if err != nil {
		t.Fatalf("new without table: %v", err)
	}
	if _, ok := r.(*FritzBoxLocal).runner.(runner.Local); !ok {
		t.Fatalf("expected local runner by default")
	}

	_, err = New(config.NewBackend("fritzbox_local", "server.renewer.fritzbox_local", "[ssh]\nhost = \"fritz.box\"\n"), logger)
	if !errors.Is(err, config.ErrInvalidOption) {
		t.Fatalf("expected invalid ssh table, got %v", err)
	}

	r, err = New(config.NewBackend("fritzbox_local", "server.renewer.fritzbox_local",
		"[ssh]\nhost = \"fritz.box\"\nuser = \"root\"\nkey_path = \"/root/.ssh/id_ed25519\"\n"), logger)
	if err != nil {
		t.Fatalf("new with ssh: %v", err)
	}
	if got := r.(*FritzBoxLocal).runner.String(); got != "ssh://root@fritz.box:22" {
		t.Fatalf("unexpected runner: %s", got)
	}
}
