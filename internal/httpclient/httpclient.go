// Package httpclient talks to router web interfaces.
//
// Redirects are returned to the caller instead of being followed, since the
// routers signal login state through them.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   string
}

func (r Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

func (r Response) IsRedirect() bool {
	return r.Status >= 300 && r.Status < 400
}

// Location returns the redirect target, if any.
func (r Response) Location() string {
	return r.Header.Get("Location")
}

type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

func New(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		ResponseHeaderTimeout: timeout,
		DisableKeepAlives:     true,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   2 * timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return c.do(req)
}

// PostForm sends form as application/x-www-form-urlencoded.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Response, error) {
	req.Close = true
	c.logger.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("http request")
	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	c.logger.Debug().Int("status", res.StatusCode).Str("path", req.URL.Path).Msg("http response")
	return Response{
		Status: res.StatusCode,
		Header: res.Header,
		Body:   string(body),
	}, nil
}
