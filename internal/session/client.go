package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Robertof/oxixenon/internal/protocol"
	"github.com/rs/zerolog"
)

// Client sends one request per connection to a renewal server.
type Client struct {
	addr   string
	cfg    Config
	logger zerolog.Logger
}

func NewClient(addr string, cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		addr:   strings.TrimSpace(addr),
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "session.client").Logger(),
	}
}

// Exchange dials the server, writes req and returns the single response.
func (c *Client) Exchange(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
	switch req.(type) {
	case protocol.FreshIPRequest, protocol.SetRenewingAvailable:
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, req)
	}
	if c.addr == "" {
		return nil, fmt.Errorf("session: server address required")
	}

	c.logger.Debug().Str("addr", c.addr).Msg("connecting")
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	// Each deadline set below can overwrite the one installed on cancellation,
	// so ctx is checked again after every update.
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := bufio.NewWriter(conn)
	if err := protocol.Encode(w, req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Tag(), err)
	}
	if err := w.Flush(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send %s: %w", req.Tag(), err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := protocol.Decode(bufio.NewReader(conn))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug().Str("request", req.Tag().String()).Str("response", resp.Tag().String()).Msg("exchange complete")
	return resp, nil
}

// RenewIP asks the server for a fresh IP address.
func (c *Client) RenewIP(ctx context.Context) error {
	resp, err := c.Exchange(ctx, protocol.FreshIPRequest{})
	if err != nil {
		return err
	}
	return expectOk(resp)
}

// SetAvailability updates the server renewal gate.
func (c *Client) SetAvailability(ctx context.Context, a protocol.RenewAvailability) error {
	resp, err := c.Exchange(ctx, protocol.SetRenewingAvailable{Availability: a})
	if err != nil {
		return err
	}
	return expectOk(resp)
}

func expectOk(resp protocol.Packet) error {
	switch p := resp.(type) {
	case protocol.Ok:
		return nil
	case protocol.ErrorPacket:
		return &RemoteError{Message: p.Message}
	default:
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, resp)
	}
}
