package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Robertof/oxixenon/internal/observability"
	"github.com/Robertof/oxixenon/internal/protocol"
	"github.com/rs/zerolog"
)

// Renewer performs one router IP renewal.
type Renewer interface {
	RenewIP(ctx context.Context) error
}

// Notifier broadcasts an event after a successful renewal.
type Notifier interface {
	Notify(ctx context.Context, ev protocol.Event) error
}

// Metrics receives per-request outcomes.
type Metrics interface {
	SessionRequest(packet, result string, duration time.Duration)
	Renewal(result string)
}

type nopMetrics struct{}

func (nopMetrics) SessionRequest(string, string, time.Duration) {}
func (nopMetrics) Renewal(string)                               {}

// Server handles renewal requests one connection at a time.
type Server struct {
	cfg      ServerConfig
	renewer  Renewer
	notifier Notifier
	logger   zerolog.Logger
	metrics  Metrics

	mu           sync.RWMutex
	availability protocol.RenewAvailability
}

// NewServer returns a server that starts in the available state. A nil
// metrics sink disables recording.
func NewServer(cfg ServerConfig, renewer Renewer, notifier Notifier, logger zerolog.Logger, metrics Metrics) *Server {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	cfg.Config = cfg.Config.withDefaults()
	return &Server{
		cfg:      cfg,
		renewer:  renewer,
		notifier: notifier,
		logger:   logger.With().Str("component", "session.server").Logger(),
		metrics:  metrics,
	}
}

// Availability returns the current renewal gate.
func (s *Server) Availability() protocol.RenewAvailability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availability
}

func (s *Server) setAvailability(a protocol.RenewAvailability) {
	s.mu.Lock()
	s.availability = a
	s.mu.Unlock()
}

// ListenAndServe binds cfg.BindTo and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.BindTo)
	if addr == "" {
		return fmt.Errorf("session: bind address required")
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln and handles each to completion before
// accepting the next. It closes ln and returns nil once ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	start := time.Now()
	peer := conn.RemoteAddr().String()
	logger := s.logger.With().Str("peer", peer).Logger()
	logger.Debug().Msg("client connected")

	w := bufio.NewWriter(conn)
	packetLabel := "invalid"
	resp, err := func() (protocol.Packet, error) {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		req, err := protocol.Decode(bufio.NewReader(conn))
		if err != nil {
			return nil, err
		}
		packetLabel = req.Tag().String()
		return s.handle(ctx, logger, req)
	}()

	result := observability.ResultOK
	if err != nil {
		result = observability.ResultError
		logger.Warn().Err(err).Msg("client produced error")
		resp = protocol.ErrorPacket{Message: clientMessage(err)}
	} else if _, rejected := resp.(protocol.ErrorPacket); rejected {
		result = observability.ResultRejected
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if werr := writePacket(w, resp); werr != nil {
		if err != nil {
			logger.Debug().Err(werr).Msg("error response not delivered")
		} else {
			logger.Warn().Err(werr).Msg("response not delivered")
		}
	}
	s.metrics.SessionRequest(packetLabel, result, time.Since(start))
}

// handle performs at most one unit of work for req. Error packets returned
// with a nil error are deliberate rejections.
func (s *Server) handle(ctx context.Context, logger zerolog.Logger, req protocol.Packet) (protocol.Packet, error) {
	switch p := req.(type) {
	case protocol.FreshIPRequest:
		logger.Info().Msg("requested new IP address")
		if a := s.Availability(); !a.IsAvailable() {
			logger.Warn().Str("reason", a.Reason).Msg("renewal rejected")
			return protocol.ErrorPacket{Message: MsgRenewalUnavailable + a.Reason}, nil
		}
		if err := s.renewer.RenewIP(ctx); err != nil {
			s.metrics.Renewal(observability.ResultError)
			return nil, fmt.Errorf("%w: %w", errRenewalFailed, err)
		}
		s.metrics.Renewal(observability.ResultOK)
		if err := s.notifier.Notify(ctx, protocol.EventIPRenewed); err != nil {
			return nil, fmt.Errorf("%w: %w", errNotifyFailed, err)
		}
		return protocol.Ok{}, nil
	case protocol.SetRenewingAvailable:
		logger.Info().Stringer("availability", p.Availability).Msg("set availability")
		s.setAvailability(p.Availability)
		return protocol.Ok{}, nil
	default:
		logger.Warn().Str("packet", req.Tag().String()).Msg("unexpected packet")
		return protocol.ErrorPacket{Message: MsgUnknownPacket}, nil
	}
}

// writePacket falls back to a generic error when p cannot be encoded, so the
// peer always receives exactly one response.
func writePacket(w *bufio.Writer, p protocol.Packet) error {
	if err := protocol.Encode(w, p); err != nil {
		if !errors.Is(err, protocol.ErrPayloadTooLarge) {
			return err
		}
		if err := protocol.Encode(w, protocol.ErrorPacket{Message: MsgInternal}); err != nil {
			return err
		}
	}
	return w.Flush()
}
