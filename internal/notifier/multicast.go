package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/Robertof/oxixenon/internal/observability"
	"github.com/Robertof/oxixenon/internal/protocol"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

var ErrJoinGroup = errors.New("notifier: can't join multicast group")

const (
	defaultMulticastTTL = 1
	sendTimeout         = 5 * time.Second
)

// MulticastConfig is the [notifier.multicast] table.
type MulticastConfig struct {
	Addr      string `toml:"addr"`
	BindAddr  string `toml:"bind_addr"`
	Interface string `toml:"interface"`
	Loopback  *bool  `toml:"loopback"`
	TTL       int    `toml:"ttl"`
}

// Multicast sends each event as one UDP datagram to an IPv4 group.
type Multicast struct {
	group    *net.UDPAddr
	bind     *net.UDPAddr
	ifi      *net.Interface
	loopback bool
	ttl      int
	logger   zerolog.Logger
}

func newMulticastFromConfig(backend config.Backend, logger zerolog.Logger) (Notifier, error) {
	var cfg MulticastConfig
	if err := backend.Decode(&cfg); err != nil {
		return nil, err
	}
	return NewMulticast(cfg, logger)
}

func NewMulticast(cfg MulticastConfig, logger zerolog.Logger) (*Multicast, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, config.MissingOptionError{Name: "notifier.multicast.addr"}
	}
	if strings.TrimSpace(cfg.BindAddr) == "" {
		return nil, config.MissingOptionError{Name: "notifier.multicast.bind_addr"}
	}
	group, err := net.ResolveUDPAddr("udp4", strings.TrimSpace(cfg.Addr))
	if err != nil {
		return nil, config.InvalidOptionError{Name: "notifier.multicast.addr", Reason: err.Error()}
	}
	if group.IP.To4() == nil || !group.IP.IsMulticast() {
		return nil, config.InvalidOptionError{
			Name:   "notifier.multicast.addr",
			Reason: fmt.Sprintf("%s is not an IPv4 multicast address", group.IP),
		}
	}
	bind, err := net.ResolveUDPAddr("udp4", strings.TrimSpace(cfg.BindAddr))
	if err != nil {
		return nil, config.InvalidOptionError{Name: "notifier.multicast.bind_addr", Reason: err.Error()}
	}

	m := &Multicast{
		group:    group,
		bind:     bind,
		loopback: true,
		ttl:      defaultMulticastTTL,
		logger:   logger,
	}
	if cfg.Loopback != nil {
		m.loopback = *cfg.Loopback
	}
	if cfg.TTL != 0 {
		if cfg.TTL < 0 || cfg.TTL > 255 {
			return nil, config.InvalidOptionError{Name: "notifier.multicast.ttl", Reason: "must be between 1 and 255"}
		}
		m.ttl = cfg.TTL
	}
	if name := strings.TrimSpace(cfg.Interface); name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, config.InvalidOptionError{Name: "notifier.multicast.interface", Reason: err.Error()}
		}
		m.ifi = ifi
	}
	m.logger.Trace().Str("addr", group.String()).Str("bind_addr", bind.String()).Msg("initialized")
	return m, nil
}

// Group returns the destination group address.
func (m *Multicast) Group() *net.UDPAddr {
	return m.group
}

func (m *Multicast) Notify(ctx context.Context, ev protocol.Event) (err error) {
	defer func() {
		observability.RecordNotification(observability.DirectionSent, err)
	}()

	payload, err := protocol.Marshal(protocol.EventPacket{Event: ev})
	if err != nil {
		return err
	}
	conn, err := listenUDP(ctx, m.bind)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(m.ttl); err != nil {
		return fmt.Errorf("set multicast ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(m.loopback); err != nil {
		return fmt.Errorf("set multicast loopback: %w", err)
	}
	if m.ifi != nil {
		if err := p.SetMulticastInterface(m.ifi); err != nil {
			return fmt.Errorf("set multicast interface: %w", err)
		}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(sendTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)
	if _, err := conn.WriteTo(payload, m.group); err != nil {
		return fmt.Errorf("send event to %s: %w", m.group, err)
	}
	m.logger.Debug().Stringer("event", ev).Msg("event notified")
	return nil
}

func (m *Multicast) Listen(ctx context.Context, fn Handler) error {
	conn, err := listenUDP(ctx, m.bind)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(m.ifi, &net.UDPAddr{IP: m.group.IP}); err != nil {
		return fmt.Errorf("%w %s: %w", ErrJoinGroup, m.group.IP, err)
	}
	defer func() {
		_ = p.LeaveGroup(m.ifi, &net.UDPAddr{IP: m.group.IP})
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	m.logger.Info().Str("group", m.group.String()).Str("bind_addr", conn.LocalAddr().String()).Msg("listening")
	buf := make([]byte, protocol.MaxEventPacketSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive event: %w", err)
		}
		pkt, err := protocol.Unmarshal(buf[:n])
		if err != nil {
			observability.RecordNotification(observability.DirectionReceived, err)
			m.logger.Warn().Err(err).Stringer("from", from).Msg("can't decode incoming packet")
			continue
		}
		event, ok := pkt.(protocol.EventPacket)
		if !ok {
			m.logger.Warn().Str("packet", pkt.Tag().String()).Stringer("from", from).Msg("ignoring non-event packet")
			continue
		}
		observability.RecordNotification(observability.DirectionReceived, nil)
		m.logger.Debug().Stringer("event", event.Event).Stringer("from", from).Msg("received event")
		fn(event.Event, from)
	}
}

func listenUDP(ctx context.Context, addr *net.UDPAddr) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return conn, nil
}
