package protocol

import "fmt"

// PacketTag is the leading byte of every packet.
type PacketTag uint8

const (
	TagFreshIPRequest       PacketTag = 0
	TagOk                   PacketTag = 1
	TagError                PacketTag = 2
	TagEvent                PacketTag = 3
	TagSetRenewingAvailable PacketTag = 4
)

func (t PacketTag) String() string {
	switch t {
	case TagFreshIPRequest:
		return "fresh_ip_request"
	case TagOk:
		return "ok"
	case TagError:
		return "error"
	case TagEvent:
		return "event"
	case TagSetRenewingAvailable:
		return "set_renewing_available"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// UnknownErrorMessage replaces an absent Error packet message on decode.
const UnknownErrorMessage = "Unknown error"

// MaxEventPacketSize is the largest encoding of an Event packet.
const MaxEventPacketSize = 3

// Packet is one framed unit of the wire protocol.
// The set of implementations is closed to this package.
type Packet interface {
	Tag() PacketTag
	isPacket()
}

// FreshIPRequest asks the server to renew the router IP. client -> server.
type FreshIPRequest struct{}

// SetRenewingAvailable updates the server availability gate. client -> server.
type SetRenewingAvailable struct {
	Availability RenewAvailability
}

// Ok acknowledges a request. server -> client.
type Ok struct{}

// ErrorPacket carries a client-safe failure reason. server -> client.
type ErrorPacket struct {
	Message string
}

// EventPacket is broadcast by notifiers. notifier -> listener.
type EventPacket struct {
	Event Event
}

func (FreshIPRequest) Tag() PacketTag       { return TagFreshIPRequest }
func (Ok) Tag() PacketTag                   { return TagOk }
func (ErrorPacket) Tag() PacketTag          { return TagError }
func (EventPacket) Tag() PacketTag          { return TagEvent }
func (SetRenewingAvailable) Tag() PacketTag { return TagSetRenewingAvailable }

func (FreshIPRequest) isPacket()       {}
func (Ok) isPacket()                   {}
func (ErrorPacket) isPacket()          {}
func (EventPacket) isPacket()          {}
func (SetRenewingAvailable) isPacket() {}

func (p ErrorPacket) String() string {
	return fmt.Sprintf("error(%q)", p.Message)
}

func (p SetRenewingAvailable) String() string {
	return fmt.Sprintf("set_renewing_available(%s)", p.Availability)
}

func (p EventPacket) String() string {
	return fmt.Sprintf("event(%s)", p.Event)
}

// availability tags
const (
	availabilityAvailable   uint8 = 0
	availabilityUnavailable uint8 = 1
)

// RenewAvailability is the server-side gate state. The zero value is available.
type RenewAvailability struct {
	Unavailable bool
	Reason      string
}

// Available returns the open gate state.
func Available() RenewAvailability {
	return RenewAvailability{}
}

// Unavailable returns a closed gate state carrying reason.
func Unavailable(reason string) RenewAvailability {
	return RenewAvailability{Unavailable: true, Reason: reason}
}

func (a RenewAvailability) IsAvailable() bool {
	return !a.Unavailable
}

func (a RenewAvailability) String() string {
	if !a.Unavailable {
		return "available"
	}
	return fmt.Sprintf("unavailable due to %q", a.Reason)
}

// Event codes are hand-assigned and never reused.
type Event uint8

const (
	EventIPRenewed Event = 0
)

func (e Event) String() string {
	switch e {
	case EventIPRenewed:
		return "ip renewed"
	default:
		return fmt.Sprintf("unknown event %d", uint8(e))
	}
}

// Description is the long human-readable form shown to notification subscribers.
func (e Event) Description() string {
	switch e {
	case EventIPRenewed:
		return "An IP renewal has been requested"
	default:
		return e.String()
	}
}

func (e Event) known() bool {
	switch e {
	case EventIPRenewed:
		return true
	default:
		return false
	}
}
