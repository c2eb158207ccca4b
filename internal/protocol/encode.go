package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Encode writes p to w. The packet is assembled in memory first so a payload
// error never leaves a partial packet on the stream.
func Encode(w io.Writer, p Packet) error {
	buf, err := Marshal(p)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Marshal returns the wire encoding of p.
func Marshal(p Packet) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("protocol: nil packet")
	}
	return appendPacket(make([]byte, 0, 8), p)
}

// Encode writes the availability tag and, when unavailable, its reason.
func (a RenewAvailability) Encode(w io.Writer) error {
	buf, err := a.appendTo(nil)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Encode writes the event code as a single byte.
func (e Event) Encode(w io.Writer) error {
	buf, err := e.appendTo(nil)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func appendPacket(dst []byte, p Packet) ([]byte, error) {
	dst = append(dst, byte(p.Tag()))
	switch v := p.(type) {
	case FreshIPRequest, Ok:
		return dst, nil
	case ErrorPacket:
		return appendString(dst, v.Message)
	case EventPacket:
		return v.Event.appendTo(dst)
	case SetRenewingAvailable:
		return v.Availability.appendTo(dst)
	default:
		return nil, UnknownVariantError{Kind: "packet", Value: uint8(p.Tag())}
	}
}

func (a RenewAvailability) appendTo(dst []byte) ([]byte, error) {
	if !a.Unavailable {
		return append(dst, availabilityAvailable), nil
	}
	if a.Reason == "" {
		return dst, MissingFieldError{Field: "reason"}
	}
	dst = append(dst, availabilityUnavailable)
	return appendString(dst, a.Reason)
}

func (e Event) appendTo(dst []byte) ([]byte, error) {
	if !e.known() {
		return dst, UnknownVariantError{Kind: "event", Value: uint8(e)}
	}
	return append(dst, byte(e)), nil
}

// Unmarshal decodes exactly one packet from b. Trailing bytes are ignored.
func Unmarshal(b []byte) (Packet, error) {
	return Decode(bytes.NewReader(b))
}
