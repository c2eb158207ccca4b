package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Decode reads a single packet from r.
func Decode(r io.Reader) (Packet, error) {
	tag, err := readByte(r)
	if err != nil {
		return nil, err
	}

	switch PacketTag(tag) {
	case TagFreshIPRequest:
		return FreshIPRequest{}, nil
	case TagOk:
		return Ok{}, nil
	case TagError:
		msg, ok, err := ReadString(r)
		if err != nil {
			return nil, fmt.Errorf("error packet message: %w", err)
		}
		if !ok {
			msg = UnknownErrorMessage
		}
		return ErrorPacket{Message: msg}, nil
	case TagEvent:
		ev, err := DecodeEvent(r)
		if err != nil {
			return nil, err
		}
		return EventPacket{Event: ev}, nil
	case TagSetRenewingAvailable:
		a, err := DecodeRenewAvailability(r)
		if err != nil {
			return nil, err
		}
		return SetRenewingAvailable{Availability: a}, nil
	default:
		return nil, UnknownVariantError{Kind: "packet", Value: tag}
	}
}

// DecodeRenewAvailability reads an availability value. An unavailable state
// must carry a non-empty reason.
func DecodeRenewAvailability(r io.Reader) (RenewAvailability, error) {
	tag, err := readByte(r)
	if err != nil {
		return RenewAvailability{}, err
	}
	switch tag {
	case availabilityAvailable:
		return Available(), nil
	case availabilityUnavailable:
		reason, ok, err := ReadString(r)
		if err != nil {
			return RenewAvailability{}, fmt.Errorf("availability reason: %w", err)
		}
		if !ok {
			return RenewAvailability{}, MissingFieldError{Field: "reason"}
		}
		return Unavailable(reason), nil
	default:
		return RenewAvailability{}, UnknownVariantError{Kind: "availability", Value: tag}
	}
}

// DecodeEvent reads a one-byte event code.
func DecodeEvent(r io.Reader) (Event, error) {
	code, err := readByte(r)
	if err != nil {
		return 0, err
	}
	ev := Event(code)
	if !ev.known() {
		return 0, UnknownVariantError{Kind: "event", Value: code}
	}
	return ev, nil
}

func readByte(r io.Reader) (uint8, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// readFull maps short reads to ErrTruncated while keeping the I/O cause.
// Other transport failures (deadlines, resets) pass through unchanged.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		return err
	}
	return nil
}
