package session

import (
	"errors"
	"fmt"
	"os"

	"github.com/Robertof/oxixenon/internal/protocol"
)

var (
	ErrInvalidRequest     = errors.New("session: packet is not a client request")
	ErrUnexpectedResponse = errors.New("session: unexpected response packet")

	errRenewalFailed = errors.New("session: ip renewal failed")
	errNotifyFailed  = errors.New("session: event notification failed")
)

// Messages sent to peers in Error packets.
const (
	MsgUnknownPacket      = "Unknown packet"
	MsgRenewalUnavailable = "Renewal unavailable: "
	MsgTimedOut           = "Request timed out"
	MsgMalformed          = "Malformed or incomplete request"
	MsgInvalidPayload     = "Invalid request payload"
	MsgRenewalFailed      = "IP renewal failed"
	MsgNotifyFailed       = "Renewal succeeded but notification failed"
	MsgInternal           = "Internal server error"
)

// RemoteError is an Error packet received from the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// PublicError is a failure whose message is safe to send to the peer verbatim.
// Renewers return it to surface a specific reason to clients.
type PublicError struct {
	Message string
	Err     error
}

func NewPublicError(message string, err error) *PublicError {
	return &PublicError{Message: message, Err: err}
}

func (e *PublicError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PublicError) Unwrap() error {
	return e.Err
}

// clientMessage maps an internal failure to the text sent in an Error packet.
// Raw error strings never leave the server unless wrapped in a PublicError.
func clientMessage(err error) string {
	var public *PublicError
	switch {
	case errors.As(err, &public):
		return public.Message
	case errors.Is(err, errRenewalFailed):
		return MsgRenewalFailed
	case errors.Is(err, errNotifyFailed):
		return MsgNotifyFailed
	case errors.Is(err, os.ErrDeadlineExceeded):
		return MsgTimedOut
	case errors.Is(err, protocol.ErrTruncated):
		return MsgMalformed
	case errors.Is(err, protocol.ErrUnknownVariant):
		return MsgUnknownPacket
	case errors.Is(err, protocol.ErrMissingField),
		errors.Is(err, protocol.ErrInvalidUTF8),
		errors.Is(err, protocol.ErrPayloadTooLarge):
		return MsgInvalidPayload
	default:
		return MsgInternal
	}
}
