package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
	ErrTruncated       = errors.New("protocol: truncated data")
	ErrInvalidUTF8     = errors.New("protocol: invalid utf-8 string")
	ErrUnknownVariant  = errors.New("protocol: unknown variant")
	ErrMissingField    = errors.New("protocol: missing field")
)

// UnknownVariantError reports a tag or code byte outside the closed vocabulary.
type UnknownVariantError struct {
	Kind  string
	Value uint8
}

func (e UnknownVariantError) Error() string {
	return fmt.Sprintf("protocol: unknown %s variant: %d", e.Kind, e.Value)
}

func (e UnknownVariantError) Unwrap() error {
	return ErrUnknownVariant
}

// MissingFieldError indicates a mandatory sub-field decoded as absent.
type MissingFieldError struct {
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("protocol: missing required field %q", e.Field)
}

func (e MissingFieldError) Unwrap() error {
	return ErrMissingField
}
