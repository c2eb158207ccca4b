package config

import (
	"errors"
	"fmt"
)

var (
	ErrMissingOption = errors.New("config: missing option")
	ErrInvalidOption = errors.New("config: invalid option")
)

// MissingOptionError names a required option that is absent from both the
// command line and the config file.
type MissingOptionError struct {
	Name string
}

func (e MissingOptionError) Error() string {
	return fmt.Sprintf("missing configuration option: %s", e.Name)
}

func (e MissingOptionError) Unwrap() error {
	return ErrMissingOption
}

// InvalidOptionError names an option whose value cannot be used.
type InvalidOptionError struct {
	Name   string
	Reason string
}

func (e InvalidOptionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid configuration option: %s", e.Name)
	}
	return fmt.Sprintf("invalid configuration option: %s: %s", e.Name, e.Reason)
}

func (e InvalidOptionError) Unwrap() error {
	return ErrInvalidOption
}
