package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Backend is a named pluggable component (renewer, notifier) together with
// its opaque per-backend table. Each backend decodes the table into its own
// settings type.
type Backend struct {
	Name    string
	Section string

	decode func(v any) error
}

// NewBackend builds a backend whose settings are the TOML document body.
// An empty body means the backend has no table.
func NewBackend(name, section, body string) Backend {
	b := Backend{Name: name, Section: section}
	if body == "" {
		return b
	}
	b.decode = func(v any) error {
		_, err := toml.Decode(body, v)
		return err
	}
	return b
}

func primitiveBackend(name, section string, meta *toml.MetaData, prim toml.Primitive) Backend {
	return Backend{
		Name:    name,
		Section: section,
		decode: func(v any) error {
			return meta.PrimitiveDecode(prim, v)
		},
	}
}

// Configured reports whether the backend has a settings table.
func (b Backend) Configured() bool {
	return b.decode != nil
}

// Decode fills v from the backend table.
func (b Backend) Decode(v any) error {
	if b.decode == nil {
		return MissingOptionError{Name: b.Section}
	}
	if err := b.decode(v); err != nil {
		return InvalidOptionError{Name: b.Section, Reason: err.Error()}
	}
	return nil
}

func (b Backend) String() string {
	return fmt.Sprintf("%s (%s)", b.Name, b.Section)
}
