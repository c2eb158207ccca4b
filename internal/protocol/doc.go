// Package protocol owns the oxixenon wire contract.
//
// Ownership boundary:
// - packet tags and payload shapes
// - length-prefixed string encoding
// - decode error taxonomy
//
// Every structure starts with one tag byte. Multi-byte integers are big-endian.
// The packet vocabulary is closed: unknown tags are decode errors.
package protocol
