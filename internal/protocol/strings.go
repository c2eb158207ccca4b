package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxStringLen is the largest string a u16 length prefix can describe.
const MaxStringLen = 1<<16 - 1

// WriteString writes s as a length-prefixed string: a big-endian u16 byte
// length followed by the raw bytes. An empty s is written as length 0, which
// peers read back as absent. Oversized strings fail before anything is written.
func WriteString(w io.Writer, s string) error {
	buf, err := appendString(make([]byte, 0, 2+len(s)), s)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadString reads a length-prefixed string. ok is false when the declared
// length is 0.
func ReadString(r io.Reader) (s string, ok bool, err error) {
	var lenBuf [2]byte
	if err := readFull(r, lenBuf[:]); err != nil {
		return "", false, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 0 {
		return "", false, nil
	}
	body := make([]byte, n)
	if err := readFull(r, body); err != nil {
		return "", false, err
	}
	if !utf8.Valid(body) {
		return "", false, ErrInvalidUTF8
	}
	return string(body), true, nil
}

func appendString(dst []byte, s string) ([]byte, error) {
	if len(s) > MaxStringLen {
		return dst, fmt.Errorf("%w: string of %d bytes exceeds %d", ErrPayloadTooLarge, len(s), MaxStringLen)
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}
