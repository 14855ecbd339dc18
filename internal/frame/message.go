// Package frame implements the chat wire format: a fixed-width ASCII decimal
// length header followed by a bounded body, with no delimiters between frames.
package frame

import (
	"errors"
	"fmt"
)

const (
	// HeaderSize is the width of the length header in bytes.
	HeaderSize = 4
	// MaxBodySize is the largest body a frame may carry.
	MaxBodySize = 512

	// maxHeaderValue is the largest length representable in HeaderSize digits.
	maxHeaderValue = 9999
)

var (
	// ErrFraming reports a malformed or out-of-range frame header.
	ErrFraming = errors.New("frame: invalid header")
	// ErrEncoding reports a body whose length cannot be written into the header.
	ErrEncoding = errors.New("frame: body length not encodable")
)

// Message is one frame body. Bodies longer than MaxBodySize are truncated on
// construction, so every Message can be encoded.
type Message struct {
	body []byte
}

// NewMessage copies body into a new Message, truncating it to MaxBodySize.
func NewMessage(body []byte) Message {
	if len(body) > MaxBodySize {
		body = body[:MaxBodySize]
	}
	return Message{body: append([]byte(nil), body...)}
}

// NewText is NewMessage for string bodies.
func NewText(text string) Message {
	return NewMessage([]byte(text))
}

// Body returns the message body. Callers must not modify it.
func (m Message) Body() []byte {
	return m.body
}

// Len returns the body length.
func (m Message) Len() int {
	return len(m.body)
}

func (m Message) String() string {
	return string(m.body)
}

// Encode returns the complete frame for the message.
func (m Message) Encode() []byte {
	// Cannot fail: the body never exceeds MaxBodySize.
	buf, _ := Encode(m.body)
	return buf
}

// Encode writes the header for body followed by the body itself.
func Encode(body []byte) ([]byte, error) {
	if len(body) > maxHeaderValue {
		return nil, fmt.Errorf("%w: %d bytes does not fit in a %d-digit header", ErrEncoding, len(body), HeaderSize)
	}

	buf := make([]byte, 0, HeaderSize+len(body))
	buf = fmt.Appendf(buf, "%*d", HeaderSize, len(body))
	return append(buf, body...), nil
}

// DecodeHeader parses a length header. The header must be HeaderSize bytes of
// optional leading spaces followed by decimal digits, and the length it holds
// must not exceed MaxBodySize.
func DecodeHeader(header []byte) (int, error) {
	if len(header) != HeaderSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrFraming, len(header), HeaderSize)
	}

	i := 0
	for i < len(header) && header[i] == ' ' {
		i++
	}
	if i == len(header) {
		return 0, fmt.Errorf("%w: blank header", ErrFraming)
	}

	n := 0
	for _, b := range header[i:] {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("%w: malformed header %q", ErrFraming, header)
		}
		n = n*10 + int(b-'0')
	}

	if n > MaxBodySize {
		return 0, fmt.Errorf("%w: body length %d exceeds %d", ErrFraming, n, MaxBodySize)
	}
	return n, nil
}
