// Package protocol implements the payload format shared with the peripheral:
// raw UTF-8 text with no framing or length prefix.
package protocol

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxAttributeLen is the largest value an ATT attribute can hold.
const MaxAttributeLen = 512

// ErrInvalidText is returned when outgoing text is not valid UTF-8.
var ErrInvalidText = errors.New("protocol: text is not valid UTF-8")

// DecodingError reports a payload that is not valid UTF-8.
type DecodingError struct {
	Offset int  // byte offset of the first invalid sequence
	Byte   byte // first byte of that sequence
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("protocol: invalid UTF-8 at byte %d (0x%02x)", e.Offset, e.Byte)
}

// EncodeText returns the wire bytes for text.
func EncodeText(text string) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidText
	}
	return []byte(text), nil
}

// DecodeText converts a payload to a string. Invalid sequences are reported,
// never replaced.
func DecodeText(data []byte) (string, error) {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return "", &DecodingError{Offset: i, Byte: data[i]}
		}
		i += size
	}
	return string(data), nil
}

// Truncate shortens text to at most maxBytes without splitting a UTF-8
// character. Used for log previews of payloads.
func Truncate(text string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(text) <= maxBytes {
		return text
	}
	split := maxBytes
	// Walk back until we're at the start of a rune.
	for split > 0 && !utf8.RuneStart(text[split]) {
		split--
	}
	return text[:split]
}
