package radio

import (
	"errors"
	"strings"
)

// ErrInvalidMAC is returned when a MAC does not contain exactly 12 hex digits
// after separators are stripped.
var ErrInvalidMAC = errors.New("invalid mac address")

const macHexLen = 12

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// NormalizeMAC canonicalizes a MAC address to lowercase hex with separators
// stripped, so "50:FF:20:EC:90:D7" and "50ff20ec90d7" collide to the same
// emitter key. Normalization is idempotent.
func NormalizeMAC(s string) (string, error) {
	var b strings.Builder
	b.Grow(macHexLen)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isHexDigit(c):
			if c >= 'A' && c <= 'F' {
				c += 'a' - 'A'
			}
			b.WriteByte(c)
		case c == ':' || c == '-':
			// separator, dropped
		default:
			return "", ErrInvalidMAC
		}
	}
	if b.Len() != macHexLen {
		return "", ErrInvalidMAC
	}
	return b.String(), nil
}
