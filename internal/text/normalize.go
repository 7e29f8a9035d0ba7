package text

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when input has nothing left to speak.
var ErrEmptyText = errors.New("text is empty")

// Normalize cleans text received from the CLI or HTTP API before it is
// segmented: NFC composition, CR/CRLF folded to LF, control characters other
// than newline and tab dropped, surrounding whitespace trimmed.
func Normalize(s string) (string, error) {
	s = strings.ReplaceAll(norm.NFC.String(s), "\r\n", "\n")

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\r':
			return '\n'
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), r == utf8Bom:
			return -1
		}
		return r
	}, s)

	if s = strings.TrimSpace(s); s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

const utf8Bom = '\uFEFF'
