// Package offset converts between UTF-8 byte offsets and character offsets.
//
// The formatter reports positions as byte offsets into the UTF-8 encoding
// of the source. Documents address text in characters, measured in a
// Unit: Unicode code points (Runes) or UTF-16 code units (UTF16).
//
// Translator handles the tool-to-document direction with a single forward
// cache, so a stream of non-decreasing offsets costs one linear pass over
// the source. ByteOffset and ByteRange handle the one-shot
// document-to-tool direction used for request ranges.
package offset

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Unit is the addressing unit of a character offset.
type Unit int

const (
	// Runes counts Unicode code points.
	Runes Unit = iota
	// UTF16 counts UTF-16 code units, as LSP clients and browsers do.
	UTF16
)

// String returns the unit name.
func (u Unit) String() string {
	switch u {
	case Runes:
		return "runes"
	case UTF16:
		return "utf16"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// ParseUnit parses a unit name. The empty string selects Runes.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "runes", "rune", "codepoints":
		return Runes, nil
	case "utf16", "utf-16":
		return UTF16, nil
	default:
		return Runes, fmt.Errorf("unknown offset unit %q", s)
	}
}

// Width returns the number of units r occupies.
func (u Unit) Width(r rune) int {
	if u == UTF16 {
		if n := utf16.RuneLen(r); n > 0 {
			return n
		}
	}
	return 1
}

// Count returns the number of units in b.
// Invalid UTF-8 bytes count as one unit each.
func (u Unit) Count(b []byte) int {
	if u == Runes {
		return utf8.RuneCount(b)
	}

	n := 0
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		n += u.Width(r)
		i += size
	}
	return n
}
