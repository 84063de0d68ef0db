package offset

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrOutOfRange indicates a character offset past the end of the source.
var ErrOutOfRange = errors.New("character offset out of range")

// ByteOffset returns the byte offset of the character offset charOffset in src.
//
// A UTF16 offset that falls between the two halves of a surrogate pair
// resolves to the start of that code point.
func ByteOffset(src []byte, charOffset int, unit Unit) (int, error) {
	if charOffset < 0 {
		return 0, fmt.Errorf("offset %d: %w", charOffset, ErrOutOfRange)
	}

	chars := 0
	for i := 0; i < len(src); {
		if chars >= charOffset {
			return i, nil
		}
		r, size := utf8.DecodeRune(src[i:])
		w := unit.Width(r)
		if chars+w > charOffset {
			return i, nil
		}
		chars += w
		i += size
	}

	if chars == charOffset {
		return len(src), nil
	}
	return 0, fmt.Errorf("offset %d beyond %d characters: %w", charOffset, chars, ErrOutOfRange)
}

// ByteRange converts the character range [start, end) in src into a byte
// offset and byte length.
func ByteRange(src []byte, start, end int, unit Unit) (offset, length int, err error) {
	if end < start {
		return 0, 0, fmt.Errorf("range [%d, %d): end before start: %w", start, end, ErrOutOfRange)
	}

	offset, err = ByteOffset(src, start, unit)
	if err != nil {
		return 0, 0, err
	}
	if end == start {
		return offset, 0, nil
	}

	n, err := ByteOffset(src[offset:], end-start, unit)
	if err != nil {
		return 0, 0, fmt.Errorf("range [%d, %d): %w", start, end, err)
	}
	return offset, n, nil
}
