package offset

import (
	"unicode/utf8"

	ferrors "github.com/dshills/clangfmt/internal/errors"
)

// Translator converts byte offsets in a UTF-8 source into character offsets.
//
// It keeps one (lastByte, lastChar) pair. Requests at or after lastByte only
// decode the bytes in between; a request before lastByte decodes from the
// start of the source and moves the cache back. Offsets that arrive in
// ascending order therefore decode every byte at most once.
//
// A Translator is not safe for concurrent use.
type Translator struct {
	src  []byte
	unit Unit

	lastByte int
	lastChar int
}

// NewTranslator creates a translator over src.
func NewTranslator(src []byte, unit Unit) *Translator {
	return &Translator{src: src, unit: unit}
}

// Unit returns the character unit the translator produces.
func (t *Translator) Unit() Unit {
	return t.unit
}

// Len returns the length of the source in bytes.
func (t *Translator) Len() int {
	return len(t.src)
}

// Translate returns the character offset of byteOffset.
// Offsets outside [0, Len()] are a protocol violation.
func (t *Translator) Translate(byteOffset int) (int, error) {
	if byteOffset == 0 {
		return 0, nil
	}
	if byteOffset < 0 || byteOffset > len(t.src) {
		return 0, ferrors.MalformedAt(byteOffset, "offset outside %d-byte source", len(t.src))
	}
	if t.splitsRune(byteOffset) {
		return 0, ferrors.MalformedAt(byteOffset, "offset splits a UTF-8 sequence")
	}

	if byteOffset >= t.lastByte {
		t.lastChar += t.unit.Count(t.src[t.lastByte:byteOffset])
		t.lastByte = byteOffset
		return t.lastChar, nil
	}

	// Backward seek.
	t.lastChar = t.unit.Count(t.src[:byteOffset])
	t.lastByte = byteOffset
	return t.lastChar, nil
}

// TranslateLength returns the character length of the byte span
// [byteOffset, byteOffset+byteLength). The cache is neither used nor updated.
func (t *Translator) TranslateLength(byteOffset, byteLength int) (int, error) {
	if byteOffset < 0 || byteOffset > len(t.src) {
		return 0, ferrors.MalformedAt(byteOffset, "offset outside %d-byte source", len(t.src))
	}
	if byteLength == 0 {
		return 0, nil
	}
	if byteLength < 0 || byteLength > len(t.src)-byteOffset {
		return 0, ferrors.MalformedAt(byteOffset, "length %d runs past end of %d-byte source", byteLength, len(t.src))
	}
	if t.splitsRune(byteOffset) {
		return 0, ferrors.MalformedAt(byteOffset, "offset splits a UTF-8 sequence")
	}
	if end := byteOffset + byteLength; t.splitsRune(end) {
		return 0, ferrors.MalformedAt(end, "span end splits a UTF-8 sequence")
	}
	return t.unit.Count(t.src[byteOffset : byteOffset+byteLength]), nil
}

// splitsRune reports whether i falls inside a valid multi-byte sequence.
// Stray continuation bytes are characters of their own and may be split.
func (t *Translator) splitsRune(i int) bool {
	if i <= 0 || i >= len(t.src) || utf8.RuneStart(t.src[i]) {
		return false
	}
	for j := i - 1; j >= 0 && j >= i-(utf8.UTFMax-1); j-- {
		if !utf8.RuneStart(t.src[j]) {
			continue
		}
		r, size := utf8.DecodeRune(t.src[j:])
		return !(r == utf8.RuneError && size == 1) && j+size > i
	}
	return false
}
