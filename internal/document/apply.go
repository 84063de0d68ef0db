// Package document applies formatting edits to text.
package document

import (
	"strings"
	"unicode/utf8"

	ferrors "github.com/dshills/clangfmt/internal/errors"
	"github.com/dshills/clangfmt/internal/format"
	"github.com/dshills/clangfmt/internal/offset"
)

// Apply applies edits to text in one forward pass.
//
// Edits must ascend, must not overlap and must lie within text. Otherwise
// Apply returns an ApplyFailure and the text is not modified.
func Apply(text string, edits []format.Edit, unit offset.Unit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))

	c := cursor{text: text, unit: unit}
	prevEnd := 0
	for i, e := range edits {
		if e.Start > e.End {
			return "", &ferrors.ApplyError{Index: i, Reason: "start after end"}
		}
		if e.Start < prevEnd {
			return "", &ferrors.ApplyError{Index: i, Reason: "overlaps or precedes the previous edit"}
		}

		start, ok := c.seek(e.Start)
		if !ok {
			return "", &ferrors.ApplyError{Index: i, Reason: "start past end of document"}
		}
		b.WriteString(text[c.written:start])

		end, ok := c.seek(e.End)
		if !ok {
			return "", &ferrors.ApplyError{Index: i, Reason: "end past end of document"}
		}
		b.WriteString(e.Text)
		c.written = end
		prevEnd = e.End
	}
	b.WriteString(text[c.written:])
	return b.String(), nil
}

// ApplyResult applies res to text and returns the new text and the cursor
// position, if res carries one.
func ApplyResult(text string, res *format.Result, unit offset.Unit) (string, *int, error) {
	if res == nil {
		return text, nil, nil
	}
	out, err := Apply(text, res.Edits, unit)
	if err != nil {
		return "", nil, err
	}
	return out, res.Cursor, nil
}

// cursor walks text forward, mapping character offsets to byte offsets.
type cursor struct {
	text string
	unit offset.Unit

	pos     int // byte position
	chars   int // character position at pos
	written int // bytes of text already copied to the output
}

// seek advances to the character offset target and returns its byte offset.
// A UTF-16 target inside a surrogate pair resolves to the start of the pair.
func (c *cursor) seek(target int) (int, bool) {
	for c.chars < target {
		if c.pos >= len(c.text) {
			return 0, false
		}
		r, size := utf8.DecodeRuneInString(c.text[c.pos:])
		w := c.unit.Width(r)
		if c.chars+w > target {
			return c.pos, true
		}
		c.chars += w
		c.pos += size
	}
	return c.pos, true
}
