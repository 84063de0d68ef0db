// Package replacements parses the formatter's replacement report.
//
// clang-format run with -output-replacements-xml writes a document like:
//
//	<?xml version='1.0'?>
//	<replacements xml:space='preserve' incomplete_format='false'>
//	<cursor>12</cursor>
//	<replacement offset='5' length='1'>&#10;  </replacement>
//	</replacements>
//
// Offsets and lengths are UTF-8 byte values. The Parser reads the document
// as a token stream straight off the process output, converts each element's
// offsets to characters through an offset.Translator as soon as the element
// closes, and hands out events one at a time.
package replacements

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	ferrors "github.com/dshills/clangfmt/internal/errors"
	"github.com/dshills/clangfmt/internal/offset"
)

// Element and attribute names of the replacement report.
const (
	elemRoot        = "replacements"
	elemReplacement = "replacement"
	elemCursor      = "cursor"

	attrOffset     = "offset"
	attrLength     = "length"
	attrIncomplete = "incomplete_format"
)

type parseState int

const (
	stateProlog parseState = iota // before the root element
	stateRoot                     // inside the root, between children
	stateReplacement              // inside a replacement element
	stateCursor                   // inside a cursor element
	stateEpilog                   // after the root element closed
	stateDone                     // io.EOF delivered
	stateFailed
)

// Parser is a pull-based iterator over a replacement stream.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	dec *xml.Decoder
	tr  *offset.Translator

	state parseState
	err   error

	// element being assembled
	byteOffset int
	byteLength int
	text       strings.Builder

	summary Summary
}

// NewParser creates a parser reading from r and translating through tr.
func NewParser(r io.Reader, tr *offset.Translator) *Parser {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	return &Parser{dec: dec, tr: tr}
}

// Next returns the next event. It returns io.EOF once the root element has
// closed and the input is exhausted. Any other error is final: subsequent
// calls return the same error.
func (p *Parser) Next() (Event, error) {
	if p.state == stateFailed {
		return Event{}, p.err
	}
	if p.state == stateDone {
		return Event{}, io.EOF
	}

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return Event{}, p.readError(err)
		}

		ev, ok, err := p.handle(tok)
		if err != nil {
			return Event{}, p.fail(err)
		}
		if ok {
			return ev, nil
		}
	}
}

// Summary returns what has been parsed so far. It is complete once Next
// has returned io.EOF.
func (p *Parser) Summary() Summary {
	return p.summary
}

// Incomplete reports whether the formatter flagged its output as incomplete.
func (p *Parser) Incomplete() bool {
	return p.summary.Incomplete
}

func (p *Parser) readError(err error) error {
	if err == io.EOF {
		if p.state == stateEpilog {
			p.state = stateDone
			return io.EOF
		}
		return p.fail(ferrors.Malformed("output ended before </%s>", elemRoot))
	}

	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		return p.fail(&ferrors.MalformedError{Offset: -1, Reason: "invalid XML", Err: err})
	}
	return p.fail(fmt.Errorf("read formatter output: %w", err))
}

func (p *Parser) fail(err error) error {
	p.state = stateFailed
	p.err = err
	return err
}

// handle advances the state machine by one token. ok is true when an event
// was completed.
func (p *Parser) handle(tok xml.Token) (ev Event, ok bool, err error) {
	switch t := tok.(type) {
	case xml.ProcInst, xml.Directive:
		if p.state != stateProlog {
			return ev, false, ferrors.Malformed("unexpected XML declaration inside document")
		}
		return ev, false, nil

	case xml.Comment:
		return ev, false, nil

	case xml.CharData:
		if p.state == stateReplacement || p.state == stateCursor {
			p.text.Write(t)
			return ev, false, nil
		}
		if len(bytes.TrimSpace(t)) != 0 {
			return ev, false, ferrors.Malformed("unexpected text %q", truncate(string(t)))
		}
		return ev, false, nil

	case xml.StartElement:
		return ev, false, p.start(t)

	case xml.EndElement:
		return p.end(t)
	}
	return ev, false, nil
}

func (p *Parser) start(t xml.StartElement) error {
	name := t.Name.Local

	switch p.state {
	case stateProlog:
		if name != elemRoot {
			return ferrors.Malformed("unexpected root element %q", name)
		}
		for _, a := range t.Attr {
			if a.Name.Local == attrIncomplete && a.Value == "true" {
				p.summary.Incomplete = true
			}
		}
		p.state = stateRoot
		return nil

	case stateRoot:
		switch name {
		case elemReplacement:
			off, err := byteAttr(t, attrOffset)
			if err != nil {
				return err
			}
			length, err := byteAttr(t, attrLength)
			if err != nil {
				return err
			}
			p.byteOffset = off
			p.byteLength = length
			p.text.Reset()
			p.state = stateReplacement
			return nil

		case elemCursor:
			if p.summary.HasCursor {
				return ferrors.Malformed("more than one <%s> element", elemCursor)
			}
			p.text.Reset()
			p.state = stateCursor
			return nil
		}
		return ferrors.Malformed("unexpected element %q", name)

	case stateReplacement, stateCursor:
		return ferrors.Malformed("unexpected element %q nested in a leaf element", name)

	default:
		return ferrors.Malformed("unexpected element %q after </%s>", name, elemRoot)
	}
}

func (p *Parser) end(t xml.EndElement) (Event, bool, error) {
	switch p.state {
	case stateReplacement:
		r, err := p.finishReplacement()
		if err != nil {
			return Event{}, false, err
		}
		p.state = stateRoot
		p.summary.Replacements++
		return Event{Kind: KindReplacement, Replacement: r}, true, nil

	case stateCursor:
		c, err := p.finishCursor()
		if err != nil {
			return Event{}, false, err
		}
		p.state = stateRoot
		p.summary.HasCursor = true
		return Event{Kind: KindCursor, Cursor: c}, true, nil

	case stateRoot:
		p.state = stateEpilog
		return Event{}, false, nil
	}
	return Event{}, false, ferrors.Malformed("unexpected </%s>", t.Name.Local)
}

func (p *Parser) finishReplacement() (Replacement, error) {
	off, err := p.tr.Translate(p.byteOffset)
	if err != nil {
		return Replacement{}, err
	}
	length, err := p.tr.TranslateLength(p.byteOffset, p.byteLength)
	if err != nil {
		return Replacement{}, err
	}
	return Replacement{
		ByteOffset: p.byteOffset,
		ByteLength: p.byteLength,
		Offset:     off,
		Length:     length,
		Text:       p.text.String(),
	}, nil
}

func (p *Parser) finishCursor() (Cursor, error) {
	raw := strings.TrimSpace(p.text.String())
	b, err := parseDecimal(raw)
	if err != nil {
		return Cursor{}, &ferrors.MalformedError{
			Offset: -1,
			Reason: fmt.Sprintf("bad cursor value %q", truncate(raw)),
			Err:    err,
		}
	}
	off, err := p.tr.Translate(b)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{ByteOffset: b, Offset: off}, nil
}

// Parse reads the whole stream from r and dispatches events to h in order.
// It stops at the first parse or handler error.
func Parse(r io.Reader, tr *offset.Translator, h Handler) error {
	p := NewParser(r, tr)
	for {
		ev, err := p.Next()
		if err == io.EOF {
			return h.OnEnd(p.Summary())
		}
		if err != nil {
			return err
		}

		switch ev.Kind {
		case KindReplacement:
			err = h.OnReplacement(ev.Replacement)
		case KindCursor:
			err = h.OnCursor(ev.Cursor)
		}
		if err != nil {
			return err
		}
	}
}

func byteAttr(t xml.StartElement, name string) (int, error) {
	for _, a := range t.Attr {
		if a.Name.Local != name || a.Name.Space != "" {
			continue
		}
		n, err := parseDecimal(a.Value)
		if err != nil {
			return 0, &ferrors.MalformedError{
				Offset: -1,
				Reason: fmt.Sprintf("bad %s attribute %q on <%s>", name, truncate(a.Value), t.Name.Local),
				Err:    err,
			}
		}
		return n, nil
	}
	return 0, ferrors.Malformed("<%s> missing %s attribute", t.Name.Local, name)
}

// parseDecimal accepts only unsigned base-10 digits.
func parseDecimal(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

func truncate(s string) string {
	const limit = 32
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
