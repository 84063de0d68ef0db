package replacements

import "fmt"

// Kind identifies the type of an Event.
type Kind int

const (
	// KindReplacement is a span substitution.
	KindReplacement Kind = iota + 1
	// KindCursor is a repositioned caret.
	KindCursor
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindReplacement:
		return "replacement"
	case KindCursor:
		return "cursor"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Replacement is one span substitution reported by the formatter.
type Replacement struct {
	// ByteOffset and ByteLength are the span as reported, in UTF-8 bytes.
	ByteOffset int
	ByteLength int

	// Offset and Length are the same span in characters.
	Offset int
	Length int

	// Text is the unescaped replacement text.
	Text string
}

// End returns the character offset just past the replaced span.
func (r Replacement) End() int {
	return r.Offset + r.Length
}

// Cursor is the caret position reported for a zero-length range request.
type Cursor struct {
	ByteOffset int
	Offset     int
}

// Event is one item of the replacement stream.
type Event struct {
	Kind        Kind
	Replacement Replacement // valid when Kind == KindReplacement
	Cursor      Cursor      // valid when Kind == KindCursor
}

// Summary describes a fully consumed stream.
type Summary struct {
	// Replacements is the number of replacement events delivered.
	Replacements int

	// HasCursor reports whether a cursor event was delivered.
	HasCursor bool

	// Incomplete mirrors the root's incomplete_format attribute, which the
	// formatter sets when it could not format the whole input.
	Incomplete bool
}

// Handler receives parse events in stream order.
type Handler interface {
	OnReplacement(r Replacement) error
	OnCursor(c Cursor) error
	OnEnd(s Summary) error
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Replacement func(Replacement) error
	Cursor      func(Cursor) error
	End         func(Summary) error
}

// OnReplacement implements Handler.
func (h HandlerFuncs) OnReplacement(r Replacement) error {
	if h.Replacement == nil {
		return nil
	}
	return h.Replacement(r)
}

// OnCursor implements Handler.
func (h HandlerFuncs) OnCursor(c Cursor) error {
	if h.Cursor == nil {
		return nil
	}
	return h.Cursor(c)
}

// OnEnd implements Handler.
func (h HandlerFuncs) OnEnd(s Summary) error {
	if h.End == nil {
		return nil
	}
	return h.End(s)
}
