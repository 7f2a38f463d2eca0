package lineedit

import (
	"bytes"
	"errors"
	"fmt"
)

// Kind identifies a classified keypress.
type Kind int

const (
	// Ignored chunks produce no edit; they only drop a pending Tab cycle.
	Ignored Kind = iota
	Cancel
	Backspace
	Tab
	HistoryUp
	HistoryDown
	EscapeReset
	Submit
	Literal
)

func (k Kind) String() string {
	switch k {
	case Cancel:
		return "Cancel"
	case Backspace:
		return "Backspace"
	case Tab:
		return "Tab"
	case HistoryUp:
		return "HistoryUp"
	case HistoryDown:
		return "HistoryDown"
	case EscapeReset:
		return "EscapeReset"
	case Submit:
		return "Submit"
	case Literal:
		return "Literal"
	default:
		return "Ignored"
	}
}

// Event is one classified input chunk. Text is set only for Literal.
type Event struct {
	Kind Kind
	Text string
}

const (
	keyETX = 0x03
	keySUB = 0x1a
	keyTab = 0x09
	keyDEL = 0x7f
	keyESC = 0x1b
)

var (
	seqUp   = []byte{keyESC, '[', 'A'}
	seqDown = []byte{keyESC, '[', 'B'}
)

// ErrCancelled is returned when the user sends Ctrl+C or Ctrl+Z. It aborts
// the whole connection, not just the current line.
var ErrCancelled = errors.New("lineedit: input cancelled")

// DecodeError reports a chunk that cannot be turned into line text.
type DecodeError struct {
	Chunk  []byte
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("lineedit: undecodable input %q: %s", e.Chunk, e.Reason)
}

// Classify maps one keypress chunk to an Event. Rules are checked in order;
// the first match wins.
func Classify(chunk []byte) Event {
	switch {
	case len(chunk) == 1 && (chunk[0] == keyETX || chunk[0] == keySUB):
		return Event{Kind: Cancel}
	case len(chunk) == 1 && chunk[0] == keyDEL:
		return Event{Kind: Backspace}
	case len(chunk) == 1 && chunk[0] == keyTab:
		return Event{Kind: Tab}
	case bytes.Equal(chunk, seqUp):
		return Event{Kind: HistoryUp}
	case bytes.Equal(chunk, seqDown):
		return Event{Kind: HistoryDown}
	case len(chunk) == 1 && chunk[0] == keyESC:
		return Event{Kind: EscapeReset}
	case len(chunk) == 0, bytes.IndexByte(chunk, keyESC) >= 0, len(chunk) == 1 && chunk[0] == '\n':
		return Event{Kind: Ignored}
	case len(chunk) == 1 && chunk[0] == '\r':
		return Event{Kind: Submit}
	}
	return Event{Kind: Literal, Text: string(chunk)}
}
