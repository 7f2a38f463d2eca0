package lineedit

import (
	"strings"
	"unicode/utf8"
)

// Direction selects a history move.
type Direction int

const (
	Older Direction = iota
	Newer
	Live
)

// History holds the line being edited and every line submitted before it.
//
// Slot 0 is the scratch line for the current prompt; slots 1..N are earlier
// submissions, most recent first. With inPlace set, editing a recalled slot
// rewrites that slot for the rest of the session. Otherwise edits to recalled
// slots live in an overlay that is dropped when the line is submitted.
type History struct {
	slots   []string
	pos     int
	cursor  int
	inPlace bool
	overlay map[int]string
	editing bool
}

// NewHistory returns an empty history.
func NewHistory(inPlace bool) *History {
	return &History{inPlace: inPlace}
}

// Begin pushes a fresh scratch slot and selects it.
func (h *History) Begin() {
	h.slots = append([]string{""}, h.slots...)
	h.pos = 0
	h.cursor = 0
	h.overlay = nil
	h.editing = true
}

// Abandon drops the scratch slot of a line that was never submitted.
func (h *History) Abandon() {
	if !h.editing {
		return
	}
	h.slots = h.slots[1:]
	h.pos, h.cursor = 0, 0
	h.overlay = nil
	h.editing = false
}

// Text returns the contents of the selected slot.
func (h *History) Text() string { return h.slot(h.pos) }

// Pos is the selected slot index.
func (h *History) Pos() int { return h.pos }

// Cursor is the cursor offset in characters from the start of the line.
func (h *History) Cursor() int { return h.cursor }

// Len is the number of slots, the scratch slot included.
func (h *History) Len() int { return len(h.slots) }

// Entries returns the submitted lines, most recent first.
func (h *History) Entries() []string {
	start := 0
	if h.editing {
		start = 1
	}
	return append([]string(nil), h.slots[start:]...)
}

func (h *History) slot(i int) string {
	if s, ok := h.overlay[i]; ok {
		return s
	}
	return h.slots[i]
}

func (h *History) set(s string) {
	if h.pos == 0 || h.inPlace {
		h.slots[h.pos] = s
		return
	}
	if h.overlay == nil {
		h.overlay = make(map[int]string)
	}
	h.overlay[h.pos] = s
}

// Append adds text at the end of the selected slot.
func (h *History) Append(text string) {
	h.set(h.Text() + text)
	h.cursor += utf8.RuneCountInString(text)
}

// Backspace removes the last character. It reports false at column 0.
func (h *History) Backspace() bool {
	if h.cursor == 0 {
		return false
	}
	s := h.Text()
	_, size := utf8.DecodeLastRuneInString(s)
	h.set(s[:len(s)-size])
	h.cursor--
	return true
}

// Replace swaps the selected slot's text, leaving the cursor at its end.
func (h *History) Replace(text string) {
	h.set(text)
	h.cursor = utf8.RuneCountInString(text)
}

// Navigate moves the selection. Older stops at the oldest entry, Newer stops
// at slot 0, and Live jumps to slot 0 and blanks it. It reports whether the
// displayed line has to be rewritten.
func (h *History) Navigate(d Direction) bool {
	switch d {
	case Older:
		if h.pos >= len(h.slots)-1 {
			return false
		}
		h.pos++
	case Newer:
		if h.pos == 0 {
			return false
		}
		h.pos--
	case Live:
		h.pos = 0
		h.slots[0] = ""
	}
	h.cursor = utf8.RuneCountInString(h.Text())
	return true
}

// Submit finishes the line. The selected slot's text is trimmed and returned.
// An empty line with allowEmpty unset leaves all state untouched and reports
// false so the caller keeps reading. Non-empty lines are recorded as the most
// recent entry and the scratch slot is discarded.
func (h *History) Submit(allowEmpty bool) (string, bool) {
	line := strings.TrimSpace(strings.TrimSuffix(h.Text(), "\r"))
	if line == "" && !allowEmpty {
		return "", false
	}
	h.slots = h.slots[1:]
	if line != "" {
		h.slots = append([]string{line}, h.slots...)
	}
	h.pos, h.cursor = 0, 0
	h.overlay = nil
	h.editing = false
	return line, true
}
