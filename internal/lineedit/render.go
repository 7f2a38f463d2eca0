package lineedit

import (
	"bytes"
	"fmt"
)

const (
	ansiEraseEOL = "\x1b[0K"
	ansiDim      = "\x1b[2m"
	ansiReset    = "\x1b[0m"

	// ClearScreen resets the terminal and drops its scrollback.
	ClearScreen = "\x1bc\x1b[3J\x1b[0m"
)

func cursorBack(n int) string { return fmt.Sprintf("\x1b[%dD", n) }

// SetTitle is the OSC sequence that updates the terminal title bar.
func SetTitle(title string) string { return "\x1b]0;" + title + "\a" }

// Compositor tracks what the remote terminal shows after the prompt and
// emits the escape sequences needed to move it to a new state. The cursor is
// always kept at the end of the typed text, in front of any preview.
type Compositor struct {
	text    []rune
	preview []rune
}

// Begin writes the title and prompt for a new line and forgets the old one.
func (c *Compositor) Begin(title, prompt string) []byte {
	c.text, c.preview = nil, nil
	var b bytes.Buffer
	if title != "" {
		b.WriteString(SetTitle(title))
	}
	b.WriteString(prompt)
	return b.Bytes()
}

// Shown returns the text currently displayed after the prompt.
func (c *Compositor) Shown() string { return string(c.text) }

// Frame returns the bytes that turn the displayed state into text followed
// by a dim preview suffix. Nothing is emitted when the state is unchanged.
func (c *Compositor) Frame(text, preview string) []byte {
	target := []rune(text)
	pv := []rune(preview)
	if runesEqual(c.text, target) && runesEqual(c.preview, pv) {
		return nil
	}

	var b bytes.Buffer
	shown := len(c.text)
	if len(target)+1 == shown && runesEqual(c.text[:len(target)], target) {
		b.WriteString(cursorBack(1))
		b.WriteByte(' ')
		b.WriteString(cursorBack(1))
		if len(c.preview) > 0 {
			b.WriteString(ansiEraseEOL)
		}
		writePreview(&b, pv)
	} else {
		k := commonPrefix(c.text, target)
		if back := shown - k; back > 0 {
			b.WriteString(cursorBack(back))
			b.WriteString(ansiEraseEOL)
		} else if len(c.preview) > 0 {
			b.WriteString(ansiEraseEOL)
		}
		b.WriteString(string(target[k:]))
		writePreview(&b, pv)
	}
	c.text = target
	c.preview = pv
	return b.Bytes()
}

// Redraw clears any preview and the whole line, then writes text verbatim.
// Used when the selected history slot changes.
func (c *Compositor) Redraw(text string) []byte {
	var b bytes.Buffer
	if len(c.preview) > 0 {
		b.WriteString(ansiEraseEOL)
	}
	if n := len(c.text); n > 0 {
		b.WriteString(cursorBack(n))
	}
	b.WriteString(ansiEraseEOL)
	b.WriteString(text)
	c.text = []rune(text)
	c.preview = nil
	return b.Bytes()
}

func writePreview(b *bytes.Buffer, pv []rune) {
	if len(pv) == 0 {
		return
	}
	b.WriteString(ansiDim)
	b.WriteString(string(pv))
	b.WriteString(ansiReset)
	b.WriteString(cursorBack(len(pv)))
}

func commonPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
