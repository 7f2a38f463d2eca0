package lineedit

import (
	"io"
	"strings"
	"unicode/utf8"
)

// Options tune an Editor for the lifetime of one connection.
type Options struct {
	// InPlaceHistory keeps edits made to a recalled history line in that
	// line for the rest of the session.
	InPlaceHistory bool
}

// Prompt describes one ReadLine call.
type Prompt struct {
	// Text is written before the editable line.
	Text string
	// Title, when set, is sent as the terminal title before the prompt.
	Title string
	// Candidates feed the inline preview and Tab completion for the first word.
	Candidates []string
	// AllowEmpty lets a blank line be submitted; otherwise Enter on a blank
	// line is ignored.
	AllowEmpty bool
	// Secret echoes '*' instead of the typed text and keeps the line out of
	// the session history. Tab and history keys are ignored.
	Secret bool
}

// Editor reads edited lines from a duplex channel. It owns the session
// history, so one Editor is created per connection and reused for every
// prompt on it. An Editor is not safe for concurrent use.
type Editor struct {
	in      *Reader
	out     io.Writer
	history *History
	comp    Compositor
	err     error
}

// New returns an Editor receiving from and sending to rw.
func New(rw io.ReadWriter, opts Options) *Editor {
	return &Editor{
		in:      NewReader(rw),
		out:     rw,
		history: NewHistory(opts.InPlaceHistory),
	}
}

// History exposes the session history.
func (e *Editor) History() *History { return e.history }

// Write sends p to the channel. The first send failure is kept and returned
// by every later Write and by Err.
func (e *Editor) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := e.out.Write(p)
	if err != nil {
		e.err = &ChannelError{Op: "send", Err: err}
		return n, e.err
	}
	return n, nil
}

// WriteString sends s to the channel.
func (e *Editor) WriteString(s string) (int, error) { return e.Write([]byte(s)) }

// Err returns the first send failure, if any.
func (e *Editor) Err() error { return e.err }

// ReadLine shows the prompt and edits one line until it is submitted.
// It returns ErrCancelled on Ctrl+C/Ctrl+Z, a *ChannelError when the channel
// fails, and a *DecodeError for input that is not valid text.
func (e *Editor) ReadLine(p Prompt) (string, error) {
	h := e.history
	if p.Secret {
		h = NewHistory(false)
	}
	h.Begin()
	e.Write(e.comp.Begin(p.Title, p.Text))

	var tab completion
	tab.reset()
	for {
		e.render(h, p, &tab)
		if e.err != nil {
			h.Abandon()
			return "", e.err
		}
		chunk, err := e.in.Next()
		if err != nil {
			h.Abandon()
			return "", err
		}
		ev := Classify(chunk)
		switch ev.Kind {
		case Cancel:
			h.Abandon()
			return "", ErrCancelled
		case Literal:
			if !utf8.ValidString(ev.Text) {
				h.Abandon()
				return "", &DecodeError{Chunk: chunk, Reason: "invalid UTF-8"}
			}
			tab.reset()
			h.Append(ev.Text)
		case Backspace:
			tab.reset()
			h.Backspace()
		case Tab:
			if !p.Secret {
				e.complete(h, p.Candidates, &tab)
			}
		case HistoryUp, HistoryDown, EscapeReset:
			tab.reset()
			if p.Secret {
				continue
			}
			dir := Older
			if ev.Kind == HistoryDown {
				dir = Newer
			} else if ev.Kind == EscapeReset {
				dir = Live
			}
			if h.Navigate(dir) {
				e.Write(e.comp.Redraw(h.Text()))
			}
		case Submit:
			shown := e.comp.Shown()
			line, ok := h.Submit(p.AllowEmpty)
			if !ok {
				continue
			}
			e.Write(e.comp.Frame(shown, ""))
			e.WriteString("\r\n")
			return line, e.err
		default:
			tab.reset()
		}
	}
}

func (e *Editor) render(h *History, p Prompt, tab *completion) {
	text := h.Text()
	if p.Secret {
		e.Write(e.comp.Frame(strings.Repeat("*", utf8.RuneCountInString(text)), ""))
		return
	}
	var suffix string
	if !tab.active && text != "" && firstToken(text) {
		if c, ok := Preview(text, p.Candidates); ok {
			suffix = c[len(text):]
		}
	}
	e.Write(e.comp.Frame(text, suffix))
}

func (e *Editor) complete(h *History, candidates []string, tab *completion) {
	text := h.Text()
	if !firstToken(text) {
		tab.reset()
		return
	}
	if !tab.active {
		tab.anchor = text
		tab.index = -1
	}
	idx, sel := Cycle(tab.anchor, candidates, tab.index)
	if idx < 0 {
		tab.reset()
		e.WriteString("\a")
		return
	}
	tab.index = idx
	tab.active = true
	h.Replace(sel)
}
