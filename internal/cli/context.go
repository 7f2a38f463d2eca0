package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/internal/registry"
	"github.com/flowave-io/ctlpanel/internal/store"
	"github.com/flowave-io/ctlpanel/pkg/log"
)

// Level is a caller's permission tier.
type Level int

const (
	Normal Level = iota
	Root
)

func (l Level) String() string {
	if l == Root {
		return "root"
	}
	return "normal"
}

// LevelFor returns Root only for the distinguished root account.
func LevelFor(username string) Level {
	if username == store.RootUser {
		return Root
	}
	return Normal
}

// Signal tells the session loop whether to keep reading commands.
type Signal int

const (
	Continue Signal = iota
	Terminate
)

// Credentials is the account store the built-in commands manage.
type Credentials interface {
	Exists(username string) (bool, error)
	Create(username, password string) error
	Delete(username string) error
	SetPassword(username, password string) error
	RegenerateRoot() (string, error)
	List() ([]store.User, error)
}

// AuditSink receives audit events.
type AuditSink interface {
	Log(r audit.Record) error
}

// SessionLister enumerates connected sessions.
type SessionLister interface {
	List() []registry.Entry
}

// ErrInvalidConfirmation is returned when a yes/no prompt gets neither.
var ErrInvalidConfirmation = errors.New("cli: expected yes or no")

// Confirmation is the parsed answer to a yes/no prompt.
type Confirmation int

const (
	Invalid Confirmation = iota
	Yes
	No
)

// ParseConfirmation accepts y/yes and n/no in any case.
func ParseConfirmation(s string) Confirmation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return Yes
	case "n", "no":
		return No
	}
	return Invalid
}

// Context is the per-session state handed to every command handler.
type Context struct {
	Username  string
	Level     Level
	Peer      string
	SessionID uint64
	TraceID   string

	Editor   *lineedit.Editor
	Store    Credentials
	Audit    AuditSink
	Sessions SessionLister
	Commands *CommandTable
	Log      log.Logger

	// Width is the terminal width used to wrap rendered help.
	Width int
	// Debug re-panics handler failures instead of reporting them.
	Debug bool
}

// Print sends s with bare newlines turned into CRLF.
func (c *Context) Print(s string) {
	c.Editor.WriteString(normalizeTTYNewlines(s))
}

// Linef sends one formatted line terminated by CRLF.
func (c *Context) Linef(format string, args ...any) {
	c.Print(fmt.Sprintf(format, args...) + "\r\n")
}

// Ask reads one answer from the user. Secret answers are masked and kept
// out of the history.
func (c *Context) Ask(prompt string, secret bool) (string, error) {
	return c.Editor.ReadLine(lineedit.Prompt{Text: prompt, Secret: secret})
}

// Confirm asks a yes/no question. Any other answer is ErrInvalidConfirmation.
func (c *Context) Confirm(question string) (bool, error) {
	answer, err := c.Ask(question+" (yes/no): ", false)
	if err != nil {
		return false, err
	}
	switch ParseConfirmation(answer) {
	case Yes:
		return true, nil
	case No:
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidConfirmation, answer)
}

func (c *Context) audit(event, details string) {
	if c.Audit == nil {
		return
	}
	err := c.Audit.Log(audit.Record{
		TraceID:   c.TraceID,
		EventType: event,
		Username:  c.Username,
		SourceIP:  c.Peer,
		Details:   details,
	})
	if err != nil {
		c.Log.Warnf("Audit write failed for %s: %v", event, err)
	}
}

// normalizeTTYNewlines maps lone \n to \r\n for raw terminals.
func normalizeTTYNewlines(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	prev := byte(0)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\n' && prev != '\r' {
			b.WriteByte('\r')
		}
		b.WriteByte(ch)
		prev = ch
	}
	return b.String()
}
