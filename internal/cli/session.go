package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/internal/registry"
	"github.com/flowave-io/ctlpanel/pkg/log"
)

// SessionRegistry allocates session numbers and tracks live sessions.
type SessionRegistry interface {
	Register(username, peer string, root bool) (registry.Entry, error)
	Unregister(id uint64) bool
	List() []registry.Entry
}

// Deps are the process-wide services shared by every session.
type Deps struct {
	Store    Credentials
	Audit    AuditSink
	Registry SessionRegistry
	// Commands defaults to DefaultCommands.
	Commands *CommandTable
	Options  lineedit.Options
	// Banner, when set, is called once per session for the welcome text.
	Banner func() string
	Debug  bool
}

// Identity is the authenticated caller of a session.
type Identity struct {
	Username string
	Peer     string
	// Width is the terminal width reported by the client, if any.
	Width int
}

const msgFull = "The server has reached its maximum number of connections. Please try again later.\r\n"

// RunSession runs the command loop for an authenticated user on rw. It
// returns nil when the user logs out, lineedit.ErrCancelled when the client
// cancels, and any fatal error otherwise. The session is registered for its
// whole lifetime and unregistered exactly once on every path.
func RunSession(rw io.ReadWriter, id Identity, deps Deps) (err error) {
	level := LevelFor(id.Username)
	entry, err := deps.Registry.Register(id.Username, id.Peer, level == Root)
	if err != nil {
		if errors.Is(err, registry.ErrFull) {
			io.WriteString(rw, msgFull)
			if deps.Audit != nil {
				rec := audit.Record{EventType: audit.EventSessionRefused, Username: id.Username, SourceIP: id.Peer, Details: "maximum connections reached"}
				if aerr := deps.Audit.Log(rec); aerr != nil {
					log.Session(id.Username, id.Peer).Warnf("Audit write failed for %s: %v", rec.EventType, aerr)
				}
			}
		}
		return err
	}
	defer deps.Registry.Unregister(entry.ID)

	commands := deps.Commands
	if commands == nil {
		commands = NewCommandTable(DefaultCommands())
	}
	c := &Context{
		Username:  id.Username,
		Level:     level,
		Peer:      id.Peer,
		SessionID: entry.ID,
		TraceID:   entry.TraceID,
		Editor:    lineedit.New(rw, deps.Options),
		Store:     deps.Store,
		Audit:     deps.Audit,
		Sessions:  deps.Registry,
		Commands:  commands,
		Log:       log.Session(id.Username, id.Peer),
		Width:     id.Width,
		Debug:     deps.Debug,
	}
	c.Log.Infof("Session #%d started (trace %s)", entry.ID, entry.TraceID)
	c.audit(audit.EventSessionStart, fmt.Sprintf("session #%d", entry.ID))

	defer func() {
		if r := recover(); r != nil {
			if deps.Debug {
				panic(r)
			}
			err = fmt.Errorf("panic: %v", r)
		}
		c.finish(err, rw)
	}()

	if deps.Banner != nil {
		if b := deps.Banner(); b != "" {
			c.Print(b + "\n")
		}
	}
	return c.Run()
}

// finish logs how the session ended and sends the apology on fatal errors.
func (c *Context) finish(err error, w io.Writer) {
	switch {
	case err == nil:
		c.Log.Info("Logged out")
		c.audit(audit.EventSessionEnd, "logout")
	case errors.Is(err, lineedit.ErrCancelled):
		c.Log.Info("Session cancelled by client")
		c.audit(audit.EventSessionEnd, "cancelled")
	default:
		c.Log.Errorf("Fatal error: %v", err)
		c.Log.Error("Disconnecting client")
		c.audit(audit.EventFatalError, err.Error())
		io.WriteString(w, msgFatalError)
	}
}
