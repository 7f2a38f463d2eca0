package cli

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/pkg/log"
)

// Outcome classifies how a submitted line was handled.
type Outcome int

const (
	// Executed means the handler ran to completion.
	Executed Outcome = iota
	// UnknownCommand means no alias matched the first word.
	UnknownCommand
	// PermissionDenied means the caller's level was below the command's.
	PermissionDenied
	// CommandFailed means the handler returned an error or panicked.
	CommandFailed
	// EmptyLine means the line held no words.
	EmptyLine
)

// Result is the outcome of dispatching one line.
type Result struct {
	Outcome Outcome
	// Command is the lower-cased first word as typed.
	Command string
	Signal  Signal
	Err     error
}

const (
	msgNotFound   = "Command '%s' not found. Type 'help' for a list of commands."
	msgDenied     = "Permission denied: '%s' requires root."
	msgFailed     = "The command failed to run. Please check your input and try again."
	msgFatalError = "\r\n You have been disconnected due to a fatal error. We apologize for any inconvenience.\r\n"
)

// Prompt is the line shown before each command.
func (c *Context) Prompt() string {
	return fmt.Sprintf("%s@%s [#%d]> ", c.Username, c.Peer, c.SessionID)
}

func (c *Context) title() string {
	return fmt.Sprintf("ctlpanel - %s@%s (session #%d)", c.Username, c.Peer, c.SessionID)
}

// Run reads and dispatches commands until a handler returns Terminate or
// reading fails. A nil return means the user logged out. Cancellation and
// channel or decode failures are returned unchanged so the caller can tear
// the connection down.
func (c *Context) Run() error {
	for {
		line, err := c.Editor.ReadLine(lineedit.Prompt{
			Text:       c.Prompt(),
			Title:      c.title(),
			Candidates: c.Commands.Names(),
		})
		if err != nil {
			return err
		}
		c.Log.Info("Command:", log.SanitizeForLog(line))
		c.audit(audit.EventCommand, line)

		res := c.Dispatch(line)
		if res.Err != nil && fatal(res.Err) {
			return res.Err
		}
		if err := c.Editor.Err(); err != nil {
			return err
		}
		if res.Signal == Terminate {
			return nil
		}
	}
}

// Dispatch tokenizes line and runs the matching command. Handler errors and
// panics are reported to the user and never end the session, except that a
// failure of the channel itself is passed back through Result.Err.
func (c *Context) Dispatch(line string) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{Outcome: EmptyLine}
	}
	key := strings.ToLower(fields[0])
	cmd, ok := c.Commands.Lookup(key)
	if !ok {
		c.Linef(msgNotFound, fields[0])
		return Result{Outcome: UnknownCommand, Command: key}
	}
	if cmd.Level > c.Level {
		c.Log.Warnf("Denied '%s' for %s user", key, c.Level)
		c.audit(audit.EventPermissionDenied, key)
		c.Linef(msgDenied, key)
		return Result{Outcome: PermissionDenied, Command: key}
	}
	sig, err := c.invoke(cmd, fields[1:])
	if err != nil {
		if fatal(err) {
			return Result{Outcome: CommandFailed, Command: key, Signal: Terminate, Err: err}
		}
		c.Log.Warnf("Command '%s' failed: %v", key, err)
		c.audit(audit.EventCommandFailed, fmt.Sprintf("%s: %v", key, err))
		c.Linef(msgFailed)
		return Result{Outcome: CommandFailed, Command: key, Err: err}
	}
	return Result{Outcome: Executed, Command: key, Signal: sig}
}

func (c *Context) invoke(cmd *Command, args []string) (sig Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			if c.Debug {
				panic(r)
			}
			c.Log.Errorf("panic in '%s': %v", cmd.Names[0], r)
			for _, ln := range strings.Split(strings.TrimSpace(string(debug.Stack())), "\n") {
				c.Log.Error(ln)
			}
			sig, err = Continue, fmt.Errorf("panic: %v", r)
		}
	}()
	return cmd.Handler(c, args)
}

// fatal reports whether err must end the connection rather than the command.
func fatal(err error) bool {
	var de *lineedit.DecodeError
	var ce *lineedit.ChannelError
	return errors.Is(err, lineedit.ErrCancelled) || errors.As(err, &de) || errors.As(err, &ce)
}
