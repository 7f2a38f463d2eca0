package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/internal/store"
)

// Handler runs one command. A returned error is reported to the user as a
// generic failure and does not end the session.
type Handler func(c *Context, args []string) (Signal, error)

// Command is one entry of the command table.
type Command struct {
	// Names are the aliases the command answers to. The first is canonical.
	Names       []string
	Usage       string
	Description string
	Level       Level
	Handler     Handler
}

// CommandTable resolves command names. It is immutable once built.
type CommandTable struct {
	commands []Command
	index    map[string]int
	names    []string
}

// NewCommandTable indexes cmds by lower-cased alias. When two commands claim
// the same alias the earlier one wins.
func NewCommandTable(cmds []Command) *CommandTable {
	t := &CommandTable{commands: cmds, index: make(map[string]int)}
	for i, cmd := range cmds {
		for _, n := range cmd.Names {
			key := strings.ToLower(n)
			if _, dup := t.index[key]; dup {
				continue
			}
			t.index[key] = i
			t.names = append(t.names, key)
		}
	}
	return t
}

// Lookup finds the command registered under key exactly.
func (t *CommandTable) Lookup(key string) (*Command, bool) {
	i, ok := t.index[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	return &t.commands[i], true
}

// Names returns every alias in table order. It is the completion candidate set.
func (t *CommandTable) Names() []string { return t.names }

// Commands returns the table entries in registration order.
func (t *CommandTable) Commands() []Command { return t.commands }

// DefaultCommands is the built-in command set.
func DefaultCommands() []Command {
	return []Command{
		{Names: []string{"help", "?"}, Description: "List the commands available to you", Handler: cmdHelp},
		{Names: []string{"clear", "cls"}, Description: "Clear the terminal", Handler: cmdClear},
		{Names: []string{"whoami"}, Description: "Show who you are logged in as", Handler: cmdWhoami},
		{Names: []string{"adduser"}, Usage: "[username]", Description: "Create a new account", Handler: cmdAddUser},
		{Names: []string{"passwd"}, Usage: "[username]", Description: "Change an account password", Handler: cmdPasswd},
		{Names: []string{"removeuser", "deluser"}, Usage: "[username]", Description: "Delete an account", Level: Root, Handler: cmdRemoveUser},
		{Names: []string{"users"}, Description: "List all accounts", Level: Root, Handler: cmdUsers},
		{Names: []string{"sessions"}, Description: "List connected sessions", Level: Root, Handler: cmdSessions},
		{Names: []string{"regenroot"}, Description: "Generate a new root password and log out", Level: Root, Handler: cmdRegenRoot},
		{Names: []string{"logout", "exit", "quit"}, Description: "End this session", Handler: cmdLogout},
	}
}

func cmdClear(c *Context, _ []string) (Signal, error) {
	c.Editor.WriteString(lineedit.ClearScreen)
	return Continue, nil
}

func cmdLogout(c *Context, _ []string) (Signal, error) {
	c.Linef("Goodbye.")
	return Terminate, nil
}

func cmdWhoami(c *Context, _ []string) (Signal, error) {
	c.Linef("%s (%s) connected from %s, session #%d", c.Username, c.Level, c.Peer, c.SessionID)
	return Continue, nil
}

// argOrAsk returns args[0] when present and prompts for it otherwise.
func argOrAsk(c *Context, args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return c.Ask(prompt, false)
}

func cmdAddUser(c *Context, args []string) (Signal, error) {
	name, err := argOrAsk(c, args, "Username: ")
	if err != nil {
		return Continue, err
	}
	if !validUsername(name) {
		c.Linef("Usernames cannot contain spaces or control characters.")
		return Continue, nil
	}
	exists, err := c.Store.Exists(name)
	if err != nil {
		return Continue, err
	}
	if exists {
		c.Linef("User '%s' already exists.", name)
		return Continue, nil
	}
	pw, err := c.Ask("Password: ", true)
	if err != nil {
		return Continue, err
	}
	if err := c.Store.Create(name, pw); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			c.Linef("User '%s' already exists.", name)
			return Continue, nil
		}
		return Continue, err
	}
	c.audit(audit.EventCommand, "created user "+name)
	c.Linef("Created user '%s'.", name)
	return Continue, nil
}

// validUsername rejects names that would break prompts, titles or tables.
func validUsername(name string) bool {
	for i := 0; i < len(name); i++ {
		if b := name[i]; b <= ' ' || b == 0x7f {
			return false
		}
	}
	return name != ""
}

func cmdRemoveUser(c *Context, args []string) (Signal, error) {
	name, err := argOrAsk(c, args, "Username: ")
	if err != nil {
		return Continue, err
	}
	if name == store.RootUser {
		c.Linef("The root account cannot be removed.")
		return Continue, nil
	}
	switch err := c.Store.Delete(name); {
	case errors.Is(err, store.ErrUserNotFound):
		c.Linef("User '%s' does not exist.", name)
		return Continue, nil
	case err != nil:
		return Continue, err
	}
	c.audit(audit.EventCommand, "removed user "+name)
	c.Linef("Removed user '%s'.", name)
	return Continue, nil
}

func cmdPasswd(c *Context, args []string) (Signal, error) {
	target := c.Username
	if len(args) > 0 {
		target = args[0]
	}
	if target == store.RootUser {
		c.Linef("The root password can only be changed with 'regenroot'.")
		return Continue, nil
	}
	if c.Level != Root && target != c.Username {
		c.Linef("You can only change your own password.")
		return Continue, nil
	}
	exists, err := c.Store.Exists(target)
	if err != nil {
		return Continue, err
	}
	if !exists {
		c.Linef("User '%s' does not exist.", target)
		return Continue, nil
	}
	first, err := c.Ask("New password: ", true)
	if err != nil {
		return Continue, err
	}
	second, err := c.Ask("Confirm new password: ", true)
	if err != nil {
		return Continue, err
	}
	if first != second {
		c.Linef("Passwords do not match.")
		return Continue, nil
	}
	if err := c.Store.SetPassword(target, first); err != nil {
		return Continue, err
	}
	c.audit(audit.EventCommand, "changed password for "+target)
	c.Linef("Password updated for '%s'.", target)
	return Continue, nil
}

func cmdRegenRoot(c *Context, _ []string) (Signal, error) {
	ok, err := c.Confirm("Generate a new root password? You will be logged out")
	if err != nil {
		return Continue, err
	}
	if !ok {
		c.Linef("Root password unchanged.")
		return Continue, nil
	}
	pw, err := c.Store.RegenerateRoot()
	if err != nil {
		return Continue, err
	}
	c.audit(audit.EventCommand, "regenerated root credentials")
	c.Linef("New root password: %s", pw)
	c.Linef("A copy has been written to the root password log. Logging out.")
	return Terminate, nil
}

func cmdUsers(c *Context, _ []string) (Signal, error) {
	users, err := c.Store.List()
	if err != nil {
		return Continue, err
	}
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.Username, LevelFor(u.Username).String(), u.CreatedAt.Format("03:04:05 PM - 01/02/2006")})
	}
	c.Print(renderTable([]string{"Username", "Level", "Created"}, rows) + "\n")
	return Continue, nil
}

func cmdSessions(c *Context, _ []string) (Signal, error) {
	if c.Sessions == nil {
		return Continue, errors.New("no session registry")
	}
	var rows [][]string
	for _, e := range c.Sessions.List() {
		id := fmt.Sprintf("#%d", e.ID)
		if e.ID == c.SessionID {
			id += " (you)"
		}
		rows = append(rows, []string{id, e.Username, e.Peer, formatDuration(time.Since(e.StartedAt))})
	}
	c.Print(renderTable([]string{"Session", "User", "Address", "Connected"}, rows) + "\n")
	return Continue, nil
}

func cmdHelp(c *Context, _ []string) (Signal, error) {
	var md strings.Builder
	md.WriteString("# Commands\n\n| Command | Aliases | Description |\n|---|---|---|\n")
	var plain strings.Builder
	for _, cmd := range c.Commands.Commands() {
		if cmd.Level > c.Level {
			continue
		}
		name := cmd.Names[0]
		if cmd.Usage != "" {
			name += " " + cmd.Usage
		}
		fmt.Fprintf(&md, "| `%s` | %s | %s |\n", name, strings.Join(cmd.Names[1:], ", "), cmd.Description)
		fmt.Fprintf(&plain, "  %-22s %s\n", name, cmd.Description)
	}
	width := c.Width
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(width))
	if err == nil {
		if out, rerr := r.Render(md.String()); rerr == nil {
			c.Print(out)
			return Continue, nil
		}
	}
	c.Print("Commands:\n" + plain.String())
	return Continue, nil
}

// renderTable lays rows out under a reverse-video header.
func renderTable(headings []string, rows [][]string) string {
	widths := make([]int, len(headings))
	for i, h := range headings {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, col := range row {
			if len(col) > widths[i] {
				widths[i] = len(col)
			}
		}
	}
	pad := func(cols []string) string {
		out := make([]string, len(cols))
		for i, col := range cols {
			out[i] = col + strings.Repeat(" ", widths[i]-len(col))
		}
		return strings.Join(out, "     ")
	}
	var b strings.Builder
	b.WriteString("\x1b[0m \x1b[107;30m  " + pad(headings) + "  \x1b[0m")
	for _, row := range rows {
		b.WriteString("\n   " + pad(row) + "   ")
	}
	b.WriteString("\x1b[0m")
	return b.String()
}

func formatDuration(d time.Duration) string {
	s := int(d.Seconds())
	m, s := s/60, s%60
	h, m := m/60, m%60
	days, h := h/24, h%24
	return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
}
