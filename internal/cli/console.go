package cli

import (
	"errors"
	"os"
	"strconv"

	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/internal/store"
	"github.com/flowave-io/ctlpanel/pkg/log"
	"golang.org/x/term"
)

// ErrNotTerminal is returned when the console is started without a TTY.
var ErrNotTerminal = errors.New("cli: the console needs an interactive terminal")

// RunConsole runs one root session on the local terminal in raw mode, using
// the same line editor and commands as remote sessions.
func RunConsole(deps Deps) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ErrNotTerminal
	}
	tty, restore, err := acquireTTY()
	if err != nil {
		return err
	}
	defer tty.Close()
	defer restore()

	log.Info("Starting local console as", store.RootUser)
	err = RunSession(tty, Identity{Username: store.RootUser, Peer: "console", Width: detectTermWidth()}, deps)
	if errors.Is(err, lineedit.ErrCancelled) {
		return nil
	}
	return err
}

// detectTermWidth asks the terminal, then COLUMNS, then assumes 80.
func detectTermWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return 80
}
