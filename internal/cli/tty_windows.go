//go:build windows

package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

type consoleIO struct {
	io.Reader
	io.Writer
}

func (consoleIO) Close() error { return nil }

// acquireTTY puts the Windows console into raw mode and pairs stdin with
// stdout, since the console handle is not writable through stdin.
func acquireTTY() (io.ReadWriteCloser, func(), error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("enable raw console: %w", err)
	}
	restore := func() { _ = term.Restore(fd, state) }
	return consoleIO{Reader: os.Stdin, Writer: os.Stdout}, restore, nil
}
