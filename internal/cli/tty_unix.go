//go:build darwin || linux

package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// stty runs stty against tty. BSD stty takes the device with -f, GNU stty
// reads it from stdin.
func stty(tty *os.File, args ...string) *exec.Cmd {
	if runtime.GOOS == "darwin" {
		args = append([]string{"-f", tty.Name()}, args...)
	}
	cmd := exec.Command("stty", args...)
	cmd.Stdin = tty
	return cmd
}

// acquireTTY opens /dev/tty in raw -echo mode. The restore func puts the
// saved stty settings back.
func acquireTTY() (io.ReadWriteCloser, func(), error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open /dev/tty: %w", err)
	}
	out, err := stty(tty, "-g").Output()
	if err != nil {
		tty.Close()
		return nil, nil, fmt.Errorf("stty -g failed: %w", err)
	}
	saved := strings.TrimSpace(string(out))
	if err := stty(tty, "raw", "-echo").Run(); err != nil {
		tty.Close()
		return nil, nil, fmt.Errorf("stty raw -echo failed: %w", err)
	}
	restore := func() { _ = stty(tty, saved).Run() }
	return tty, restore, nil
}
