package lineedit

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"
)

// ChunkSize is the most bytes requested from the channel per receive.
const ChunkSize = 1024

// maxSequence bounds a CSI sequence; anything longer is treated as garbage.
const maxSequence = 32

// EscapeDelay is how long a lone ESC waits for the rest of a sequence cut by
// the transport before it is reported as a bare ESC.
var EscapeDelay = 25 * time.Millisecond

// ChannelError wraps a failed receive or send on the session channel.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string { return fmt.Sprintf("channel %s: %v", e.Op, e.Err) }

func (e *ChannelError) Unwrap() error { return e.Err }

type readResult struct {
	data []byte
	err  error
}

// Reader splits the raw byte stream of a channel into keypress units.
//
// Channels only promise byte delivery, so one read may carry several keys
// (a paste, "\r\n") or half of one (an escape sequence or UTF-8 rune cut by
// the transport). Next always returns one complete unit: a single control
// byte, a full CSI or SS3 sequence, an ESC+byte pair, or a run of printable
// text. A lone ESC is held for EscapeDelay; if no '[' or 'O' follows in that
// time it is reported as a bare ESC.
type Reader struct {
	r        io.Reader
	pending  []byte
	inflight chan readResult
	err      error
}

// NewReader returns a Reader receiving from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next blocks until one keypress unit is available.
func (k *Reader) Next() ([]byte, error) {
	for {
		if len(k.pending) > 0 {
			n, complete := k.split()
			if complete {
				unit := append([]byte(nil), k.pending[:n]...)
				k.pending = k.pending[n:]
				return unit, nil
			}
			if len(k.pending) > maxSequence {
				unit := k.pending
				k.pending = nil
				return nil, &DecodeError{Chunk: unit, Reason: "unterminated escape sequence"}
			}
			if len(k.pending) == 1 && k.pending[0] == keyESC {
				if !k.escapeContinues() {
					k.pending = k.pending[1:]
					return []byte{keyESC}, nil
				}
				continue
			}
		}
		if err := k.fill(); err != nil {
			return nil, err
		}
	}
}

// escapeContinues waits up to EscapeDelay for the byte after a lone ESC and
// reports whether it opens a sequence. A receive failure is kept for the
// next call so the ESC itself is still delivered.
func (k *Reader) escapeContinues() bool {
	if k.err != nil {
		return false
	}
	if k.inflight == nil {
		ch := make(chan readResult, 1)
		go func() { ch <- k.read() }()
		k.inflight = ch
	}
	timer := time.NewTimer(EscapeDelay)
	defer timer.Stop()
	select {
	case res := <-k.inflight:
		k.inflight = nil
		if err := k.absorb(res); err != nil {
			k.err = err
			return false
		}
		return k.pending[1] == '[' || k.pending[1] == 'O'
	case <-timer.C:
		return false
	}
}

func (k *Reader) fill() error {
	if k.err != nil {
		return k.err
	}
	var res readResult
	if k.inflight != nil {
		res = <-k.inflight
		k.inflight = nil
	} else {
		res = k.read()
	}
	return k.absorb(res)
}

func (k *Reader) read() readResult {
	buf := make([]byte, ChunkSize)
	n, err := k.r.Read(buf)
	if n > 0 {
		return readResult{data: buf[:n]}
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return readResult{err: &ChannelError{Op: "receive", Err: err}}
}

func (k *Reader) absorb(res readResult) error {
	if res.err != nil {
		return res.err
	}
	k.pending = append(k.pending, res.data...)
	return nil
}

// split reports the length of the first unit in pending and whether it is
// complete. Incomplete units wait for the next read.
func (k *Reader) split() (int, bool) {
	p := k.pending
	b := p[0]
	switch {
	case b == keyESC:
		if len(p) == 1 {
			return 0, false
		}
		switch {
		case p[1] == 'O':
			// SS3: F1-F4 and application-mode cursor keys.
			if len(p) < 3 {
				return 0, false
			}
			return 3, true
		case p[1] != '[':
			if p[1] < 0x20 || p[1] == keyDEL {
				return 1, true
			}
			return 2, true
		case len(p) > 2 && p[2] == '[':
			// Linux console function keys: ESC [ [ A..E.
			if len(p) < 4 {
				return 0, false
			}
			return 4, true
		}
		// CSI: parameter bytes 0x30-0x3f, intermediates 0x20-0x2f, final 0x40-0x7e.
		for i := 2; i < len(p); i++ {
			if p[i] >= 0x40 && p[i] <= 0x7e {
				return i + 1, true
			}
			if p[i] < 0x20 || p[i] > 0x3f {
				return i, true
			}
		}
		return 0, false
	case b < 0x20 || b == keyDEL:
		return 1, true
	}
	i := 0
	for i < len(p) && p[i] >= 0x20 && p[i] != keyDEL {
		i++
	}
	if i < len(p) {
		return i, true
	}
	// Hold back a rune cut at the end of the read.
	tail := lastRuneStart(p)
	if tail < len(p) && !utf8.FullRune(p[tail:]) {
		if tail == 0 {
			return 0, false
		}
		return tail, true
	}
	return i, true
}

func lastRuneStart(p []byte) int {
	for j := len(p) - 1; j >= 0 && j >= len(p)-utf8.UTFMax; j-- {
		if utf8.RuneStart(p[j]) {
			return j
		}
	}
	return len(p)
}
