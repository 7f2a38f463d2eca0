package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	colorReset = "\x1b[0m"
	colorWarn  = "\x1b[1;38;5;220m"
	colorError = "\x1b[1;38;5;160m"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init mirrors log output to an append-only file at path in addition to stdout.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return nil
}

// Close detaches the log file and restores stdout-only output.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(os.Stdout)
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// SetOutput redirects all log output. Used by tests.
func SetOutput(w io.Writer) { log.SetOutput(w) }

func emit(color, level, tag string, v ...any) {
	args := make([]any, 0, len(v)+1)
	head := "[" + color + level + colorReset
	if tag != "" {
		head += " - " + color + tag + colorReset
	}
	args = append(args, head+"]")
	args = append(args, v...)
	log.Println(args...)
}

func Fatal(v ...any) { emit(colorError, "FATAL", "", v...) }

func Info(v ...any) { emit(colorReset, "INFO", "", v...) }

func Warn(v ...any) { emit(colorWarn, "WARNING", "", v...) }

func Error(v ...any) { emit(colorError, "ERROR", "", v...) }

func Infof(format string, v ...any) { Info(fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { Warn(fmt.Sprintf(format, v...)) }

func Errorf(format string, v ...any) { Error(fmt.Sprintf(format, v...)) }

// Logger tags every line with the identity of one connected session.
type Logger struct {
	tag string
}

// Session returns a Logger for user@peer. An empty user is shown as "Not Logged In".
func Session(user, peer string) Logger {
	if user == "" {
		user = "Not Logged In"
	}
	return Logger{tag: SanitizeForLog(user) + "@" + SanitizeForLog(peer)}
}

func (l Logger) Info(v ...any) { emit(colorReset, "INFO", l.tag, v...) }

func (l Logger) Warn(v ...any) { emit(colorWarn, "WARNING", l.tag, v...) }

func (l Logger) Error(v ...any) { emit(colorError, "ERROR", l.tag, v...) }

func (l Logger) Infof(format string, v ...any) { l.Info(fmt.Sprintf(format, v...)) }

func (l Logger) Warnf(format string, v ...any) { l.Warn(fmt.Sprintf(format, v...)) }

func (l Logger) Errorf(format string, v ...any) { l.Error(fmt.Sprintf(format, v...)) }

// SanitizeForLog removes newlines and control characters from user-provided
// strings so a client cannot forge extra log entries.
func SanitizeForLog(s string) string {
	s = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}
