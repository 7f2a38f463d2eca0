package sshserver

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/cli"
	"github.com/flowave-io/ctlpanel/internal/registry"
	"github.com/flowave-io/ctlpanel/internal/store"
	gossh "golang.org/x/crypto/ssh"
)

type staticVerifier map[string]string

func (v staticVerifier) Verify(u, p string) bool {
	pw, ok := v[u]
	return ok && pw == p
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(r audit.Record) error {
	a.mu.Lock()
	a.events = append(a.events, r.EventType)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) has(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

type noStore struct{}

func (noStore) Exists(string) (bool, error)      { return false, nil }
func (noStore) Create(string, string) error      { return nil }
func (noStore) Delete(string) error              { return nil }
func (noStore) SetPassword(string, string) error { return nil }
func (noStore) RegenerateRoot() (string, error)  { return "", nil }
func (noStore) List() ([]store.User, error)      { return nil, nil }

func startServer(t *testing.T, reg *registry.Registry, au *memAudit) string {
	t.Helper()
	priv, _, err := GenerateHostKey()
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ParseHostKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := New(l.Addr().String(), signer, staticVerifier{"alice": "pw"}, cli.Deps{
		Store:    noStore{},
		Audit:    au,
		Registry: reg,
	})
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })
	return l.Addr().String()
}

func dial(addr, user, pw string) (*gossh.Client, error) {
	return gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.Password(pw)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

// readUntil reads r until want appears or the deadline passes.
func readUntil(t *testing.T, r io.Reader, want string) string {
	t.Helper()
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		b := make([]byte, 256)
		for !strings.Contains(buf.String(), want) {
			n, err := r.Read(b)
			buf.Write(b[:n])
			if err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("%q not found in %q", want, buf.String())
	}
	return buf.String()
}

func TestServer_ShellSession(t *testing.T) {
	reg := registry.New(0)
	au := &memAudit{}
	addr := startServer(t, reg, au)

	client, err := dial(addr, "alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	if err := sess.RequestPty("xterm", 24, 80, gossh.TerminalModes{}); err != nil {
		t.Fatal(err)
	}
	stdin, _ := sess.StdinPipe()
	stdout, _ := sess.StdoutPipe()
	if err := sess.Shell(); err != nil {
		t.Fatal(err)
	}
	readUntil(t, stdout, "[#1]> ")
	io.WriteString(stdin, "whoami\r")
	readUntil(t, stdout, "alice (normal) connected from")
	io.WriteString(stdin, "logout\r")
	readUntil(t, stdout, "Goodbye.")
	if err := sess.Wait(); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if !au.has(audit.EventSessionEnd) {
		t.Fatal("session end not audited")
	}
	deadline := time.Now().Add(2 * time.Second)
	for reg.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reg.Count() != 0 {
		t.Fatal("session not unregistered")
	}
}

func TestServer_RejectsBadPassword(t *testing.T) {
	au := &memAudit{}
	addr := startServer(t, registry.New(0), au)
	if _, err := dial(addr, "alice", "wrong"); err == nil {
		t.Fatal("expected authentication failure")
	}
	if !au.has(audit.EventLoginFailed) {
		t.Fatal("failed login not audited")
	}
}

func TestServer_RejectsExec(t *testing.T) {
	addr := startServer(t, registry.New(0), &memAudit{})
	client, err := dial(addr, "alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	var stderr bytes.Buffer
	sess.Stderr = &stderr
	err = sess.Run("ls")
	var exitErr *gossh.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitStatus() != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
	if !strings.Contains(stderr.String(), "interactive shell") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestLoadOrCreateHostKey(t *testing.T) {
	path := t.TempDir() + "/keys/host_key"
	s1, created, err := LoadOrCreateHostKey(path)
	if err != nil || !created {
		t.Fatalf("expected new key, got created=%v err=%v", created, err)
	}
	s2, created, err := LoadOrCreateHostKey(path)
	if err != nil || created {
		t.Fatalf("expected existing key, got created=%v err=%v", created, err)
	}
	if Fingerprint(s1) != Fingerprint(s2) {
		t.Fatal("reloaded key differs")
	}
	if _, err := WriteHostKey(path, false); err == nil {
		t.Fatal("overwrite without flag should fail")
	}
}
