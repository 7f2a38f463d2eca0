package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/cli"
	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/pkg/log"
	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// Verifier checks login credentials.
type Verifier interface {
	Verify(username, password string) bool
}

// Server accepts SSH connections and runs a panel session on each shell.
type Server struct {
	srv    *ssh.Server
	verify Verifier
	deps   cli.Deps
}

// New returns a server listening on addr once started. Passwords are
// checked with verify; every shell gets its own session built from deps.
func New(addr string, hostKey gossh.Signer, verify Verifier, deps cli.Deps) *Server {
	s := &Server{verify: verify, deps: deps}
	s.srv = &ssh.Server{
		Addr:            addr,
		Handler:         s.handle,
		PasswordHandler: s.checkPassword,
	}
	s.srv.AddHostKey(hostKey)
	return s
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Serve accepts connections on l until Shutdown or Close.
func (s *Server) Serve(l net.Listener) error { return s.srv.Serve(l) }

// Shutdown stops accepting connections and waits for live ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// Close drops every connection immediately.
func (s *Server) Close() error { return s.srv.Close() }

// ErrServerClosed is returned by Serve after Shutdown or Close.
var ErrServerClosed = ssh.ErrServerClosed

func (s *Server) checkPassword(ctx ssh.Context, password string) bool {
	if s.verify.Verify(ctx.User(), password) {
		return true
	}
	peer := ctx.RemoteAddr().String()
	l := log.Session("", peer)
	l.Warnf("Failed login attempt for '%s'", log.SanitizeForLog(ctx.User()))
	if s.deps.Audit != nil {
		err := s.deps.Audit.Log(audit.Record{
			EventType: audit.EventLoginFailed,
			Username:  ctx.User(),
			SourceIP:  peer,
			Details:   "invalid credentials",
		})
		if err != nil {
			l.Warnf("Audit write failed for %s: %v", audit.EventLoginFailed, err)
		}
	}
	return false
}

func (s *Server) handle(sess ssh.Session) {
	peer := sess.RemoteAddr().String()
	if sess.RawCommand() != "" {
		log.Session(sess.User(), peer).Warn("Rejected non-interactive request")
		io.WriteString(sess.Stderr(), "This server only provides an interactive shell.\r\n")
		sess.Exit(1)
		return
	}
	id := cli.Identity{Username: sess.User(), Peer: peer}
	if pty, winCh, ok := sess.Pty(); ok {
		id.Width = pty.Window.Width
		go func() {
			for range winCh {
			}
		}()
	}
	err := cli.RunSession(sess, id, s.deps)
	if err == nil || errors.Is(err, lineedit.ErrCancelled) {
		sess.Exit(0)
		return
	}
	sess.Exit(1)
}
