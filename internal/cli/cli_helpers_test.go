package cli

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/internal/registry"
	"github.com/flowave-io/ctlpanel/internal/store"
	"github.com/flowave-io/ctlpanel/pkg/log"
)

// scriptConn replays input chunks one per Read, then reports io.EOF.
type scriptConn struct {
	chunks [][]byte
	out    bytes.Buffer
}

func newScriptConn(chunks ...string) *scriptConn {
	c := &scriptConn{}
	for _, s := range chunks {
		c.chunks = append(c.chunks, []byte(s))
	}
	return c
}

func (c *scriptConn) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *scriptConn) Write(p []byte) (int, error) { return c.out.Write(p) }

type fakeStore struct {
	users   map[string]string
	deleted []string
	regens  int
	setPw   []string
}

func newFakeStore(names ...string) *fakeStore {
	s := &fakeStore{users: map[string]string{store.RootUser: "rootpw"}}
	for _, n := range names {
		s.users[n] = "pw"
	}
	return s
}

func (s *fakeStore) Exists(u string) (bool, error) {
	_, ok := s.users[u]
	return ok, nil
}

func (s *fakeStore) Create(u, pw string) error {
	if _, ok := s.users[u]; ok {
		return store.ErrUserExists
	}
	s.users[u] = pw
	return nil
}

func (s *fakeStore) Delete(u string) error {
	if u == store.RootUser {
		return store.ErrRootProtected
	}
	if _, ok := s.users[u]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.users, u)
	s.deleted = append(s.deleted, u)
	return nil
}

func (s *fakeStore) SetPassword(u, pw string) error {
	if u == store.RootUser {
		return store.ErrRootProtected
	}
	if _, ok := s.users[u]; !ok {
		return store.ErrUserNotFound
	}
	s.users[u] = pw
	s.setPw = append(s.setPw, u)
	return nil
}

func (s *fakeStore) RegenerateRoot() (string, error) {
	s.regens++
	s.users[store.RootUser] = "freshpw"
	return "freshpw", nil
}

func (s *fakeStore) List() ([]store.User, error) {
	var out []store.User
	for u := range s.users {
		out = append(out, store.User{Username: u})
	}
	return out, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *fakeAudit) Log(r audit.Record) error {
	a.mu.Lock()
	a.records = append(a.records, r)
	a.mu.Unlock()
	return nil
}

func (a *fakeAudit) count(event string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.records {
		if r.EventType == event {
			n++
		}
	}
	return n
}

// countingRegistry records Unregister calls on top of a real registry.
type countingRegistry struct {
	*registry.Registry
	unregistered map[uint64]int
}

func newCountingRegistry(max int) *countingRegistry {
	return &countingRegistry{Registry: registry.New(max), unregistered: map[uint64]int{}}
}

func (r *countingRegistry) Unregister(id uint64) bool {
	r.unregistered[id]++
	return r.Registry.Unregister(id)
}

func newTestContext(user string, st *fakeStore, chunks ...string) (*Context, *scriptConn, *fakeAudit) {
	conn := newScriptConn(chunks...)
	au := &fakeAudit{}
	c := &Context{
		Username:  user,
		Level:     LevelFor(user),
		Peer:      "127.0.0.1:40000",
		SessionID: 1,
		Editor:    lineedit.New(conn, lineedit.Options{InPlaceHistory: true}),
		Store:     st,
		Audit:     au,
		Sessions:  registry.New(0),
		Commands:  NewCommandTable(DefaultCommands()),
		Log:       log.Session(user, "127.0.0.1:40000"),
	}
	return c, conn, au
}

type failingAudit struct{}

func (failingAudit) Log(audit.Record) error { return errors.New("disk full") }
