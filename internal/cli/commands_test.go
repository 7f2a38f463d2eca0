package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/internal/store"
)

func TestCommandTable_Lookup(t *testing.T) {
	tbl := NewCommandTable([]Command{
		{Names: []string{"Logout", "exit"}},
		{Names: []string{"exit", "other"}},
	})
	if cmd, ok := tbl.Lookup("EXIT"); !ok || cmd.Names[0] != "Logout" {
		t.Fatalf("first registration should own the alias, got %+v", cmd)
	}
	if got := strings.Join(tbl.Names(), ","); got != "logout,exit,other" {
		t.Fatalf("unexpected names %q", got)
	}
}

func TestParseConfirmation(t *testing.T) {
	cases := map[string]Confirmation{
		"y": Yes, "YES": Yes, " yes ": Yes,
		"n": No, "No": No,
		"": Invalid, "maybe": Invalid, "yess": Invalid,
	}
	for in, want := range cases {
		if got := ParseConfirmation(in); got != want {
			t.Errorf("ParseConfirmation(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRemoveUser_RootIsProtected(t *testing.T) {
	st := newFakeStore()
	c, conn, _ := newTestContext(store.RootUser, st)
	res := c.Dispatch("removeuser root")
	if res.Outcome != Executed || res.Signal != Continue {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(conn.out.String(), "The root account cannot be removed.") {
		t.Fatalf("missing protection message in %q", conn.out.String())
	}
	if ok, _ := st.Exists(store.RootUser); !ok || len(st.deleted) != 0 {
		t.Fatal("root was deleted")
	}
}

func TestRemoveUser(t *testing.T) {
	st := newFakeStore("bob")
	c, conn, _ := newTestContext(store.RootUser, st)
	c.Dispatch("removeuser bob")
	if ok, _ := st.Exists("bob"); ok {
		t.Fatal("bob not removed")
	}
	c.Dispatch("removeuser bob")
	if !strings.Contains(conn.out.String(), "User 'bob' does not exist.") {
		t.Fatalf("unexpected output %q", conn.out.String())
	}
}

func TestAddUser_PromptsAndCreates(t *testing.T) {
	st := newFakeStore()
	c, conn, _ := newTestContext("alice", st, "dave\r", "s3cret\r")
	res := c.Dispatch("adduser")
	if res.Outcome != Executed {
		t.Fatalf("unexpected result %+v", res)
	}
	if st.users["dave"] != "s3cret" {
		t.Fatalf("dave not created: %+v", st.users)
	}
	if strings.Contains(conn.out.String(), "s3cret") {
		t.Fatal("password echoed to the terminal")
	}
	for _, h := range c.Editor.History().Entries() {
		if h == "s3cret" {
			t.Fatal("password recorded in history")
		}
	}
}

func TestAddUser_RejectsDuplicate(t *testing.T) {
	st := newFakeStore("bob")
	c, conn, _ := newTestContext("alice", st)
	c.Dispatch("adduser bob")
	if !strings.Contains(conn.out.String(), "User 'bob' already exists.") {
		t.Fatalf("unexpected output %q", conn.out.String())
	}
	if st.users["bob"] != "pw" {
		t.Fatal("existing password overwritten")
	}
}

func TestAddUser_RejectsControlCharacters(t *testing.T) {
	st := newFakeStore()
	c, conn, _ := newTestContext("alice", st, "bo\x07b\r", "pw\r")
	if res := c.Dispatch("adduser"); res.Outcome != Executed {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(conn.out.String(), "Usernames cannot contain spaces or control characters.") {
		t.Fatalf("unexpected output %q", conn.out.String())
	}
	if len(st.users) != 1 {
		t.Fatalf("user created: %+v", st.users)
	}
}

func TestValidUsername(t *testing.T) {
	cases := map[string]bool{
		"bob":       true,
		"dev-ops_1": true,
		"":          false,
		"two words": false,
		"tab\tname": false,
		"bell\x07":  false,
		"del\x7f":   false,
	}
	for name, want := range cases {
		if got := validUsername(name); got != want {
			t.Errorf("validUsername(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPasswd_Mismatch(t *testing.T) {
	st := newFakeStore("alice")
	c, conn, _ := newTestContext("alice", st, "one\r", "two\r")
	c.Dispatch("passwd")
	if !strings.Contains(conn.out.String(), "Passwords do not match.") {
		t.Fatalf("unexpected output %q", conn.out.String())
	}
	if len(st.setPw) != 0 {
		t.Fatal("password changed despite mismatch")
	}
}

func TestPasswd_ChangesOwnPassword(t *testing.T) {
	st := newFakeStore("alice")
	c, _, _ := newTestContext("alice", st, "new\r", "new\r")
	if res := c.Dispatch("passwd"); res.Outcome != Executed {
		t.Fatalf("unexpected result %+v", res)
	}
	if st.users["alice"] != "new" {
		t.Fatal("password not updated")
	}
}

func TestPasswd_RefusesRootAndOthers(t *testing.T) {
	st := newFakeStore("alice", "bob")
	c, conn, _ := newTestContext("alice", st)
	c.Dispatch("passwd root")
	c.Dispatch("passwd bob")
	out := conn.out.String()
	if !strings.Contains(out, "only be changed with 'regenroot'") || !strings.Contains(out, "only change your own password") {
		t.Fatalf("unexpected output %q", out)
	}
	if len(st.setPw) != 0 {
		t.Fatal("password changed")
	}

	rc, rconn, _ := newTestContext(store.RootUser, st)
	rc.Dispatch("passwd root")
	if !strings.Contains(rconn.out.String(), "regenroot") {
		t.Fatal("root may not change its password with passwd")
	}
}

func TestRegenRoot_Confirmed(t *testing.T) {
	st := newFakeStore()
	c, conn, _ := newTestContext(store.RootUser, st, "yes\r")
	res := c.Dispatch("regenroot")
	if res.Signal != Terminate || st.regens != 1 {
		t.Fatalf("unexpected result %+v regens=%d", res, st.regens)
	}
	if !strings.Contains(conn.out.String(), "New root password: freshpw") {
		t.Fatalf("unexpected output %q", conn.out.String())
	}
}

func TestRegenRoot_Declined(t *testing.T) {
	st := newFakeStore()
	c, _, _ := newTestContext(store.RootUser, st, "n\r")
	if res := c.Dispatch("regenroot"); res.Signal != Continue || st.regens != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRegenRoot_InvalidAnswerFails(t *testing.T) {
	st := newFakeStore()
	c, conn, _ := newTestContext(store.RootUser, st, "perhaps\r")
	res := c.Dispatch("regenroot")
	if res.Outcome != CommandFailed || !errors.Is(res.Err, ErrInvalidConfirmation) {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Signal != Continue || st.regens != 0 {
		t.Fatal("invalid answer should not regenerate or end the session")
	}
	if !strings.Contains(conn.out.String(), msgFailed) {
		t.Fatal("generic failure message missing")
	}
}

func TestClear(t *testing.T) {
	c, conn, _ := newTestContext("alice", newFakeStore())
	c.Dispatch("clear")
	if conn.out.String() != lineedit.ClearScreen {
		t.Fatalf("unexpected output %q", conn.out.String())
	}
}

func TestLogout(t *testing.T) {
	for _, name := range []string{"logout", "exit", "QUIT"} {
		c, _, _ := newTestContext("alice", newFakeStore())
		if res := c.Dispatch(name); res.Signal != Terminate {
			t.Errorf("%s: expected Terminate, got %+v", name, res)
		}
	}
}

func TestHelp_ListsOnlyPermittedCommands(t *testing.T) {
	c, conn, _ := newTestContext("alice", newFakeStore())
	if res := c.Dispatch("?"); res.Outcome != Executed {
		t.Fatalf("unexpected result %+v", res)
	}
	out := conn.out.String()
	if !strings.Contains(out, "whoami") {
		t.Fatalf("help missing whoami: %q", out)
	}
	if strings.Contains(out, "regenroot") {
		t.Fatal("help shows root-only commands to a normal user")
	}
}

func TestSessions_ListsRegistry(t *testing.T) {
	c, conn, _ := newTestContext(store.RootUser, newFakeStore())
	reg := newCountingRegistry(0)
	e, _ := reg.Register(store.RootUser, "10.1.1.1:22", true)
	c.Sessions = reg
	c.SessionID = e.ID
	c.Dispatch("sessions")
	out := conn.out.String()
	if !strings.Contains(out, "10.1.1.1:22") || !strings.Contains(out, "(you)") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]string{"A", "Long"}, [][]string{{"xyz", "1"}})
	want := "\x1b[0m \x1b[107;30m  A       Long  \x1b[0m\n   xyz     1      \x1b[0m"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}
