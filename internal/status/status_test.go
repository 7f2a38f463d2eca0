package status

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowave-io/ctlpanel/internal/encoding/jsonx"
	"github.com/flowave-io/ctlpanel/internal/registry"
)

func TestHealthz(t *testing.T) {
	reg := registry.New(0)
	reg.Register("alice", "p:1", false)
	rec := httptest.NewRecorder()
	NewRouter(reg, "1.2.3").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Version  string `json:"version"`
		Sessions int    `json:"sessions"`
	}
	if err := jsonx.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Version != "1.2.3" || body.Sessions != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSessions(t *testing.T) {
	reg := registry.New(0)
	reg.Register("alice", "p:1", false)
	reg.Register("root", "p:2", true)
	rec := httptest.NewRecorder()
	NewRouter(reg, "dev").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	var got []sessionView
	if err := jsonx.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Username != "alice" || !got[1].Root {
		t.Fatalf("unexpected sessions %+v", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(registry.New(0), "dev").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
