package status

import (
	"net/http"
	"time"

	"github.com/flowave-io/ctlpanel/internal/encoding/jsonx"
	"github.com/flowave-io/ctlpanel/internal/registry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Sessions is the read side of the session registry.
type Sessions interface {
	List() []registry.Entry
	Count() int
}

type sessionView struct {
	ID        uint64    `json:"id"`
	TraceID   string    `json:"trace_id"`
	Username  string    `json:"username"`
	Peer      string    `json:"peer"`
	Root      bool      `json:"root"`
	StartedAt time.Time `json:"started_at"`
}

// NewRouter serves GET /healthz and GET /sessions. It is read-only and meant
// for a loopback or otherwise trusted address.
func NewRouter(sessions Sessions, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		jsonx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"version":  version,
			"sessions": sessions.Count(),
		})
	})
	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		list := sessions.List()
		out := make([]sessionView, 0, len(list))
		for _, e := range list {
			out = append(out, sessionView(e))
		}
		jsonx.WriteJSON(w, http.StatusOK, out)
	})
	return r
}
