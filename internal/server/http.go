package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chronologos/kvmlink/internal/protocol"
)

type sessionView struct {
	ID       string            `json:"id"`
	State    string            `json:"state"`
	Version  string            `json:"version,omitempty"`
	Screen   string            `json:"screen,omitempty"`
	Remote   string            `json:"remote"`
	Since    time.Time         `json:"since"`
	Info     *infoView         `json:"info,omitempty"`
	Options  map[string]uint32 `json:"options,omitempty"`
	Missed   int               `json:"missed_keepalives"`
	Received uint64            `json:"messages_received"`
	Sent     uint64            `json:"messages_sent"`
}

type infoView struct {
	X      int16  `json:"x"`
	Y      int16  `json:"y"`
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
	MouseX int16  `json:"mouse_x"`
	MouseY int16  `json:"mouse_y"`
}

type screenView struct {
	Name    string    `json:"name"`
	Session string    `json:"session"`
	Since   time.Time `json:"since"`
}

// Handler serves the status endpoints: /healthz, /sessions, /screens and
// /metrics from gatherer. A nil gatherer uses the default registry.
func (s *Server) Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})
	r.Get("/sessions", s.handleSessions)
	r.Get("/screens", s.handleScreens)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	statuses := s.Sessions()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Since.Before(statuses[j].Since) })

	out := make([]sessionView, 0, len(statuses))
	for _, st := range statuses {
		v := sessionView{
			ID:       st.ID,
			State:    st.State.String(),
			Screen:   st.Screen,
			Remote:   st.Remote,
			Since:    st.Since,
			Missed:   st.Missed,
			Received: st.Received,
			Sent:     st.Sent,
		}
		if !st.Version.IsZero() {
			v.Version = st.Version.String()
		}
		if len(st.Options) > 0 {
			v.Options = make(map[string]uint32, len(st.Options))
			for _, o := range st.Options {
				v.Options[protocol.OptionName(o.ID)] = o.Value
			}
		}
		if st.Info != nil {
			v.Info = &infoView{
				X: st.Info.X, Y: st.Info.Y,
				Width: st.Info.W, Height: st.Info.H,
				MouseX: st.Info.MouseX, MouseY: st.Info.MouseY,
			}
		}
		out = append(out, v)
	}
	writeJSON(w, out)
}

func (s *Server) handleScreens(w http.ResponseWriter, r *http.Request) {
	entries := s.screens.Snapshot()
	out := make([]screenView, 0, len(entries))
	for _, e := range entries {
		out = append(out, screenView{Name: e.Name, Session: e.Value.ID(), Since: e.Since})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
