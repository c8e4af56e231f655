package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/morezero/service-host/pkg/lifecycle"
	"github.com/morezero/service-host/pkg/servicecache"
	"github.com/morezero/service-host/pkg/services"
)

// HostPrefix is where the host's own endpoints live. Leading underscores are
// private to the dispatcher, so no service member can shadow them.
const HostPrefix = "/_host"

// Router returns the HTTP handler: host endpoints under HostPrefix and the
// primary service everywhere else.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	// empty path segments are private and must reach the dispatcher as is
	r.SkipClean(true)

	r.HandleFunc(HostPrefix, s.handleHome()).Methods(http.MethodGet)
	r.HandleFunc(HostPrefix+"/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(HostPrefix+"/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc(HostPrefix+"/services", s.handleServices).Methods(http.MethodGet)
	r.HandleFunc(HostPrefix+"/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc(HostPrefix+"/requests", s.handleRequests).Methods(http.MethodGet)
	if s.cfg.MetricsEnabled && s.metrics != nil {
		r.Handle(HostPrefix+"/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.PathPrefix("/").Handler(s.disp.Handler(s.PrimaryService(), s.getInstance))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", logPrefix, err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   s.cfg.ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if s.orch.State() != lifecycle.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, s.orch.Status())
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"primary":  s.PrimaryService(),
		"services": s.cache.Entries(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	log, err := s.orch.Log()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	recent, ok := log.(interface{ Recent() []services.LogEntry })
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "log service keeps no entries"})
		return
	}
	writeJSON(w, http.StatusOK, recent.Recent())
}

func (s *Server) handleRequests(w http.ResponseWriter, _ *http.Request) {
	stats, ok := s.orch.Request().(interface{ Stats() services.RequestStats })
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request service not resolved"})
		return
	}
	writeJSON(w, http.StatusOK, stats.Stats())
}

// homePageTemplate is the HTML for the host status page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Host}} – Service Host</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .state-ready { color: #0066cc; font-weight: bold; }
    .state-other { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>{{.Host}}</h1>
  <p class="meta">Service host state, lifecycle phases and registered services.</p>

  <section>
    <h2>State</h2>
    <p>State: <span class="{{if eq .Status.State "ready"}}state-ready{{else}}state-other{{end}}">{{.Status.State}}</span></p>
    <p>Primary service: {{.Primary}}</p>
    <table>
      <thead>
        <tr><th>Phase</th><th>Outcome</th><th>Duration (ms)</th><th>Error</th></tr>
      </thead>
      <tbody>
        {{range .Phases}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.Status.Outcome}}</td>
          <td>{{.Status.DurationMs}}</td>
          <td class="error">{{.Status.Error}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </section>

  <section>
    <h2>Services</h2>
    {{if not .Services}}
    <p>No services registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Version</th><th>Type</th><th>Identifier</th></tr>
      </thead>
      <tbody>
        {{range .Services}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.Version}}</td>
          <td>{{.Type}}</td>
          <td>{{.ID}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type phaseRow struct {
	Name   lifecycle.Phase
	Status lifecycle.PhaseStatus
}

// homeData is the data passed to the home page template.
type homeData struct {
	Host     string
	Primary  string
	Status   lifecycle.Status
	Phases   []phaseRow
	Services []servicecache.Entry
}

func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, _ *http.Request) {
		st := s.orch.Status()
		data := homeData{
			Host:     s.cfg.ServiceName,
			Primary:  s.PrimaryService(),
			Status:   st,
			Services: s.cache.Entries(),
		}
		for _, p := range []lifecycle.Phase{lifecycle.PhaseRegister, lifecycle.PhaseConfig, lifecycle.PhaseInit, lifecycle.PhaseRun} {
			data.Phases = append(data.Phases, phaseRow{Name: p, Status: st.Phases[p]})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
