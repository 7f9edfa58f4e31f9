package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/dispatcher"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
)

const httpLogPrefix = "server:http"

const maxBodyBytes = 1 << 20

// Routes returns the HTTP handler: health endpoints, the route listing and
// the dispatch adapter.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleHome())
	r.Get("/health", s.handleHealth())
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.comms.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Get("/routes", s.handleRoutes())

	dispatch := s.handleDispatch()
	r.HandleFunc("/dispatch/{entity}/{action}/{method}", dispatch)
	r.HandleFunc("/dispatch/{entity}/{action}/{method}/{entityId}", dispatch)
	return r
}

// HealthOutput is the body of GET /health.
type HealthOutput struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	Generation string `json:"generation"`
	Comms      string `json:"comms"`
	UptimeMs   int64  `json:"uptimeMs"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) health() *HealthOutput {
	h := &HealthOutput{
		Status:     "healthy",
		Service:    s.cfg.COMMSName,
		Generation: s.disp.Generation().Name(),
		Comms:      "disabled",
		UptimeMs:   time.Since(s.started).Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if s.nc != nil {
		if err := s.nc.FlushTimeout(s.cfg.HealthCheckTimeout); err != nil {
			slog.Warn(fmt.Sprintf("%s - COMMS health check failed: %v", httpLogPrefix, err))
			h.Status = "unhealthy"
			h.Comms = "disconnected"
		} else {
			h.Comms = "connected"
		}
	}
	return h
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.health()
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

// RoutesOutput is the body of GET /routes.
type RoutesOutput struct {
	Generation string        `json:"generation"`
	Prefix     string        `json:"prefix"`
	Routes     []fetcher.Key `json:"routes"`
}

// HandlerRoutes lists the handlers the dispatcher can reach right now.
func (s *Server) HandlerRoutes() *RoutesOutput {
	gen := s.disp.Generation()
	prefix := s.fetch.Prefix()
	keys := s.reg.Keys(prefix, gen)
	if keys == nil {
		keys = []fetcher.Key{}
	}
	return &RoutesOutput{Generation: gen.Name(), Prefix: prefix, Routes: keys}
}

func (s *Server) handleRoutes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.HandlerRoutes())
	}
}

// homePageTemplate is the HTML for the dispatcher home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Health.Service}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    code { font-size: 0.9rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Health.Service}}</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Generation: {{.Health.Generation}}</p>
    <p>COMMS: {{.Health.Comms}}</p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Handlers</h2>
    {{if not .Routes.Routes}}
    <p>No handlers registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Entity</th><th>Action</th><th>Method</th><th>Path</th></tr>
      </thead>
      <tbody>
        {{range .Routes.Routes}}
        <tr>
          <td>{{.Entity}}</td>
          <td>{{.Action}}</td>
          <td>{{.Method}}</td>
          <td><code>/dispatch/{{.Entity}}/{{.Action}}/{{.Method}}</code></td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type homeData struct {
	Health *HealthOutput
	Routes *RoutesOutput
}

func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		data := homeData{Health: s.health(), Routes: s.HandlerRoutes()}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleDispatch maps an HTTP request onto a dispatch request. The JSON body
// is the data object; query parameters fill keys the body does not set.
func (s *Server) handleDispatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		candidate, err := requestCandidate(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		req, err := dispatcher.ValidateRequest(candidate)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()

		resp := s.disp.Dispatch(ctx, req)
		w.Header().Set(HeaderRequestID, req.ID)
		writeResponse(w, resp)
	}
}

func requestCandidate(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}

	candidate := map[string]interface{}{
		"id":     id,
		"entity": chi.URLParam(r, "entity"),
		"action": chi.URLParam(r, "action"),
		"method": chi.URLParam(r, "method"),
	}
	if entityID := chi.URLParam(r, "entityId"); entityID != "" {
		candidate["entityId"] = entityID
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	candidate["headers"] = headers

	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	candidate["cookies"] = cookies

	data, err := requestData(w, r)
	if err != nil {
		return nil, err
	}
	candidate["data"] = data
	return candidate, nil
}

// requestData decodes the body. Non-object bodies are passed through so that
// request validation reports them.
func requestData(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	var body interface{}
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, apiview.NewError(apiview.InvalidRequestData, "Invalid Request Data")
		}
	}

	query := r.URL.Query()
	if body == nil {
		if len(query) == 0 {
			return nil, nil
		}
		body = map[string]interface{}{}
	}
	obj, ok := body.(map[string]interface{})
	if !ok {
		return body, nil
	}
	for name := range query {
		if _, set := obj[name]; !set {
			obj[name] = query.Get(name)
		}
	}
	return obj, nil
}

func writeResponse(w http.ResponseWriter, resp *apiview.Response) {
	w.Header().Set("Content-Type", "application/json")
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	for name, value := range resp.Cookies {
		http.SetCookie(w, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	w.WriteHeader(statusCode(resp.Code))
	if resp.Body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(resp.Body); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response body: %v", httpLogPrefix, err))
	}
}

// statusCode returns code when net/http can write it, otherwise 500.
func statusCode(code int) int {
	if code < 100 || code > 999 {
		slog.Warn(fmt.Sprintf("%s - handler code %d is not a valid HTTP status, answering 500", httpLogPrefix, code))
		return http.StatusInternalServerError
	}
	return code
}

func writeError(w http.ResponseWriter, err error) {
	detail := errorDetail(err)
	writeJSON(w, detail.Code.HTTPStatus(), detail)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode JSON: %v", httpLogPrefix, err))
	}
}
