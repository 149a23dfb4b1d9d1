package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"infrasim/internal/chaos"
	"infrasim/internal/sim"
	"infrasim/internal/topology"
)

// Server exposes run control and observation of one simulator over HTTP.
type Server struct {
	Sim *sim.Simulator
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Log     *slog.Logger

	tpl *template.Template
}

//go:embed templates/index.html
var content embed.FS

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
	Code    int      `json:"code"`
}

// ChaosRequest is the body of POST /chaos. Durations use Go syntax ("30s").
type ChaosRequest struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type"`
	Start    string             `json:"start,omitempty"`
	Duration string             `json:"duration,omitempty"`
	Targets  []string           `json:"targets,omitempty"`
	Params   map[string]float64 `json:"params,omitempty"`
	Cause    string             `json:"cause,omitempty"`
}

// Event converts the request into a chaos event.
func (c ChaosRequest) Event() (chaos.Event, error) {
	e := chaos.Event{
		ID:      c.ID,
		Type:    chaos.EventType(c.Type),
		Targets: c.Targets,
		Params:  c.Params,
		Cause:   c.Cause,
	}
	var err error
	if c.Start != "" {
		if e.Start, err = time.ParseDuration(c.Start); err != nil {
			return e, err
		}
	}
	if c.Duration != "" {
		if e.Duration, err = time.ParseDuration(c.Duration); err != nil {
			return e, err
		}
	}
	return e, nil
}

func NewServer(s *sim.Simulator, metrics http.Handler) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"pct": func(f float64) string { return strconv.FormatFloat(f*100, 'f', 1, 64) },
	}).ParseFS(content, "templates/index.html"))
	return &Server{Sim: s, Metrics: metrics, Log: slog.Default(), tpl: tpl}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /traffic", s.handleTraffic)
	mux.HandleFunc("POST /chaos", s.handleAddChaos)
	mux.HandleFunc("DELETE /chaos/{id}", s.handleRemoveChaos)
	mux.HandleFunc("POST /fix", s.handleFix)
	mux.HandleFunc("GET /validate", s.handleValidate)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /failures", s.handleFailures)
	mux.HandleFunc("GET /score", s.handleScore)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return s.loggingMiddleware(mux)
}

// Start listens on addr and serves until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv.Serve(ln)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Log.Debug("admin request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Log.Error("encode response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string, reasons ...string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Reasons: reasons,
		Code:    status,
	})
}

// statusFor maps simulator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, topology.ErrUnknownComponent), errors.Is(err, chaos.ErrUnknownEvent):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrInvalidTopology), errors.Is(err, sim.ErrNotRunning),
		errors.Is(err, sim.ErrNotPaused), errors.Is(err, sim.ErrStopped):
		return http.StatusConflict
	case errors.Is(err, chaos.ErrUnknownType), errors.Is(err, chaos.ErrMissingTargets),
		errors.Is(err, sim.ErrInvalidLevel), errors.Is(err, topology.ErrUnknownFix):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) control(w http.ResponseWriter, fn func() error) {
	if err := fn(); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.Sim.Snapshot())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Snap       *sim.Snapshot
		Validation topology.ValidationResult
	}{
		Snap:       s.Sim.Snapshot(),
		Validation: s.Sim.Validate(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.Log.Error("render index", "err", err)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Start(); err != nil {
		var reasons []string
		if errors.Is(err, sim.ErrInvalidTopology) {
			reasons = s.Sim.Validate().Reasons
		}
		s.respondError(w, statusFor(err), err.Error(), reasons...)
		return
	}
	s.respondJSON(w, http.StatusOK, s.Sim.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.Sim.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.Sim.Resume)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sc, err := s.Sim.Stop()
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.Sim.Reset)
}

func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.ParseFloat(r.URL.Query().Get("level"), 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "level must be a number")
		return
	}
	s.control(w, func() error { return s.Sim.SetTrafficLevel(level) })
}

func (s *Server) handleAddChaos(w http.ResponseWriter, r *http.Request) {
	var req ChaosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid chaos event: "+err.Error())
		return
	}
	ev, err := req.Event()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid chaos event: "+err.Error())
		return
	}
	stored, err := s.Sim.AddChaosEvent(ev)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleRemoveChaos(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.RemoveChaosEvent(r.PathValue("id")); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fix := topology.FixType(q.Get("type"))
	s.control(w, func() error { return s.Sim.ApplyFix(fix, q.Get("component")) })
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.Sim.Validate())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.Sim.Snapshot())
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	failures := s.Sim.FailureLog()
	if since := r.URL.Query().Get("since"); since != "" {
		tick, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "since must be a tick number")
			return
		}
		filtered := failures[:0:0]
		for _, f := range failures {
			if f.Tick >= tick {
				filtered = append(filtered, f)
			}
		}
		failures = filtered
	}
	s.respondJSON(w, http.StatusOK, failures)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.Sim.Score()
	if !ok {
		s.respondError(w, http.StatusNotFound, "the run has not stopped yet")
		return
	}
	s.respondJSON(w, http.StatusOK, sc)
}
