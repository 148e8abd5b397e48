// Package admin serves the vessel's HTTP status surface: a status page, its
// JSON snapshot, an operator command endpoint, metrics and liveness.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/observability"
)

//go:embed templates/index.html
var content embed.FS

// Publisher receives commands posted to /command.
type Publisher interface {
	Publish(bus.Payload)
}

type Server struct {
	status *Status
	pub    Publisher
	tpl    *template.Template
	log    *slog.Logger
	newID  func() string
}

func NewServer(status *Status, pub Publisher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	tpl := template.Must(template.New("index.html").
		Funcs(template.FuncMap{"stateColor": stateColor}).
		ParseFS(content, "templates/index.html"))
	return &Server{
		status: status,
		pub:    pub,
		tpl:    tpl,
		log:    logger.With("component", "admin"),
		newID:  uuid.NewString,
	}
}

// Handler returns the routes of the admin surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/healthz", observability.Healthz)
	mux.Handle("/metrics", observability.Handler())
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, s.status.Snapshot()); err != nil {
		s.log.Error("render status page", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status.Snapshot())
}

// handleCommand accepts a JSON command body, or ?name= for the buttons of the
// status page, and publishes it for the driver loop. The outcome arrives
// later as a COMMAND_ACK event.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload := []byte(r.URL.Query().Get("name"))
	if len(payload) == 0 {
		body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload = body
	}
	cmd, err := bus.DecodeCommand(payload, "http", s.newID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.pub.Publish(cmd)
	s.log.Info("command queued", "id", cmd.ID, "name", cmd.Name)

	if r.URL.Query().Get("name") != "" && acceptsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"id": cmd.ID, "name": cmd.Name})
}

func acceptsHTML(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if len(v) >= 9 && v[:9] == "text/html" {
			return true
		}
	}
	return false
}
