// Package web serves a read-only view of the run history.
package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/zhuang-keju/GreyCells/internal/db"
)

// Server provides the web UI handlers and state.
type Server struct {
	store *db.Store
}

// NewServer creates a new web server over the run store.
func NewServer(store *db.Store) (*Server, error) {
	return &Server{store: store}, nil
}

//go:embed templates/*.html
var templatesFS embed.FS

// Routes returns the router for the web UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	return mux
}

type runRow struct {
	ID          string
	Status      string
	Attempt     int
	MaxAttempts int
	CreatedAt   string
	Story       string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	runs, err := s.store.ListRuns(r.Context(), 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]runRow, 0, len(runs))
	for _, rec := range runs {
		rows = append(rows, runRow{
			ID:          rec.ID,
			Status:      rec.Status,
			Attempt:     rec.Attempt,
			MaxAttempts: rec.MaxAttempts,
			CreatedAt:   rec.CreatedAt,
			Story:       truncate(rec.Story, 96),
		})
	}
	if err := tmpl.Execute(w, rows); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type runPage struct {
	Run       db.RunRecord
	Events    []db.EventRecord
	Decisions []db.DecisionRecord
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templatesFS, "templates/run.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id := r.PathValue("id")
	rec, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	decisions, err := s.store.ListDecisions(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	page := runPage{Run: rec, Events: events, Decisions: decisions}
	if err := tmpl.Execute(w, page); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
