package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cast"

	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/store"
	"github.com/joescharf/issues/internal/ui"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

const (
	resultUpdated = "successfully updated"
	resultDeleted = "successfully deleted"
)

// Server provides the REST API handlers.
type Server struct {
	store store.Store
	log   *slog.Logger
}

// NewServer creates a new API server.
// The logger may be nil, in which case slog.Default() is used.
func NewServer(s store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store: s,
		log:   logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/issues/{project}", s.listIssues)
	mux.HandleFunc("POST /api/issues/{project}", s.createIssue)
	mux.HandleFunc("PUT /api/issues/{project}", s.updateIssue)
	mux.HandleFunc("DELETE /api/issues/{project}", s.deleteIssue)

	mux.HandleFunc("GET /api/projects", s.listProjects)

	if h, err := ui.Handler(); err == nil {
		mux.Handle("GET /", h)
	} else {
		s.log.Warn("landing page unavailable", "error", err)
	}

	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// outcome is the body of PUT and DELETE responses.
type outcome struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     string `json:"_id,omitempty"`
}

// isDomainError reports whether err is one of the store's expected
// failures, which are reported in the body with status 200.
func isDomainError(err error) bool {
	return errors.Is(err, store.ErrRequiredFields) ||
		errors.Is(err, store.ErrMissingID) ||
		errors.Is(err, store.ErrNoUpdateFields) ||
		errors.Is(err, store.ErrNotFound)
}

var errInvalidJSON = errors.New("invalid JSON")

// readFields decodes a JSON object or a urlencoded form body. An empty body
// yields no fields. Form values are always strings; JSON keeps its types,
// with numbers as json.Number.
func readFields(w http.ResponseWriter, r *http.Request) (store.Fields, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	fields := store.Fields{}
	if len(body) == 0 {
		return fields, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, errInvalidJSON
		}
		if fields == nil {
			fields = store.Fields{}
		}
		return fields, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	for key, vs := range values {
		if len(vs) > 0 {
			fields[key] = vs[0]
		}
	}
	return fields, nil
}

// idField extracts the _id value from a request body.
func idField(fields store.Fields) string {
	v, ok := fields[models.FieldID]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

func (s *Server) readFieldsOrFail(w http.ResponseWriter, r *http.Request) (store.Fields, bool) {
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return fields, true
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")

	filters := store.Filters{}
	for key, vs := range r.URL.Query() {
		if len(vs) > 0 {
			filters[key] = vs[0]
		}
	}

	issues, err := s.store.ListIssues(r.Context(), project, filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	fields, ok := s.readFieldsOrFail(w, r)
	if !ok {
		return
	}

	issue, err := s.store.AddIssue(r.Context(), project, fields)
	if err != nil {
		if isDomainError(err) {
			s.log.Debug("create issue rejected", "project", project, "error", err)
			writeError(w, http.StatusOK, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	fields, ok := s.readFieldsOrFail(w, r)
	if !ok {
		return
	}

	id := idField(fields)
	if id == "" {
		writeJSON(w, http.StatusOK, outcome{Error: store.ErrMissingID.Error()})
		return
	}

	if err := s.store.UpdateIssue(r.Context(), project, id, fields); err != nil {
		if isDomainError(err) {
			s.log.Debug("update issue rejected", "project", project, "id", id, "error", err)
			writeJSON(w, http.StatusOK, outcome{Error: err.Error(), ID: id})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome{Result: resultUpdated, ID: id})
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	fields, ok := s.readFieldsOrFail(w, r)
	if !ok {
		return
	}

	id := idField(fields)
	if id == "" {
		writeJSON(w, http.StatusOK, outcome{Error: store.ErrMissingID.Error()})
		return
	}

	if err := s.store.DeleteIssue(r.Context(), project, id); err != nil {
		if isDomainError(err) {
			s.log.Debug("delete issue rejected", "project", project, "id", id, "error", err)
			writeJSON(w, http.StatusOK, outcome{Error: err.Error(), ID: id})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome{Result: resultDeleted, ID: id})
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}
