// Package api provides the HTTP admin endpoints for inspecting and
// invalidating session page stores.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/objectfs/pagestate/internal/circuit"
	"github.com/objectfs/pagestate/internal/pagestore"
	"github.com/objectfs/pagestate/internal/render"
	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
	"github.com/objectfs/pagestate/pkg/utils"
)

// ServerConfig configures the API server
type ServerConfig struct {
	// Address to bind the server to (e.g., "localhost:8080")
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      "localhost:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// BufferInvalidator drops render buffers held for a session.
type BufferInvalidator interface {
	RemoveSession(session string) int
}

// PageRenderer decides how a page request is answered.
type PageRenderer interface {
	Respond(req render.Request, out render.Responder) (render.Decision, error)
}

// Options carries the optional collaborators of a Server.
type Options struct {
	// Buffers, when set, is cleared alongside an invalidated session.
	Buffers  BufferInvalidator
	// Metrics, when set, is served at GET /metrics.
	Metrics  http.Handler
	// Breaker, when set, is the data store breaker reported by GET /health.
	Breaker  *circuit.Breaker
	// Renderer, when set, serves stored pages at GET /sessions/{session}/pages/{page}.
	Renderer PageRenderer
	Logger   *utils.StructuredLogger
}

// Server exposes a session registry over HTTP.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	registry   *pagestore.Registry
	buffers    BufferInvalidator
	breaker    *circuit.Breaker
	renderer   PageRenderer
	logger     *utils.StructuredLogger
	config     ServerConfig
}

// SessionSummary is one entry of GET /sessions.
type SessionSummary struct {
	ID    types.SessionID `json:"id"`
	Pages int             `json:"pages"`
	Bytes int64           `json:"bytes"`
}

// SessionDetail is the body of GET /sessions/{session}.
type SessionDetail struct {
	Stats   types.StoreStats `json:"stats"`
	PageIDs []types.PageID   `json:"page_ids"`
}

// NewServer creates a new API server
func NewServer(config ServerConfig, registry *pagestore.Registry, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	s := &Server{
		registry: registry,
		buffers:  opts.Buffers,
		breaker:  opts.Breaker,
		renderer: opts.Renderer,
		logger:   logger.WithComponent("api"),
		config:   config,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Route("/{session}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleInvalidateSession)
			r.Delete("/pages/{page}", s.handleRemovePage)
			if opts.Renderer != nil {
				r.Get("/pages/{page}", s.handleRenderPage)
			}
		})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	s.router = r

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           r,
		ReadHeaderTimeout: config.ReadTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting API server", map[string]interface{}{"address": s.config.Address})
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", map[string]interface{}{"error": err})
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"sessions":  s.registry.Len(),
		"timestamp": time.Now(),
	}

	statusCode := http.StatusOK
	if s.breaker != nil {
		state := s.breaker.State()
		response["data_store"] = state.String()
		if state == circuit.StateOpen {
			response["status"] = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}
	s.respondJSON(w, statusCode, response)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.Sessions()
	sessions := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		store, ok := s.registry.Session(id)
		if !ok {
			continue
		}
		stats := store.Stats()
		sessions = append(sessions, SessionSummary{
			ID:    id,
			Pages: stats.Table.Pages,
			Bytes: stats.Table.Bytes,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(chi.URLParam(r, "session"))
	store, ok := s.registry.Session(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, SessionDetail{
		Stats:   store.Stats(),
		PageIDs: store.IDs(),
	})
}

func (s *Server) handleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	found, err := s.registry.Invalidate(r.Context(), types.SessionID(id))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if !found {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}

	buffers := 0
	if s.buffers != nil {
		buffers = s.buffers.RemoveSession(id)
	}
	s.logger.Info("session invalidated", map[string]interface{}{
		"session":         id,
		"buffers_removed": buffers,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemovePage(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(chi.URLParam(r, "session"))
	pageID, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "page id must be an integer")
		return
	}

	store, ok := s.registry.Session(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	_, removed, err := store.RemovePage(r.Context(), types.PageID(pageID))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound, "page not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// storedPage renders the bytes of a stored page. Its canonical URL is the
// page's path without query.
type storedPage struct {
	url  string
	data []byte
}

func (p *storedPage) TargetURL() string { return p.url }

func (p *storedPage) Stateless() bool { return false }

func (p *storedPage) Render(string) (*render.BufferedResponse, error) {
	header := make(http.Header)
	header.Set("Content-Type", "application/octet-stream")
	return &render.BufferedResponse{StatusCode: http.StatusOK, Header: header, Body: p.data}, nil
}

func (s *Server) handleRenderPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	pageID, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "page id must be an integer")
		return
	}

	store, ok := s.registry.Session(types.SessionID(id))
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	data, ok, err := store.GetPage(r.Context(), types.PageID(pageID))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "page not found")
		return
	}

	decision, err := s.renderer.Respond(render.Request{
		Session:    id,
		CurrentURL: r.URL.RequestURI(),
		Policy:     render.RedirectAuto,
		Ajax:       r.Header.Get("X-Requested-With") == "XMLHttpRequest",
		Page:       &storedPage{url: r.URL.Path, data: data},
	}, &render.HTTPResponder{W: w, R: r})
	if err != nil {
		s.logger.Warn("page response failed", map[string]interface{}{
			"session": id,
			"page_id": pageID,
			"error":   err,
		})
		return
	}
	s.logger.Debug("page served", map[string]interface{}{
		"session": id,
		"page_id": pageID,
		"action":  decision.Action.String(),
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", map[string]interface{}{"error": err})
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}

// respondErr maps a PageStateError to its HTTP status and code.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var pe *errors.PageStateError
	if stderrors.As(err, &pe) && pe.HTTPStatus != 0 {
		status = pe.HTTPStatus
	}
	s.respondJSON(w, status, map[string]interface{}{
		"error":     err.Error(),
		"code":      errors.CodeOf(err),
		"timestamp": time.Now(),
	})
}
