// Package catalogserver serves the course data service contract over a
// catalog store.
package catalogserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/internal/catalog"
	"github.com/goliatone/go-cascade/pkg/dataservice"
	"github.com/goliatone/go-cascade/schema/openapi"
)

// Catalog is the read surface the server needs from a catalog store.
type Catalog interface {
	Institutions(ctx context.Context) ([]dataservice.Institution, error)
	CourseCodes(ctx context.Context, institutionID string) ([]string, error)
	CourseTitles(ctx context.Context, institutionID string) ([]string, error)
	CourseTitle(ctx context.Context, institutionID, courseCode string) (string, error)
	Terms(ctx context.Context, institutionID, courseCode string) ([]string, error)
	Search(ctx context.Context, query cascade.SearchQuery) ([]cascade.CourseResult, error)
	CourseDetail(ctx context.Context, courseID string) (dataservice.CourseDetail, error)
	Ping(ctx context.Context) error
}

var _ Catalog = (*catalog.Store)(nil)

// Error codes written in the JSON error envelope.
const (
	CodeMissingParameter = "missing_parameter"
	CodeInvalidType      = "invalid_type"
	CodeNotFound         = "not_found"
	CodeLookupFailed     = "lookup_failed"
	CodeSearchFailed     = "search_failed"
	CodeBadRequest       = "bad_request"
)

// Server implements the data service endpoints.
type Server struct {
	catalog  Catalog
	logger   *zap.Logger
	basePath string
	registry *prometheus.Registry
	metrics  *metrics
	openapi  []byte
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger (default: zap.NewNop).
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBasePath mounts the data endpoints under path (default: /api).
func WithBasePath(path string) Option {
	return func(s *Server) {
		path = strings.Trim(strings.TrimSpace(path), "/")
		if path == "" {
			s.basePath = ""
			return
		}
		s.basePath = "/" + path
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// New builds a server over c.
func New(c Catalog, opts ...Option) (*Server, error) {
	if c == nil {
		return nil, errors.New("catalogserver: catalog is required")
	}
	s := &Server{
		catalog:  c,
		logger:   zap.NewNop(),
		basePath: "/api",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)

	doc, err := openapi.JSON(openapi.WithBasePath(s.basePath))
	if err != nil {
		return nil, fmt.Errorf("catalogserver: build openapi document: %w", err)
	}
	s.openapi = doc
	return s, nil
}

// Handler returns an http.Handler that serves the data service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.basePath+"/"+dataservice.PathSearchOptions, s.metrics.instrument(dataservice.PathSearchOptions, s.handleSearchOptions))
	mux.HandleFunc(s.basePath+"/"+dataservice.PathSearchCourse, s.metrics.instrument(dataservice.PathSearchCourse, s.handleSearchCourse))
	detail := s.metrics.instrument(dataservice.PathCourseDetail, s.handleCourseDetail)
	mux.HandleFunc(s.basePath+"/"+dataservice.PathCourseDetail, detail)
	mux.HandleFunc(s.basePath+"/getCourseDetails", detail)
	mux.HandleFunc("/openapi.json", s.handleOpenAPI)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("catalog server listening", zap.String("addr", addr), zap.String("base_path", s.basePath))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleSearchOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
		return
	}
	params := r.URL.Query()
	typ := strings.TrimSpace(params.Get("type"))
	institutionID := strings.TrimSpace(params.Get("institutionId"))
	courseCode := strings.TrimSpace(params.Get("courseCode"))
	ctx := r.Context()

	needsInstitution := typ != dataservice.TypeInstitutions
	if typ == "" {
		s.writeError(w, http.StatusBadRequest, CodeMissingParameter, "type is required")
		return
	}
	if needsInstitution && institutionID == "" {
		s.writeError(w, http.StatusBadRequest, CodeMissingParameter, "institutionId is required")
		return
	}

	var (
		payload any
		err     error
	)
	switch typ {
	case dataservice.TypeInstitutions:
		payload, err = s.catalog.Institutions(ctx)
	case dataservice.TypeCourseCodes:
		payload, err = s.catalog.CourseCodes(ctx, institutionID)
	case dataservice.TypeCourseTitles:
		payload, err = s.catalog.CourseTitles(ctx, institutionID)
	case dataservice.TypeTerms:
		payload, err = s.catalog.Terms(ctx, institutionID, courseCode)
	case dataservice.TypeCourseTitle:
		if courseCode == "" {
			s.writeError(w, http.StatusBadRequest, CodeMissingParameter, "courseCode is required")
			return
		}
		var title string
		title, err = s.catalog.CourseTitle(ctx, institutionID, courseCode)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			payload, err = nil, nil
		case err == nil:
			payload = title
		}
	default:
		s.writeError(w, http.StatusBadRequest, CodeInvalidType, fmt.Sprintf("unknown type %q", typ))
		return
	}
	if err != nil {
		s.logger.Warn("option lookup failed",
			zap.String("type", typ),
			zap.String("institution_id", institutionID),
			zap.String("course_code", courseCode),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, CodeLookupFailed, "Error loading options: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearchCourse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
		return
	}
	query, err := readQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request",
		zap.String("institution_name", query.InstitutionName),
		zap.String("course_code", query.CourseCode),
		zap.String("course_title", query.CourseTitle),
		zap.String("term", query.Term),
		zap.String("schedule", query.Schedule),
		zap.String("delivery_method", query.DeliveryMethod),
	)

	results, err := s.catalog.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, CodeSearchFailed, "Error processing search request: "+err.Error())
		return
	}
	s.metrics.results.Observe(float64(len(results)))
	s.writeJSON(w, http.StatusOK, results)
}

// readQuery accepts a form or JSON body. Missing keys read as empty.
func readQuery(r *http.Request) (cascade.SearchQuery, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var query cascade.SearchQuery
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			return cascade.SearchQuery{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		return query, nil
	}
	if err := r.ParseForm(); err != nil {
		return cascade.SearchQuery{}, fmt.Errorf("invalid form body: %w", err)
	}
	return cascade.QueryFromValues(r.PostForm), nil
}

func (s *Server) handleCourseDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
		return
	}
	courseID := strings.TrimSpace(r.URL.Query().Get("courseId"))
	if courseID == "" {
		s.writeError(w, http.StatusBadRequest, CodeMissingParameter, "courseId is required")
		return
	}
	detail, err := s.catalog.CourseDetail(r.Context(), courseID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.writeError(w, http.StatusNotFound, CodeNotFound, "course not found")
		return
	case err != nil:
		s.logger.Warn("course detail failed", zap.String("course_id", courseID), zap.Error(err))
		s.writeError(w, http.StatusBadRequest, CodeLookupFailed, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.openapi)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, CodeLookupFailed, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{"error": message, "code": code})
}
