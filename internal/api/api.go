package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/review"
)

// Server provides the REST API handlers.
type Server struct {
	svc    *review.Service
	logger *zap.SugaredLogger
}

// NewServer creates a new API server.
func NewServer(svc *review.Service, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{svc: svc, logger: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/me", s.me)

	mux.HandleFunc("GET /api/v1/reviews", s.listReviews)
	mux.HandleFunc("POST /api/v1/reviews", s.submitReview)
	mux.HandleFunc("GET /api/v1/reviews/{id}", s.getReview)
	mux.HandleFunc("POST /api/v1/reviews/{id}/votes", s.castVote)
	mux.HandleFunc("POST /api/v1/reviews/{id}/finalize", s.finalizeReview)
	mux.HandleFunc("POST /api/v1/reviews/{id}/recompute", s.recomputeReview)

	mux.HandleFunc("POST /api/v1/tests/suggest", s.suggestTests)

	return corsMiddleware(s.logRequests(s.authenticate(mux)))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type sessionKey struct{}

// authenticate turns HTTP Basic credentials into the request's session.
// Requests without credentials run anonymously; bad credentials are refused.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := models.Anonymous()
		if user, pass, ok := r.BasicAuth(); ok {
			var err error
			sess, err = s.svc.Login(r.Context(), user, pass)
			if err != nil {
				writeServiceError(w, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) models.Session {
	sess, _ := r.Context().Value(sessionKey{}).(models.Session)
	return sess
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Basic realm="crev"`)
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrDuplicateVote), errors.Is(err, models.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrExtractionFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrReasoningUnavailable), errors.Is(err, models.ErrSandboxUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// --- Session ---

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !sess.Authenticated() {
		writeServiceError(w, models.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, sess.User)
}

// --- Reviews ---

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	if !sessionFrom(r).Authenticated() {
		writeServiceError(w, models.ErrUnauthenticated)
		return
	}
	status := models.ReviewStatus(r.URL.Query().Get("status"))
	reviews, err := s.svc.ListReviews(r.Context(), status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if reviews == nil {
		reviews = []*models.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	rev, err := s.svc.SubmitForReview(r.Context(), sessionFrom(r), body.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	if !sessionFrom(r).Authenticated() {
		writeServiceError(w, models.ErrUnauthenticated)
		return
	}
	detail, err := s.svc.GetReview(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if detail.Votes == nil {
		detail.Votes = []*models.Vote{}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rev, err := s.svc.Vote(r.Context(), sessionFrom(r), r.PathValue("id"), models.VoteChoice(body.Choice))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) finalizeReview(w http.ResponseWriter, r *http.Request) {
	rev, err := s.svc.Finalize(r.Context(), sessionFrom(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) recomputeReview(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !sess.Authenticated() {
		writeServiceError(w, models.ErrUnauthenticated)
		return
	}
	if !sess.HasRole(models.RoleLead) {
		writeServiceError(w, models.ErrUnauthorized)
		return
	}
	rev, err := s.svc.Recompute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// --- Tests ---

func (s *Server) suggestTests(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code  string `json:"code"`
		Tests string `json:"tests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	got, err := s.svc.SuggestTests(r.Context(), sessionFrom(r), body.Code, body.Tests)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}
