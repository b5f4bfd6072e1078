package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"curator/internal/core"
	"curator/internal/services"
)

// HealthResponse is the /health body
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// FeedsResponse is the GET /api/feeds body
type FeedsResponse struct {
	Articles []core.Article `json:"articles"`
	Count    int            `json:"count"`
}

// QuestionsResponse is the GET /api/questions body
type QuestionsResponse struct {
	Questions []core.MicroQuestion `json:"questions"`
}

// SitesResponse is the GET /api/sites body
type SitesResponse struct {
	Sites      []core.Source `json:"sites"`
	Categories []string      `json:"categories"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

var serverStartTime = time.Now()

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	uptime := time.Since(serverStartTime).Round(time.Second).String()

	if _, err := s.store.GetPreferences(r.Context()); err != nil {
		checks["store"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Uptime: uptime,
			Checks: checks,
		})
		return
	}
	checks["store"] = "ok"

	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: uptime,
		Checks: checks,
	})
}

// handleGetFeeds handles GET /api/feeds
func (s *Server) handleGetFeeds(w http.ResponseWriter, r *http.Request) {
	articles, err := s.articles.FetchAllArticles(r.Context())
	if err != nil {
		s.log.Error("Failed to build feed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to build feed")
		return
	}
	if articles == nil {
		articles = []core.Article{}
	}
	s.respondJSON(w, http.StatusOK, FeedsResponse{Articles: articles, Count: len(articles)})
}

// handleAction handles POST /api/feeds
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req services.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.dispatcher.Dispatch(r.Context(), req)
	if errors.Is(err, services.ErrUnknownAction) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("Action failed", "action", req.Action, "error", err)
		s.respondError(w, http.StatusInternalServerError, "action failed")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleListQuestions handles GET /api/questions
func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.store.GetPreferences(r.Context())
	if err != nil {
		s.log.Error("Failed to read preferences", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to read preferences")
		return
	}
	questions := prefs.PendingQuestions
	if questions == nil {
		questions = []core.MicroQuestion{}
	}
	s.respondJSON(w, http.StatusOK, QuestionsResponse{Questions: questions})
}

// handleListSites handles GET /api/sites
func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sites, err := s.store.GetSites(ctx)
	if err != nil {
		s.log.Error("Failed to read sites", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to read sites")
		return
	}
	categories, err := s.store.GetCategories(ctx)
	if err != nil {
		s.log.Error("Failed to read categories", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to read categories")
		return
	}
	if sites == nil {
		sites = []core.Source{}
	}
	if categories == nil {
		categories = []string{}
	}
	s.respondJSON(w, http.StatusOK, SitesResponse{Sites: sites, Categories: categories})
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
