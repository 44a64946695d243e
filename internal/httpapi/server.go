package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sensor-hub/internal/control"
	"sensor-hub/internal/realtime"
	"sensor-hub/internal/store"
)

// recentSampleCount is how many samples the dashboard charts render.
const recentSampleCount = 30

type Server struct {
	repo    *store.Repo
	cache   *store.StateCache
	toggler *control.Toggler
	hub     *realtime.Hub
}

func New(repo *store.Repo, cache *store.StateCache, toggler *control.Toggler, hub *realtime.Hub) *Server {
	return &Server{repo: repo, cache: cache, toggler: toggler, hub: hub}
}

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/iot", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/telemetry/latest", s.handleLatest)
		r.Get("/telemetry/recent", s.handleRecent)
		r.Get("/telemetry/search", s.handleSearch)
		r.Delete("/telemetry", s.handleDeleteRange)
		r.Get("/devices/states", s.handleDeviceStates)
		r.Post("/devices/{deviceName}/toggle", s.handleToggle)
		r.Get("/actions", s.handleActions)
		r.Get("/live", s.hub.ServeHTTP)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "liveSessions": s.hub.Sessions()})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.cache != nil {
		cached, err := s.cache.LatestSample(ctx)
		if err != nil {
			slog.Warn("latest sample cache read failed", "error", err)
		} else if cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	sample, err := s.repo.LatestSample(ctx)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no telemetry recorded yet")
		return
	}
	if err != nil {
		slog.Error("latest sample query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load latest sample")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	rows, err := s.repo.RecentSamples(r.Context(), recentSampleCount)
	if err != nil {
		slog.Error("recent samples query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load recent samples")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, known := parseSearchMode(q.Get("searchType"))
	page := parsePositive(q.Get("pageNumber"), 1)
	size := parsePositive(q.Get("pageSize"), 10)
	if !known {
		// An unsupported field can never match anything.
		writeJSON(w, http.StatusOK, store.Page[store.TelemetrySample]{Data: []store.TelemetrySample{}, PageNumber: page, TotalPages: 0})
		return
	}

	query := store.SampleQuery{
		Term:     strings.TrimSpace(q.Get("searchTerm")),
		Mode:     mode,
		SortBy:   store.ParseSortField(q.Get("sortBy")),
		SortDesc: !strings.EqualFold(strings.TrimSpace(q.Get("sortOrder")), "asc"),
		Page:     page,
		PageSize: size,
	}

	result, err := s.repo.SearchSamples(r.Context(), query)
	if err != nil {
		slog.Error("telemetry search failed", "term", query.Term, "error", err)
		writeError(w, http.StatusInternalServerError, "could not search telemetry")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseSearchMode maps the searchType query value onto the closed search
// mode. The second return is false for an unknown field name.
func parseSearchMode(v string) (store.SearchMode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "all", "auto", "smart":
		return store.Auto, true
	}
	f, ok := store.ParseSampleField(v)
	if !ok {
		return store.Auto, false
	}
	return store.ByField(f), true
}

func (s *Server) handleDeleteRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(q.Get("startDate")), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate must be yyyy-MM-dd")
		return
	}
	end, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(q.Get("endDate")), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "endDate must be yyyy-MM-dd")
		return
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "startDate must not be after endDate")
		return
	}
	now := time.Now().In(time.Local)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if !end.Before(today) {
		writeError(w, http.StatusBadRequest, "endDate must be before today")
		return
	}

	// Inclusive day range entered in local time, compared against UTC rows.
	deleted, err := s.repo.DeleteSampleRange(r.Context(), start, end.AddDate(0, 0, 1))
	if err != nil {
		slog.Error("telemetry range delete failed", "start", start, "end", end, "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete telemetry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleDeviceStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.repo.CurrentDeviceStates(r.Context())
	if err != nil {
		slog.Error("device states query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load device states")
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "deviceName")
	cmd, err := s.toggler.Toggle(r.Context(), name)
	switch {
	case errors.Is(err, control.ErrEmptyName):
		writeError(w, http.StatusBadRequest, "device name cannot be empty")
		return
	case errors.Is(err, control.ErrPublish):
		slog.Error("device command publish failed", "device", name, "error", err)
		writeError(w, http.StatusBadGateway, "could not command device")
		return
	case err != nil:
		slog.Error("toggle failed", "device", name, "error", err)
		writeError(w, http.StatusInternalServerError, "could not toggle device")
		return
	}
	writeJSON(w, http.StatusAccepted, cmd)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.ActionQuery{
		DeviceName: strings.TrimSpace(q.Get("deviceName")),
		Page:       parsePositive(q.Get("pageNumber"), 1),
		PageSize:   parsePositive(q.Get("pageSize"), 10),
	}

	result, err := s.repo.SearchActions(r.Context(), query)
	if err != nil {
		slog.Error("action history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load action history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parsePositive(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return def
	}
	return n
}
