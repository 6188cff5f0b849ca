package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taxiiwatch/internal/feed"
	"taxiiwatch/internal/refresh"
	"taxiiwatch/internal/stix"
	"taxiiwatch/internal/store"
	"taxiiwatch/internal/taxii"
)

// Refresher abstracts the orchestrator for the facade (and its tests).
type Refresher interface {
	RefreshAll(ctx context.Context) (refresh.Summary, error)
	LookupIndicator(ctx context.Context, objectID string) (stix.Indicator, bool)
}

// Options configures the facade server.
type Options struct {
	// Bind address, e.g. "127.0.0.1:8080"
	Bind    string
	Logger  *log.Logger
	History *store.Store // optional; /api/history answers 404 without it
}

// Server is the HTTP facade over the feed and indicator stores.
type Server struct {
	srv        *http.Server
	feeds      *feed.Store
	indicators *feed.IndicatorStore
	refresher  Refresher
	history    *store.Store
	logger     *log.Logger
	started    int32
}

// NewServer wires the facade routes.
func NewServer(feeds *feed.Store, indicators *feed.IndicatorStore, refresher Refresher, opts Options) *Server {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8080"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[web] ", log.LstdFlags)
	}

	s := &Server{
		feeds:      feeds,
		indicators: indicators,
		refresher:  refresher,
		history:    opts.History,
		logger:     logger,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.instrument("health", s.handleHealth)).Methods("GET")
	api.HandleFunc("/feeds", s.instrument("feeds_list", s.handleListFeeds)).Methods("GET")
	api.HandleFunc("/feeds", s.instrument("feeds_add", s.handleAddFeed)).Methods("POST")
	api.HandleFunc("/feeds/{ref}", s.instrument("feeds_delete", s.handleDeleteFeed)).Methods("DELETE")
	api.HandleFunc("/refresh", s.instrument("refresh", s.handleRefresh)).Methods("POST")
	api.HandleFunc("/indicators", s.instrument("indicators", s.handleListIndicators)).Methods("GET")
	api.HandleFunc("/indicators/{id}", s.instrument("indicator_detail", s.handleIndicatorDetail)).Methods("GET")
	api.HandleFunc("/search", s.instrument("search", s.handleSearch)).Methods("GET")
	api.HandleFunc("/discover/roots", s.instrument("discover_roots", s.handleDiscoverRoots)).Methods("POST")
	api.HandleFunc("/discover/collections", s.instrument("discover_collections", s.handleDiscoverCollections)).Methods("POST")
	api.HandleFunc("/history", s.instrument("history", s.handleHistory)).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.srv = &http.Server{
		Addr:         opts.Bind,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // refresh rounds can take a while
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start starts the server concurrently and attaches to ctx for shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("web server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Printf("HTTP facade listening on http://%s", s.srv.Addr)

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
	}()
	return nil
}

// apiResponse is the uniform JSON envelope of the facade.
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests per route and status.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)},
	})
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.feeds.List()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
		return
	}
	if feeds == nil {
		feeds = []feed.Feed{}
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: feeds})
}

type addFeedRequest struct {
	Name            string `json:"name"`
	APIRootURL      string `json:"api_root_url"`
	CollectionTitle string `json:"collection_title"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req addFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid JSON"})
		return
	}
	if req.APIRootURL == "" || req.CollectionTitle == "" {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Error: "api_root_url and collection_title are required"})
		return
	}

	f := feed.New(req.Name, req.APIRootURL, req.CollectionTitle, req.Username, req.Password)
	if err := s.feeds.Add(f); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, apiResponse{Success: true, Data: f})
}

// handleDeleteFeed accepts either a positional index (legacy behavior) or a
// feed id.
func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]

	if index, err := strconv.Atoi(ref); err == nil {
		if err := s.feeds.DeleteAt(index); err != nil {
			s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
		return
	}

	found, err := s.feeds.DeleteByID(ref)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, apiResponse{Error: "feed not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	summary, err := s.refresher.RefreshAll(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
		return
	}

	refreshTotal.Inc()
	indicatorsFetched.Set(float64(summary.Total))
	feedErrorsTotal.Add(float64(len(summary.Errors)))

	count := summary.Total
	s.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Count:   &count,
		Errors:  summary.Errors,
	})
}

func (s *Server) handleListIndicators(w http.ResponseWriter, r *http.Request) {
	indicators, err := s.indicators.List()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
		return
	}
	if indicators == nil {
		indicators = []stix.Indicator{}
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: indicators})
}

// handleSearch filters the stored indicators by free-text query and type.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("q"))
	typeFilter := strings.ToLower(r.URL.Query().Get("type"))

	indicators, err := s.indicators.List()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
		return
	}

	filtered := make([]stix.Indicator, 0, len(indicators))
	for _, ind := range indicators {
		matchesQuery := query == "" ||
			strings.Contains(strings.ToLower(ind.Value), query) ||
			strings.Contains(strings.ToLower(ind.Description), query) ||
			strings.Contains(strings.ToLower(ind.Type), query)
		matchesType := typeFilter == "" || strings.Contains(strings.ToLower(ind.Type), typeFilter)
		if matchesQuery && matchesType {
			filtered = append(filtered, ind)
		}
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: filtered})
}

func (s *Server) handleIndicatorDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ind, found := s.refresher.LookupIndicator(r.Context(), id)
	if !found {
		s.writeJSON(w, http.StatusNotFound, apiResponse{Error: "indicator not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: ind})
}

type discoverRequest struct {
	ServerURL  string `json:"server_url"`
	APIRootURL string `json:"api_root_url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (s *Server) handleDiscoverRoots(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid JSON"})
		return
	}
	if req.ServerURL == "" {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Error: "server_url is required"})
		return
	}

	roots, err := taxii.DiscoverAPIRoots(r.Context(), req.ServerURL, req.Username, req.Password, s.logger)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, apiResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: roots})
}

func (s *Server) handleDiscoverCollections(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid JSON"})
		return
	}
	if req.APIRootURL == "" {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Error: "api_root_url is required"})
		return
	}

	client := taxii.NewClient(taxii.Config{
		APIRootURL: req.APIRootURL,
		Username:   req.Username,
		Password:   req.Password,
		Logger:     s.logger,
	})
	collections, err := client.Collections(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, apiResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: collections})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusNotFound, apiResponse{Error: "history store not configured"})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Error: err.Error()})
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: runs})
}
