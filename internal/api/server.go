// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package api exposes the HTTP surface: recommendations, run triggers,
// health, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cratedig/internal/candidates"
	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/logging"
	"github.com/tomtom215/cratedig/internal/metrics"
	"github.com/tomtom215/cratedig/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultRecommendationLimit = 100

// Reader is the slice of the store the API reads from.
type Reader interface {
	ConsolidatedForUser(ctx context.Context, userID string, limit int) ([]store.ConsolidatedRow, error)
	Users(ctx context.Context) ([]string, error)
}

// Runner triggers candidate generation runs.
type Runner interface {
	RunUser(ctx context.Context, userID string) (*candidates.RunSummary, error)
}

// Server holds the API dependencies and builds the router.
type Server struct {
	reader     Reader
	runner     Runner
	cfg        config.ServerConfig
	runTimeout time.Duration
	log        zerolog.Logger
}

func NewServer(reader Reader, runner Runner, cfg config.ServerConfig, runTimeout time.Duration) *Server {
	return &Server{
		reader:     reader,
		runner:     runner,
		cfg:        cfg,
		runTimeout: runTimeout,
		log:        logging.With("component", "api"),
	}
}

// Router assembles the chi router with the standard middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimitRequests > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
	}
	r.Use(requestMetrics)

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/users", s.handleUsers)
	r.Get("/api/v1/users/{user}/recommendations", s.handleRecommendations)
	r.Post("/api/v1/users/{user}/runs", s.handleTriggerRun)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// recommendation is the JSON shape of one ranked candidate.
type recommendation struct {
	Rank       int      `json:"rank"`
	TrackKey   string   `json:"track_key"`
	TrackName  string   `json:"track_name"`
	ArtistName string   `json:"artist_name"`
	FinalScore float64  `json:"final_score"`
	Sources    []string `json:"sources"`
	RunID      string   `json:"run_id"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	limit := defaultRecommendationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := s.reader.ConsolidatedForUser(r.Context(), user, limit)
	if err != nil {
		s.log.Error().Err(err).Str("user", user).Msg("Reading recommendations failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// An unknown or not-yet-generated user gets an empty list, not 404.
	out := make([]recommendation, 0, len(rows))
	for _, row := range rows {
		rec := recommendation{
			Rank:       row.Rank,
			TrackKey:   row.TrackKey,
			TrackName:  row.TrackName,
			ArtistName: row.ArtistName,
			FinalScore: row.FinalScore,
			Sources:    []string{},
			RunID:      row.RunID,
		}
		if row.FromSimilarArtist {
			rec.Sources = append(rec.Sources, string(candidates.SourceSimilarArtist))
		}
		if row.FromSimilarTag {
			rec.Sources = append(rec.Sources, string(candidates.SourceSimilarTag))
		}
		if row.FromDeepCut {
			rec.Sources = append(rec.Sources, string(candidates.SourceDeepCut))
		}
		if row.FromOldFavorite {
			rec.Sources = append(rec.Sources, string(candidates.SourceOldFavorite))
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	// The run outlives the request; it gets its own deadline.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()
		if _, err := s.runner.RunUser(ctx, user); err != nil {
			s.log.Error().Err(err).Str("user", user).Msg("Triggered run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"user_id": user,
		"status":  "accepted",
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.reader.Users(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Listing users failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestMetrics records one counter increment per request, labeled by the
// chi route pattern so path parameters don't explode the cardinality.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.
			WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).
			Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Encoding response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
