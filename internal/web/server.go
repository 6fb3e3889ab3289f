package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/flipstack/internal/analytics"
	"github.com/conorfennell/flipstack/internal/charts"
	"github.com/conorfennell/flipstack/internal/decksync"
	"github.com/conorfennell/flipstack/internal/domain"
	"github.com/conorfennell/flipstack/internal/sessions"
	"github.com/conorfennell/flipstack/internal/storage"
	"github.com/conorfennell/flipstack/internal/streak"
	"github.com/conorfennell/flipstack/internal/study"
)

// Server holds the dependencies for the HTTP API.
type Server struct {
	store     *storage.Store
	scheduler *study.Scheduler
	streak    *streak.Tracker
	syncer    *decksync.Syncer
	router    *http.ServeMux
	logger    *slog.Logger
	now       func() time.Time
}

// NewServer creates and configures a new server. syncer may be nil, in which
// case POST /sync is not available.
func NewServer(store *storage.Store, scheduler *study.Scheduler, tracker *streak.Tracker, syncer *decksync.Syncer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:     store,
		scheduler: scheduler,
		streak:    tracker,
		syncer:    syncer,
		router:    http.NewServeMux(),
		logger:    logger,
		now:       time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /decks", s.handleListDecks())
	s.router.HandleFunc("POST /decks", s.handleCreateDeck())
	s.router.HandleFunc("DELETE /decks/{deck}", s.handleDeleteDeck())
	s.router.HandleFunc("POST /decks/{deck}/rename", s.handleRenameDeck())
	s.router.HandleFunc("GET /decks/{deck}/due", s.handleGetDue())
	s.router.HandleFunc("POST /decks/{deck}/grade", s.handlePostGrade())
	s.router.HandleFunc("POST /decks/{deck}/cards/{id}/unsuspend", s.handleUnsuspend())
	s.router.HandleFunc("GET /decks/{deck}/sessions", s.handleGetSessions())
	s.router.HandleFunc("GET /decks/{deck}/accuracy", s.handleGetAccuracy())
	s.router.HandleFunc("GET /decks/{deck}/summary", s.handleGetSummary())

	s.router.HandleFunc("GET /stats", s.handleGetStats())
	s.router.HandleFunc("GET /heatmap", s.handleGetHeatmap())
	s.router.HandleFunc("GET /heatmap.html", s.handleGetHeatmapChart())

	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

type deckInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Due      int    `json:"due"`
}

func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks := []deckInfo{}
		for _, id := range s.store.ListDecks() {
			decks = append(decks, deckInfo{
				ID:       id,
				Name:     storage.DisplayName(id),
				Category: s.store.DeckCategory(id),
				Due:      s.scheduler.DueCount(id),
			})
		}
		s.writeJSON(w, http.StatusOK, decks)
	}
}

func (s *Server) handleCreateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name     string `json:"name"`
			Category string `json:"category"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		deck, err := s.store.CreateDeck(body.Name, body.Category)
		switch {
		case errors.Is(err, storage.ErrInvalidDeckName):
			s.writeError(w, http.StatusBadRequest, err)
			return
		case errors.Is(err, storage.ErrDeckExists):
			s.writeError(w, http.StatusConflict, err)
			return
		case err != nil:
			s.internalError(w, "Error creating deck", err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"id": deck})
	}
}

func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		if err := s.store.DeleteDeck(deck); err != nil {
			s.internalError(w, "Error deleting deck", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRenameDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		newDeck, renamed, err := s.store.RenameDeck(deck, body.Name)
		switch {
		case errors.Is(err, storage.ErrInvalidDeckName):
			s.writeError(w, http.StatusBadRequest, err)
			return
		case err != nil:
			s.internalError(w, "Error renaming deck", err)
			return
		case !renamed:
			s.writeError(w, http.StatusConflict, storage.ErrDeckExists)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"id": newDeck})
	}
}

func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		mode, err := study.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		cards := s.scheduler.DueCards(deck, mode)
		s.writeJSON(w, http.StatusOK, map[string]any{
			"mode":       mode.String(),
			"session_id": study.NewSessionID(),
			"cards":      cards,
		})
	}
}

type gradeRequest struct {
	study.Review
	Mode string `json:"mode"`
}

func (s *Server) handlePostGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		var req gradeRequest
		if !s.decode(w, r, &req) {
			return
		}
		mode, err := study.ParseMode(req.Mode)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := s.scheduler.Submit(deck, mode, req.Review)
		switch {
		case errors.Is(err, study.ErrInvalidRating):
			s.writeError(w, http.StatusBadRequest, err)
			return
		case err != nil:
			s.internalError(w, "Error grading card", err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleUnsuspend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		found, err := s.scheduler.Unsuspend(deck, r.PathValue("id"))
		if err != nil {
			s.internalError(w, "Error unsuspending card", err)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetSessions lists the deck's sessions. A session still in progress
// on the client can be passed as live_id, live_start (RFC 3339, default
// now), live_good, live_hard and live_miss so it shows up before its reviews
// are logged.
func (s *Server) handleGetSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		out := sessions.Reconstruct(s.store.DeckHistory(deck))
		now := s.now()
		live, err := parseLive(r, now)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		out = sessions.InjectLive(out, live, now)
		if out == nil {
			out = []sessions.Session{}
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

// parseLive reads the live session from the query. Without live_start the
// session is stamped with now.
func parseLive(r *http.Request, now time.Time) (sessions.Live, error) {
	q := r.URL.Query()
	live := sessions.Live{ID: q.Get("live_id"), Start: now}
	if v := q.Get("live_start"); v != "" {
		start, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return live, errors.New("invalid live_start")
		}
		live.Start = start
	}
	for key, dst := range map[string]*int{"live_good": &live.Good, "live_hard": &live.Hard, "live_miss": &live.Miss} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return live, errors.New("invalid " + key)
		}
		*dst = n
	}
	return live, nil
}

func (s *Server) handleGetAccuracy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		days := analytics.DefaultAccuracyDays
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				s.writeError(w, http.StatusBadRequest, errors.New("invalid days"))
				return
			}
			days = n
		}
		out := analytics.DailyAccuracy(s.store.DeckHistory(deck), days)
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, ok := s.deck(w, r)
		if !ok {
			return
		}
		summary := analytics.Summarize(s.store.LoadDeck(deck), s.store.DeckHistory(deck), s.scheduler.Today())
		s.writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.streak.Current()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"streak":          stats.Streak,
			"last_study_date": stats.LastStudyDate,
			"label":           streak.FormatStreak(stats.Streak),
		})
	}
}

func (s *Server) heatmapDays(w http.ResponseWriter, r *http.Request) (int, []analytics.HeatmapDay, bool) {
	today := s.scheduler.Today()
	year := today.Year
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > domain.MaxDate.Year {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid year"))
			return 0, nil, false
		}
		year = n
	}
	return year, analytics.Heatmap(year, s.store.DayCounts(), today), true
}

func (s *Server) handleGetHeatmap() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, days, ok := s.heatmapDays(w, r); ok {
			s.writeJSON(w, http.StatusOK, days)
		}
	}
}

func (s *Server) handleGetHeatmapChart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, days, ok := s.heatmapDays(w, r)
		if !ok {
			return
		}
		total := 0
		for _, d := range days {
			total += d.Count
		}
		cfg := charts.DefaultConfig()
		cfg.Title = charts.YearTitle(year, total)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := charts.Heatmap(w, days, cfg); err != nil {
			s.logger.Error("Error rendering heatmap", "error", err)
		}
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.store.Sources())
	}
}

func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path string `json:"path"`
			Deck string `json:"deck"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		if body.Path == "" || body.Deck == "" {
			s.writeError(w, http.StatusBadRequest, errors.New("path and deck are required"))
			return
		}
		src, err := s.store.AddSource(body.Path, body.Deck)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, src)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid source id"))
			return
		}
		removed, err := s.store.RemoveSource(id)
		if err != nil {
			s.internalError(w, "Error deleting source", err)
			return
		}
		if !removed {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground so the caller gets the reports.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.syncer == nil {
			s.writeError(w, http.StatusServiceUnavailable, errors.New("sync is not configured"))
			return
		}
		reports, err := s.syncer.RunAll(r.Context())
		resp := map[string]any{"reports": reports}
		status := http.StatusOK
		if err != nil {
			s.logger.Warn("Sync finished with errors", "error", err)
			resp["error"] = err.Error()
			status = http.StatusBadGateway
		}
		s.writeJSON(w, status, resp)
	}
}

// deck resolves the {deck} path value, answering 404 for unknown decks.
func (s *Server) deck(w http.ResponseWriter, r *http.Request) (string, bool) {
	deck := r.PathValue("deck")
	if !s.store.DeckExists(deck) {
		http.NotFound(w, r)
		return "", false
	}
	return deck, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	s.writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
}
