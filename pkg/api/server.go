// Package api exposes the materialization engine over HTTP: series
// upsert/delete (with synchronous regeneration), the per-occurrence
// lifecycle actions, projection-shaped listings, an SSE stream of
// lifecycle events, and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
	"github.com/cadehq/cadence/internal/core/services"
)

type Server struct {
	logger       *slog.Logger
	store        ports.Store
	prefs        ports.PreferenceSource
	materializer *services.Materializer
	regenerator  *services.RegenerationCoordinator
	lifecycle    *services.LifecycleController
	bus          *services.EventBus
}

func NewServer(
	logger *slog.Logger,
	store ports.Store,
	prefs ports.PreferenceSource,
	materializer *services.Materializer,
	regenerator *services.RegenerationCoordinator,
	lifecycle *services.LifecycleController,
	bus *services.EventBus,
) *Server {
	return &Server{
		logger:       logger,
		store:        store,
		prefs:        prefs,
		materializer: materializer,
		regenerator:  regenerator,
		lifecycle:    lifecycle,
		bus:          bus,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/events", s.handleEventsSSE)
	mux.HandleFunc("/v1/occurrences", s.handleListOccurrences)
	mux.HandleFunc("/v1/occurrences/", s.handleOccurrenceAction)
	mux.HandleFunc("/v1/series/", s.handleSeries)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSeries routes:
//
//	PUT    /v1/series/{id}
//	DELETE /v1/series/{id}
//	POST   /v1/series/{id}/materialize
//	POST   /v1/series/{id}/occurrences
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[2] == "" {
		http.Error(w, "missing series id", http.StatusBadRequest)
		return
	}
	id := domain.SeriesID(parts[2])

	switch {
	case len(parts) == 3 && r.Method == http.MethodPut:
		s.upsertSeries(w, r, id)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		s.deleteSeries(w, r, id)
	case len(parts) == 4 && parts[3] == "materialize" && r.Method == http.MethodPost:
		s.materializeSeries(w, r, id)
	case len(parts) == 4 && parts[3] == "occurrences" && r.Method == http.MethodPost:
		s.getOrCreateOccurrence(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type seriesRequest struct {
	UserID    domain.UserID         `json:"user_id"`
	Title     string                `json:"title"`
	Rule      domain.RecurrenceRule `json:"rule"`
	StartDate string                `json:"start_date"`
	EndDate   *string               `json:"end_date,omitempty"`
	TimeOfDay *domain.TimeOfDay     `json:"local_time_of_day,omitempty"`
	Active    *bool                 `json:"active,omitempty"`
}

// upsertSeries stores the series and, when the rule or its anchors
// changed, synchronously regenerates the pending occurrences so the
// caller learns whether the edit took effect. A regeneration failure
// leaves the prior occurrences untouched.
func (s *Server) upsertSeries(w http.ResponseWriter, r *http.Request, id domain.SeriesID) {
	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Rule.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		http.Error(w, "invalid start_date: "+err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	series := domain.Series{
		ID:             id,
		UserID:         req.UserID,
		Title:          req.Title,
		Rule:           req.Rule,
		StartDate:      start,
		LocalTimeOfDay: req.TimeOfDay,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			http.Error(w, "invalid end_date: "+err.Error(), http.StatusBadRequest)
			return
		}
		series.EndDate = &end
	}
	if req.Active != nil {
		series.Active = *req.Active
	}

	prev, err := s.store.GetSeries(r.Context(), id)
	isNew := errors.Is(err, domain.ErrSeriesNotFound)
	if err != nil && !isNew {
		s.internalError(w, err)
		return
	}
	if !isNew {
		series.CreatedAt = prev.CreatedAt
	}

	if err := s.store.UpsertSeries(r.Context(), series); err != nil {
		s.internalError(w, err)
		return
	}

	if isNew || series.RuleChanged(prev) {
		created, err := s.regenerator.Regenerate(r.Context(), id)
		if err != nil {
			s.logger.Error("regeneration failed", "series_id", id, "error", err)
			// Restore the prior definition so occurrences and series
			// stay consistent with each other. A brand-new series has no
			// prior definition to restore, so it is removed instead: a
			// failed create must not leave an occurrence-less series
			// behind.
			if isNew {
				if cascaded, derr := s.store.DeleteSeries(r.Context(), id); derr != nil {
					s.logger.Error("failed to remove series after failed create", "series_id", id, "error", derr)
				} else {
					s.bus.PublishDeleted(cascaded)
				}
			} else if rerr := s.store.UpsertSeries(r.Context(), prev); rerr != nil {
				s.logger.Error("failed to restore previous series definition", "series_id", id, "error", rerr)
			}
			http.Error(w, fmt.Sprintf("regeneration failed: %v", err), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"series": series, "materialized": created})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (s *Server) deleteSeries(w http.ResponseWriter, r *http.Request, id domain.SeriesID) {
	if _, err := s.store.GetSeries(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	cascaded, err := s.store.DeleteSeries(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.bus.PublishDeleted(cascaded)
	w.WriteHeader(http.StatusNoContent)
}

type materializeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) materializeSeries(w http.ResponseWriter, r *http.Request, id domain.SeriesID) {
	var req materializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	from, err := parseDate(req.From)
	if err != nil {
		http.Error(w, "invalid from: "+err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseDate(req.To)
	if err != nil {
		http.Error(w, "invalid to: "+err.Error(), http.StatusBadRequest)
		return
	}

	series, err := s.store.GetSeries(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	created, err := s.materializer.MaterializeWindow(r.Context(), series, from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

type getOrCreateRequest struct {
	Date string `json:"date"`
}

func (s *Server) getOrCreateOccurrence(w http.ResponseWriter, r *http.Request, id domain.SeriesID) {
	var req getOrCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date: "+err.Error(), http.StatusBadRequest)
		return
	}
	occ, err := s.lifecycle.GetOrCreateForDate(r.Context(), id, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

// handleOccurrenceAction routes POST /v1/occurrences/{id}/{action}.
func (s *Server) handleOccurrenceAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	id := domain.OccurrenceID(parts[2])

	var occ domain.Occurrence
	var err error
	switch parts[3] {
	case "complete":
		occ, err = s.lifecycle.Complete(r.Context(), id)
	case "uncomplete":
		occ, err = s.lifecycle.Uncomplete(r.Context(), id)
	case "skip":
		occ, err = s.lifecycle.Skip(r.Context(), id)
	case "unskip":
		occ, err = s.lifecycle.Unskip(r.Context(), id)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (s *Server) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := ports.OccurrenceQuery{
		SeriesID: domain.SeriesID(r.URL.Query().Get("series_id")),
		UserID:   domain.UserID(r.URL.Query().Get("user_id")),
		Status:   ports.StatusFilter(r.URL.Query().Get("status")),
	}
	if q.SeriesID == "" && q.UserID == "" {
		http.Error(w, "series_id or user_id required", http.StatusBadRequest)
		return
	}
	if v := r.URL.Query().Get("from"); v != "" {
		from, err := parseDate(v)
		if err != nil {
			http.Error(w, "invalid from: "+err.Error(), http.StatusBadRequest)
			return
		}
		q.From = from
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err := parseDate(v)
		if err != nil {
			http.Error(w, "invalid to: "+err.Error(), http.StatusBadRequest)
			return
		}
		q.To = to
	}

	occs, err := s.store.ListOccurrences(r.Context(), q)
	if err != nil {
		s.internalError(w, err)
		return
	}

	today := s.todayFor(r, q)
	entries := services.CalendarEntries(occs, today)
	resp := map[string]any{
		"occurrences": entries,
		"count":       len(entries),
	}
	if nearest, ok := services.NearestPending(occs, today); ok {
		resp["nearest_pending"] = nearest
	}
	writeJSON(w, http.StatusOK, resp)
}

// todayFor computes the user-local today used for overdue and
// nearest-pending shaping, so every surface agrees on what "overdue"
// means.
func (s *Server) todayFor(r *http.Request, q ports.OccurrenceQuery) time.Time {
	user := q.UserID
	if user == "" && q.SeriesID != "" {
		if series, err := s.store.GetSeries(r.Context(), q.SeriesID); err == nil {
			user = series.UserID
		}
	}
	tzID, err := s.prefs.Timezone(r.Context(), user)
	if err != nil || tzID == "" {
		return domain.DateOf(time.Now().UTC())
	}
	loc, err := time.LoadLocation(tzID)
	if err != nil {
		return domain.DateOf(time.Now().UTC())
	}
	return services.TodayIn(loc, time.Now())
}

// handleEventsSSE streams lifecycle events. ?series_id= narrows the feed;
// the default is the broadcast channel.
func (s *Server) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	key := r.URL.Query().Get("series_id")
	if key == "" {
		key = services.BroadcastChannel
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := s.bus.Subscribe(key)
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
		}
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var tzErr *domain.InvalidTimezoneError
	switch {
	case errors.Is(err, domain.ErrOccurrenceNotFound), errors.Is(err, domain.ErrSeriesNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &tzErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}
