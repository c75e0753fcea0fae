// ABOUTME: Activity resource handlers scoped to a resolved tenant
// ABOUTME: Every query is bound to the tenant schema from the request context

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/paceline/paceline/internal/authn"
	"github.com/paceline/paceline/internal/store"
	"github.com/paceline/paceline/internal/tenant"
)

const defaultActivityLimit = 50

type activityHandler struct {
	activities store.ActivityStore
	logger     *slog.Logger
}

func newActivityHandler(activities store.ActivityStore) *activityHandler {
	return &activityHandler{
		activities: activities,
		logger:     slog.Default().With("component", "activities"),
	}
}

// activityResponse is the JSON shape of a single activity.
type activityResponse struct {
	ID        string  `json:"id"`
	Sport     string  `json:"sport"`
	Title     string  `json:"title"`
	DistanceM float64 `json:"distance_m"`
	Duration  string  `json:"duration"`
	StartedAt string  `json:"started_at"`
}

// createActivityRequest is the JSON request body for POST /t/{tenant}/activities.
type createActivityRequest struct {
	Sport     string  `json:"sport"`
	Title     string  `json:"title"`
	DistanceM float64 `json:"distance_m"`
	Duration  string  `json:"duration"`
	StartedAt string  `json:"started_at"`
}

func (h *activityHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ten := tenant.MustFromContext(r.Context())
	user := authn.UserFromContext(r.Context())

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	activities, err := h.activities.ListActivities(r.Context(), ten.Schema, user.ID, limit)
	if err != nil {
		h.logger.Error("failed to list activities", "error", err, "tenant", ten.Slug)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, activityResponse{
			ID:        a.ID,
			Sport:     a.Sport,
			Title:     a.Title,
			DistanceM: a.DistanceM,
			Duration:  a.Duration.String(),
			StartedAt: a.StartedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"activities": resp}); err != nil {
		h.logger.Debug("failed to encode response", "error", err)
	}
}

func (h *activityHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ten := tenant.MustFromContext(r.Context())
	user := authn.UserFromContext(r.Context())

	var req createActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Sport == "" {
		http.Error(w, "sport is required", http.StatusBadRequest)
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil || duration < 0 {
		http.Error(w, "invalid duration", http.StatusBadRequest)
		return
	}

	startedAt := time.Now().UTC()
	if req.StartedAt != "" {
		startedAt, err = time.Parse(time.RFC3339, req.StartedAt)
		if err != nil {
			http.Error(w, "invalid started_at", http.StatusBadRequest)
			return
		}
	}

	activity := &store.Activity{
		ID:         uuid.New().String(),
		SchemaName: ten.Schema,
		UserID:     user.ID,
		Sport:      req.Sport,
		Title:      req.Title,
		DistanceM:  req.DistanceM,
		Duration:   duration,
		StartedAt:  startedAt,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.activities.CreateActivity(r.Context(), activity); err != nil {
		h.logger.Error("failed to create activity", "error", err, "tenant", ten.Slug)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(activityResponse{
		ID:        activity.ID,
		Sport:     activity.Sport,
		Title:     activity.Title,
		DistanceM: activity.DistanceM,
		Duration:  activity.Duration.String(),
		StartedAt: activity.StartedAt.Format(time.RFC3339),
	}); err != nil {
		h.logger.Debug("failed to encode response", "error", err)
	}
}
