// Package httpapi exposes workout history and trainer notifications over HTTP.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/service"
	"github.com/glebk/treino-bot/internal/tracker"
)

// NewRouter builds the API. Every route except /healthz requires the bearer token.
func NewRouter(svc *service.WorkoutService, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(token))

		r.Get("/students/{id}/sessions", listSessions(svc))
		r.Get("/students/{id}/status", getStatus(svc))
		r.Get("/students/{id}/days", listDays(svc))
		r.Post("/students/{id}/days", addDay(svc))
		r.Get("/trainers/{id}/notifications", listNotifications(svc))
		r.Post("/notifications/{id}/read", markRead(svc))
	})

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func listSessions(svc *service.WorkoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			respondError(w, "invalid student id", http.StatusBadRequest)
			return
		}

		statuses, err := parseStatuses(r.URL.Query().Get("status"))
		if err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}

		sessions, err := svc.ListSessions(r.Context(), id, statuses...)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if sessions == nil {
			sessions = []*domain.WorkoutSession{}
		}

		respondJSON(w, sessions, http.StatusOK)
	}
}

func getStatus(svc *service.WorkoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			respondError(w, "invalid student id", http.StatusBadRequest)
			return
		}

		result := svc.Activate(r.Context(), id)
		state := svc.Status(id)

		status := struct {
			Started   []int  `json:"started_days"`
			Stale     bool   `json:"stale"`
			Active    bool   `json:"active"`
			SessionID string `json:"session_id,omitempty"`
			DayIndex  int    `json:"day_index,omitempty"`
			Elapsed   int    `json:"elapsed_seconds"`
			Paused    bool   `json:"paused"`
			Display   string `json:"elapsed"`
		}{
			Started:   result.Started,
			Stale:     result.Stale,
			Active:    state.Active,
			SessionID: state.SessionID,
			DayIndex:  state.DayIndex,
			Elapsed:   state.Elapsed,
			Paused:    state.Paused,
			Display:   tracker.FormatDuration(state.Elapsed),
		}
		if status.Started == nil {
			status.Started = []int{}
		}

		respondJSON(w, status, http.StatusOK)
	}
}

func listDays(svc *service.WorkoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			respondError(w, "invalid student id", http.StatusBadRequest)
			return
		}

		days, err := svc.ListDays(r.Context(), id)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if days == nil {
			days = []*domain.WorkoutDay{}
		}

		respondJSON(w, days, http.StatusOK)
	}
}

func addDay(svc *service.WorkoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			respondError(w, "invalid student id", http.StatusBadRequest)
			return
		}

		var req struct {
			TrainerID int64  `json:"trainer_id"`
			DayIndex  int    `json:"day_index"`
			Name      string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		day, err := svc.AddWorkoutDay(r.Context(), id, req.TrainerID, req.DayIndex, req.Name)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		respondJSON(w, day, http.StatusCreated)
	}
}

func listNotifications(svc *service.WorkoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			respondError(w, "invalid trainer id", http.StatusBadRequest)
			return
		}

		unreadOnly := r.URL.Query().Get("unread") == "true"

		list, err := svc.ListNotifications(r.Context(), id, unreadOnly)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if list == nil {
			list = []*domain.Notification{}
		}

		respondJSON(w, list, http.StatusOK)
	}
}

func markRead(svc *service.WorkoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := svc.MarkNotificationRead(r.Context(), id); err != nil {
			respondServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// parseStatuses reads a comma separated status filter
func parseStatuses(raw string) ([]domain.SessionStatus, error) {
	if raw == "" {
		return nil, nil
	}

	var statuses []domain.SessionStatus
	for _, part := range strings.Split(raw, ",") {
		s := domain.SessionStatus(strings.TrimSpace(part))
		if !s.Valid() {
			return nil, errors.New("unknown status " + string(s))
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, domain.ErrNotificationNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidDay):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNoTrainer), errors.Is(err, service.ErrNotYourStudent):
		respondError(w, err.Error(), http.StatusForbidden)
	default:
		log.Printf("Error handling API request: %v", err)
		respondError(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
