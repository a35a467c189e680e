// Package api exposes HTTP handlers for the agenda service.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"example.com/agenda/internal/auth"
	"example.com/agenda/internal/domain"
	"example.com/agenda/internal/identity"
)

// Handler coordinates HTTP requests with the domain and identity services.
type Handler struct {
	service  *domain.Service
	identity *identity.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, ident *identity.Service) *Handler {
	return &Handler{service: service, identity: ident}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/stream", h.streamActivities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/auth/signup", h.signUp)
	mux.HandleFunc("/v1/auth/signin", h.signIn)
	mux.HandleFunc("/v1/auth/signin/federated", h.signInFederated)
	mux.HandleFunc("/v1/auth/signout", h.signOut)
	mux.HandleFunc("/v1/auth/refresh", h.refresh)
	mux.HandleFunc("/v1/auth/password-reset", h.requestPasswordReset)
	mux.HandleFunc("/v1/auth/password-reset/confirm", h.confirmPasswordReset)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getActivity(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		h.deleteActivity(w, r, id)
	case sub == "completion" && r.Method == http.MethodPatch:
		h.setCompletion(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activity, err := h.service.Create(r.Context(), domain.CreateActivityInput{
		OwnerID:  claims.Subject,
		Text:     req.Text,
		Comment:  req.Comment,
		Priority: domain.Priority(req.Priority),
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	activities, err := h.service.ListForOwner(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	activity, err := h.service.Get(r.Context(), claims.Subject, id)
	if err != nil {
		// Resource fetches are the one place an unknown id surfaces as 404;
		// mutations ride the generic failure path instead.
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) setCompletion(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req SetCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.IsCompleted == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "is_completed is required")
		return
	}

	activity, err := h.service.SetCompletion(r.Context(), claims.Subject, id, *req.IsCompleted)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), claims.Subject, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrSchedulingConflict):
		writeError(w, http.StatusConflict, "scheduling_conflict", "time window overlaps an existing activity")
	case errors.Is(err, domain.ErrOwnerMissing):
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
	default:
		// Store-level failures, unknown-id mutations included, surface as
		// one generic message; the cause stays in the server logs.
		log.Printf("api: request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "request could not be completed")
	}
}

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	Text     string     `json:"text"`
	Comment  string     `json:"comment,omitempty"`
	Priority string     `json:"priority,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// Validate ensures request correctness before the domain layer runs its own
// checks.
func (r CreateActivityRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("text is required")
	}
	if r.Priority != "" && !domain.Priority(r.Priority).Valid() {
		return errors.New("priority must be high, medium, or low")
	}
	if (r.StartsAt == nil) != (r.EndsAt == nil) {
		return errors.New("starts_at and ends_at must be provided together")
	}
	if r.StartsAt != nil && !r.StartsAt.Before(*r.EndsAt) {
		return errors.New("starts_at must be before ends_at")
	}
	return nil
}

// SetCompletionRequest is the payload for PATCH completion. A pointer
// distinguishes a missing field from an explicit false.
type SetCompletionRequest struct {
	IsCompleted *bool `json:"is_completed"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID  string     `json:"activity_id"`
	Text        string     `json:"text"`
	IsCompleted bool       `json:"is_completed"`
	CreatedAt   time.Time  `json:"created_at"`
	Comment     string     `json:"comment,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListActivitiesResponse packages list results in creation order, newest
// first.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:  activity.ID,
		Text:        activity.Text,
		IsCompleted: activity.IsCompleted,
		CreatedAt:   activity.CreatedAt,
		Comment:     activity.Comment,
		Priority:    string(activity.Priority),
		StartsAt:    activity.StartsAt,
		EndsAt:      activity.EndsAt,
		CompletedAt: activity.CompletedAt,
	}
}
