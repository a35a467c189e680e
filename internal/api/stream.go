package api

import (
	"encoding/json"
	"net/http"
	"time"

	"example.com/agenda/internal/auth"
	"example.com/agenda/internal/domain"
)

const streamHeartbeat = 25 * time.Second

// streamActivities serves GET /v1/activities/stream as a server-sent event
// stream. Each delivery is a full snapshot of the owner's activities; the
// client replaces its local state wholesale on every event.
func (h *Handler) streamActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming unsupported")
		return
	}

	// Buffered size one with latest-wins replacement: a slow client only
	// ever misses intermediate snapshots, never the newest.
	snapshots := make(chan []domain.Activity, 1)
	failures := make(chan error, 1)

	unsubscribe := h.service.Subscribe(claims.Subject,
		func(activities []domain.Activity) {
			for {
				select {
				case snapshots <- activities:
					return
				default:
					select {
					case <-snapshots:
					default:
					}
				}
			}
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case activities := <-snapshots:
			if !writeStreamEvent(w, flusher, "snapshot", toListResponse(activities)) {
				return
			}
		case err := <-failures:
			writeStreamEvent(w, flusher, "error", map[string]string{
				"type":   "stream_failed",
				"detail": err.Error(),
			})
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func toListResponse(activities []domain.Activity) ListActivitiesResponse {
	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	return ListActivitiesResponse{Items: items}
}
