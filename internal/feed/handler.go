package feed

import (
	"context"
	"errors"

	"example.com/agenda/internal/consumer"
)

// Handler adapts the Kafka change-event stream to hub notifications.
type Handler struct {
	hub *Hub
}

// NewHandler constructs a Handler that notifies the given hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Handle notifies the hub that the owner's list changed. The payload itself
// is not inspected: every delivery is a fresh snapshot query.
func (h *Handler) Handle(_ context.Context, msg consumer.Message) error {
	if msg.OwnerID == "" {
		return errors.New("change event missing owner_id header")
	}
	h.hub.Notify(msg.OwnerID)
	return nil
}
