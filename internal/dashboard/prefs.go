package dashboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Prefs stores per-user display preferences in Redis. Preferences are
// cosmetic, so a missing key simply yields the default.
type Prefs struct {
	client *redis.Client
}

// NewPrefs wires a preference store over an existing Redis client.
func NewPrefs(client *redis.Client) *Prefs {
	return &Prefs{client: client}
}

func darkModeKey(userID string) string {
	return "prefs:" + userID + ":dark_mode"
}

// DarkMode reports whether the user has dark mode enabled. Absent keys
// default to false.
func (p *Prefs) DarkMode(ctx context.Context, userID string) (bool, error) {
	value, err := p.client.Get(ctx, darkModeKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read dark mode: %w", err)
	}
	return value == "1", nil
}

// SetDarkMode persists the user's dark mode choice.
func (p *Prefs) SetDarkMode(ctx context.Context, userID string, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	if err := p.client.Set(ctx, darkModeKey(userID), value, 0).Err(); err != nil {
		return fmt.Errorf("write dark mode: %w", err)
	}
	return nil
}
