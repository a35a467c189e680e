package dashboard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDarkModeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	prefs := NewPrefs(client)
	ctx := context.Background()

	enabled, err := prefs.DarkMode(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enabled {
		t.Fatal("dark mode must default to off")
	}

	if err := prefs.SetDarkMode(ctx, "user-1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enabled, err = prefs.DarkMode(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Fatal("expected dark mode on")
	}

	if err := prefs.SetDarkMode(ctx, "user-1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enabled, _ = prefs.DarkMode(ctx, "user-1")
	if enabled {
		t.Fatal("expected dark mode off again")
	}
}
