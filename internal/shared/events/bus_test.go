package events

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var mu sync.Mutex
	got := make(map[string]int)

	record := func(name string) Handler {
		return func(ctx context.Context, event Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[name]++
			return nil
		}
	}

	bus.Subscribe("derivacion.aceptada", "exact", record("exact"))
	bus.Subscribe("derivacion.*", "wildcard", record("wildcard"))
	bus.Subscribe("caso.*", "other", record("other"))
	bus.Subscribe("*", "all", record("all"))

	if err := bus.Publish(context.Background(), NewEvent("derivacion.aceptada", "test", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if got["exact"] != 1 {
		t.Errorf("exact subscriber got %d deliveries, want 1", got["exact"])
	}
	if got["wildcard"] != 1 {
		t.Errorf("wildcard subscriber got %d deliveries, want 1", got["wildcard"])
	}
	if got["all"] != 1 {
		t.Errorf("catch-all subscriber got %d deliveries, want 1", got["all"])
	}
	if got["other"] != 0 {
		t.Errorf("non-matching subscriber got %d deliveries, want 0", got["other"])
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"caso.creado", "caso.creado", true},
		{"caso.*", "caso.creado", true},
		{"caso.*", "casos.creado", false},
		{"caso.*", "caso", false},
		{"*", "anything.at.all", true},
		{"caso.creado", "caso.cerrado", false},
	}

	for _, tt := range tests {
		if got := matches(tt.pattern, tt.eventType); got != tt.want {
			t.Errorf("matches(%q, %q) = %v, want %v", tt.pattern, tt.eventType, got, tt.want)
		}
	}
}
