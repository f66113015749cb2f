package cache

import (
	"context"
	"errors"
	"testing"
)

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "events",
			expected: "baker-news:events",
		},
		{
			name:     "key with colon",
			key:      "events:posts",
			expected: "baker-news:events:posts",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "baker-news:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestCache_Disabled(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	if _, err := cache.Publish(ctx, "events", []byte("{}")); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Publish() on nil cache = %v, want ErrCacheDisabled", err)
	}
	if _, _, err := cache.Subscribe(ctx, "events"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Subscribe() on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := cache.Health(ctx); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Health() on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := cache.Close(); err != nil {
		t.Errorf("Close() on nil cache = %v, want nil", err)
	}
}
