package service

import (
	"strings"
	"testing"
)

func TestNormalizeRateLimit(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	t.Run("defaults when unset", func(t *testing.T) {
		max, window, err := normalizeRateLimit(nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if max != defaultRateLimitMax || window != defaultRateLimitWindow {
			t.Fatalf("unexpected defaults: max=%d window=%d", max, window)
		}
	})

	t.Run("explicit values kept", func(t *testing.T) {
		max, window, err := normalizeRateLimit(intPtr(50), intPtr(30))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if max != 50 || window != 30 {
			t.Fatalf("unexpected values: max=%d window=%d", max, window)
		}
	})

	t.Run("out of range rejected", func(t *testing.T) {
		if _, _, err := normalizeRateLimit(intPtr(0), nil); err == nil {
			t.Fatal("expected zero max_requests to be rejected")
		}
		if _, _, err := normalizeRateLimit(nil, intPtr(100000)); err == nil {
			t.Fatal("expected oversized window_seconds to be rejected")
		}
	})
}

func TestGenerateAPIKeyPrefix(t *testing.T) {
	live, err := generateAPIKey("production")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(live, "sk_live_") {
		t.Fatalf("production keys must carry the live prefix: %s", live)
	}

	test, err := generateAPIKey("stage")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(test, "sk_test_") {
		t.Fatalf("stage keys must carry the test prefix: %s", test)
	}

	if live == test {
		t.Fatal("generated keys must be unique")
	}
	if len(test) != len("sk_test_")+64 {
		t.Fatalf("unexpected key length: %d", len(test))
	}
}
