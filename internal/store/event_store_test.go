package store

import (
	"strings"
	"testing"
)

func TestCanonicalNotificationID_WellFormedPassesThrough(t *testing.T) {
	tests := []string{
		"a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		"NOTIF-2024-000123",
		"simple",
	}

	for _, id := range tests {
		if got := CanonicalNotificationID(id, []byte(`{}`)); got != id {
			t.Errorf("CanonicalNotificationID(%q) = %q, want unchanged", id, got)
		}
	}
}

func TestCanonicalNotificationID_EmptyFallsBackToPayloadHash(t *testing.T) {
	payload := []byte(`{"notification_type":"DID_RENEW","tx":"abc"}`)

	got := CanonicalNotificationID("", payload)
	if got == "" {
		t.Fatal("fallback id should not be empty")
	}
	if len(got) != 64 {
		t.Errorf("fallback id should be a sha256 hex string (64 chars), got %d", len(got))
	}

	// Deterministic across retries of the same payload
	if again := CanonicalNotificationID("", payload); again != got {
		t.Errorf("fallback not deterministic: %q vs %q", got, again)
	}

	// Different payloads must not collide
	other := CanonicalNotificationID("", []byte(`{"notification_type":"DID_RENEW","tx":"def"}`))
	if other == got {
		t.Error("different payloads produced the same fallback id")
	}
}

func TestCanonicalNotificationID_MalformedIDHashed(t *testing.T) {
	payload := []byte(`{}`)

	tests := []struct {
		name string
		id   string
	}{
		{"control bytes", "notif\x00id"},
		{"newline", "notif\nid"},
		{"oversized", strings.Repeat("x", 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalNotificationID(tt.id, payload)
			if got == tt.id {
				t.Fatal("malformed id should be replaced")
			}
			if len(got) != 64 {
				t.Errorf("substitute should be a sha256 hex string, got %q", got)
			}
			if again := CanonicalNotificationID(tt.id, payload); again != got {
				t.Error("substitute id not deterministic")
			}
		})
	}
}
