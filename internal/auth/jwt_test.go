package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParseState(t *testing.T) {
	state, err := SignState("user-1", "google_calendar", "secret")
	if err != nil {
		t.Fatalf("SignState: %v", err)
	}

	userID, service, err := ParseState(state, "secret")
	if err != nil {
		t.Fatalf("ParseState: %v", err)
	}
	if userID != "user-1" || service != "google_calendar" {
		t.Fatalf("got (%q, %q), want (user-1, google_calendar)", userID, service)
	}
}

func TestParseStateWrongSecret(t *testing.T) {
	state, err := SignState("user-1", "gmail", "secret")
	if err != nil {
		t.Fatalf("SignState: %v", err)
	}
	if _, _, err := ParseState(state, "other-secret"); err == nil {
		t.Fatal("expected error for tampered secret")
	}
}

func TestParseStateGarbage(t *testing.T) {
	if _, _, err := ParseState("not-a-jwt", "secret"); err == nil {
		t.Fatal("expected error for garbage state")
	}
}

func TestGenerateTokenExpiry(t *testing.T) {
	token, expiresAt, err := GenerateToken("user-1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	remaining := time.Until(expiresAt)
	if remaining < 59*time.Minute || remaining > time.Hour {
		t.Fatalf("expiry off: %v remaining", remaining)
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	if _, _, err := GenerateToken("user-1", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
