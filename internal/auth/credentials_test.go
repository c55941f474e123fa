package auth

import (
	"regexp"
	"testing"
)

// TestNewSessionCredentialsFormat verifies session ID and PIN formats.
func TestNewSessionCredentialsFormat(t *testing.T) {
	creds, pin, err := NewSessionCredentials()
	if err != nil {
		t.Fatalf("NewSessionCredentials failed: %v", err)
	}

	if !regexp.MustCompile(`^[A-Z0-9]{8}$`).MatchString(creds.SessionID) {
		t.Errorf("session ID %q is not 8 uppercase alphanumeric characters", creds.SessionID)
	}
	if !regexp.MustCompile(`^[0-9]{6}$`).MatchString(pin) {
		t.Errorf("PIN %q is not 6 decimal digits", pin)
	}
}

// TestCredentialsUnique verifies consecutive generations differ.
// A collision across a handful of draws would indicate a broken source.
func TestCredentialsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 8; i++ {
		creds, _, err := NewSessionCredentials()
		if err != nil {
			t.Fatalf("NewSessionCredentials failed: %v", err)
		}
		if seen[creds.SessionID] {
			t.Fatalf("duplicate session ID %q", creds.SessionID)
		}
		seen[creds.SessionID] = true
	}
}

// TestMatches verifies credential comparison including case-insensitivity.
func TestMatches(t *testing.T) {
	creds, pin, err := NewSessionCredentials()
	if err != nil {
		t.Fatalf("NewSessionCredentials failed: %v", err)
	}

	tests := []struct {
		name      string
		sessionID string
		pin       string
		want      bool
	}{
		{"exact match", creds.SessionID, pin, true},
		{"lowercase session id", lower(creds.SessionID), pin, true},
		{"wrong pin", creds.SessionID, "999999", pin == "999999"},
		{"wrong session id", "ZZZZZZZZ", pin, creds.SessionID == "ZZZZZZZZ"},
		{"empty pin", creds.SessionID, "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := creds.Matches(tt.sessionID, tt.pin); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.sessionID, tt.pin, got, tt.want)
			}
		})
	}
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}
