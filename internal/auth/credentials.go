// Package auth provides session credential generation and brute-force
// protection for the companion remote host.
//
// A hosting period is identified by an 8-character session ID and protected
// by a 6-digit PIN, both generated from a cryptographically secure source.
// The PIN is never kept in comparable form: it is bcrypt-hashed at creation
// and verified with a timing-safe comparison.
package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/companion-remote/companion/internal/protocol"
)

// sessionIDLength is the number of characters in a session ID.
const sessionIDLength = 8

// pinLength is the number of digits in a session PIN.
const pinLength = 6

// sessionIDAlphabet is the character set for session IDs.
// Uppercase alphanumeric keeps the ID easy to read out loud.
const sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SessionCredentials holds the identity of one hosting period.
// The plaintext PIN is returned once at creation for display to the user;
// only its bcrypt hash is retained for verification.
type SessionCredentials struct {
	// SessionID is the canonical (uppercase) session identifier.
	SessionID string

	// pinHash is the bcrypt hash of the PIN.
	pinHash []byte
}

// NewSessionCredentials generates a fresh session ID and PIN.
// Returns the credentials and the plaintext PIN for one-time display.
func NewSessionCredentials() (*SessionCredentials, string, error) {
	id, err := randomString(sessionIDAlphabet, sessionIDLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate session id: %w", err)
	}

	pin, err := randomString("0123456789", pinLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate pin: %w", err)
	}

	// Hash the PIN for storage. bcrypt gives us a timing-safe comparison
	// and keeps the plaintext out of long-lived memory.
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash pin: %w", err)
	}

	return &SessionCredentials{
		SessionID: id,
		pinHash:   hash,
	}, pin, nil
}

// Matches reports whether the claimed session ID and PIN are correct.
// Session IDs are compared case-insensitively; the PIN comparison is
// timing-safe via bcrypt.
func (c *SessionCredentials) Matches(sessionID, pin string) bool {
	if protocol.NormalizeSessionID(sessionID) != c.SessionID {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.pinHash, []byte(pin)) == nil
}

// randomString generates a random string of the given length from the
// alphabet. Uses crypto/rand so the result is unpredictable.
func randomString(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
