package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signToken builds a signed JWT with the backend's claim layout. The
// signature key is irrelevant because the client never verifies it.
func signToken(t *testing.T, tokenType string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": "user-123",
		"email":   "test@example.com",
		"type":    tokenType,
		"iat":     now.Unix(),
		"exp":     now.Add(expiresIn).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestDecodeClaims(t *testing.T) {
	token := signToken(t, "access", 30*time.Minute)

	claims, err := DecodeClaims(token)
	if err != nil {
		t.Fatalf("failed to decode claims: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("expected user_id=user-123, got %q", claims.UserID)
	}
	if claims.Email != "test@example.com" {
		t.Errorf("expected email=test@example.com, got %q", claims.Email)
	}
	if claims.TokenType != "access" {
		t.Errorf("expected type=access, got %q", claims.TokenType)
	}
	remaining := time.Until(claims.ExpiresAt)
	if remaining < 29*time.Minute || remaining > 31*time.Minute {
		t.Errorf("expected expiry ~30m away, got %v", remaining)
	}
}

func TestDecodeClaimsRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-a-jwt", "a.b", "a.b.c"} {
		if _, err := DecodeClaims(input); err == nil {
			t.Errorf("expected error decoding %q", input)
		}
	}
}

func TestClaimsUsable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		expiresIn time.Duration
		usable    bool
	}{
		{"plenty of lifetime", 30 * time.Minute, true},
		{"just over the margin", 61 * time.Second, true},
		{"inside the margin", 30 * time.Second, false},
		{"exactly at the margin", 60 * time.Second, false},
		{"already expired", -time.Minute, false},
	}

	for _, tt := range tests {
		claims := &Claims{ExpiresAt: now.Add(tt.expiresIn)}
		if got := claims.Usable(now); got != tt.usable {
			t.Errorf("%s: expected usable=%v, got %v", tt.name, tt.usable, got)
		}
	}
}

func TestClaimsUsableZeroExpiry(t *testing.T) {
	claims := &Claims{}
	if claims.Usable(time.Now()) {
		t.Error("token without an expiry should not be usable")
	}
	if !claims.Expired(time.Now()) {
		t.Error("token without an expiry should count as expired")
	}
}

func TestClaimsExpired(t *testing.T) {
	now := time.Now()
	if (&Claims{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Error("future expiry should not be expired")
	}
	if !(&Claims{ExpiresAt: now.Add(-time.Second)}).Expired(now) {
		t.Error("past expiry should be expired")
	}
}
