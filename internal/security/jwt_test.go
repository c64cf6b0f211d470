package security

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, "pricing-service")

	token, err := m.Generate("user-1", []string{"pricing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", claims.UserID)
	}
	if claims.Issuer != "pricing-service" {
		t.Errorf("expected issuer pricing-service, got %s", claims.Issuer)
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, "pricing-service")

	token, err := m.Generate("user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, "pricing-service")
	other := NewJWTManager("other-secret", time.Hour, "pricing-service")

	token, err := m.Generate("user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTManager_Garbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, "pricing-service")

	if _, err := m.Validate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTManager_HasRole(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, "pricing-service")

	claims := &Claims{Roles: []string{"pricing"}}
	if !m.HasRole(claims, "pricing") {
		t.Error("expected role pricing to match")
	}
	if m.HasRole(claims, "accounts") {
		t.Error("unexpected role match")
	}

	// admin проходит любую проверку роли
	admin := &Claims{Roles: []string{"admin"}}
	if !m.HasRole(admin, "accounts") {
		t.Error("expected admin to match any role")
	}
}
