package auth

import (
	"errors"
	"testing"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	service := NewJWTService("test-secret")

	token, err := service.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := service.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("expected type %s, got %s", TokenTypeAccess, claims.Type)
	}
}

func TestGenerateAccessToken_EmptyUserID(t *testing.T) {
	service := NewJWTService("test-secret")

	if _, err := service.GenerateAccessToken(""); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

// TestValidateAccessToken_RejectsRefreshToken ensures a long-lived
// refresh token cannot be used against the API directly.
func TestValidateAccessToken_RejectsRefreshToken(t *testing.T) {
	service := NewJWTService("test-secret")

	refresh, err := service.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}

	if _, err := service.ValidateAccessToken(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for refresh token, got %v", err)
	}

	// The generic validator still accepts it.
	claims, err := service.ValidateToken(refresh)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Type != TokenTypeRefresh {
		t.Errorf("expected type %s, got %s", TokenTypeRefresh, claims.Type)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	signer := NewJWTService("secret-a")
	validator := NewJWTService("secret-b")

	token, err := signer.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	service := NewJWTService("test-secret")

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := service.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

// TestValidateToken_Rotation verifies tokens signed with the previous
// secret remain valid during a key rotation.
func TestValidateToken_Rotation(t *testing.T) {
	oldService := NewJWTService("old-secret")
	token, err := oldService.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	rotated := NewJWTServiceWithRotation("new-secret", "old-secret")
	claims, err := rotated.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("expected previous-secret token to validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}

	// Without the previous secret registered the token is rejected.
	unrotated := NewJWTService("new-secret")
	if _, err := unrotated.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken without rotation, got %v", err)
	}
}
