package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestUserIDFromToken(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, secret, jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		got, err := v.UserIDFromToken(token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "user-42" {
			t.Fatalf("expected user-42, got %q", got)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, []byte("other-secret"), jwt.MapClaims{"sub": "user-42"})
		if _, err := v.UserIDFromToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, secret, jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		if _, err := v.UserIDFromToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
		if _, err := v.UserIDFromToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := v.UserIDFromToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestUserIDFromHeader(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)
	token := signToken(t, secret, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	got, err := v.UserIDFromHeader("Bearer " + token)
	if err != nil || got != "user-42" {
		t.Fatalf("expected user-42, got %q (err=%v)", got, err)
	}

	if _, err := v.UserIDFromHeader(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := v.UserIDFromHeader(token); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken without Bearer prefix, got %v", err)
	}
}
