package auth

import (
	"testing"
	"time"
)

func TestSignLocalRoundTrip(t *testing.T) {
	secret := []byte("local-secret")
	token, err := SignLocal(secret, "user-7", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	uid, err := New(Options{SharedSecret: secret}).UserIDFromToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uid != "user-7" {
		t.Fatalf("expected user-7, got %s", uid)
	}
}

func TestSignLocalRequiresSecret(t *testing.T) {
	if _, err := SignLocal(nil, "user-7", time.Hour); err == nil {
		t.Fatalf("expected error without a secret")
	}
}

func TestLocalSecretPrefersSharedSecret(t *testing.T) {
	t.Setenv("LOCAL_AUTH_SHARED_SECRET", "shared")
	t.Setenv("TEST_JWT_SECRET", "test")
	if got := string(LocalSecret()); got != "shared" {
		t.Fatalf("expected shared secret, got %q", got)
	}
}
