package auth

import (
	"errors"
	"testing"

	"github.com/rickgao/phone-relay/internal/peer"
)

func TestGate_VerifyStrict(t *testing.T) {
	g := NewGate(true, "pass", "termux456")

	tests := []struct {
		name       string
		clientType string
		credential string
		wantRole   peer.Role
		wantErr    error
	}{
		{"website ok", "website", "pass", peer.RoleController, nil},
		{"termux ok", "termux", "termux456", peer.RoleSource, nil},
		{"website wrong", "website", "nope", peer.RoleUnknown, ErrInvalidCredential},
		{"termux empty", "termux", "", peer.RoleUnknown, ErrInvalidCredential},
		{"website with termux secret", "website", "termux456", peer.RoleUnknown, ErrInvalidCredential},
		{"termux with website secret", "termux", "pass", peer.RoleUnknown, ErrInvalidCredential},
		{"unknown client type", "admin", "pass", peer.RoleUnknown, ErrUnknownClientType},
		{"missing client type", "", "pass", peer.RoleUnknown, ErrUnknownClientType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := g.Verify(tt.clientType, tt.credential)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Verify() unexpected error: %v", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
			if role != tt.wantRole {
				t.Errorf("Verify() role = %q, want %q", role, tt.wantRole)
			}
		})
	}
}

func TestGate_VerifyStrictEmptySecret(t *testing.T) {
	g := NewGate(true, "", "termux456")

	if _, err := g.Verify("website", ""); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("empty secret must never validate, got %v", err)
	}
}

func TestGate_VerifyPermissive(t *testing.T) {
	g := NewGate(false, "", "")

	if g.Strict() {
		t.Error("Strict() = true, want false")
	}

	role, err := g.Verify("termux", "anything")
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if role != peer.RoleSource {
		t.Errorf("role = %q, want %q", role, peer.RoleSource)
	}

	if _, err := g.Verify("robot", ""); !errors.Is(err, ErrUnknownClientType) {
		t.Errorf("error = %v, want ErrUnknownClientType", err)
	}
}

func TestGate_VerifyHashedSecret(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if !IsHashed(hash) {
		t.Fatalf("IsHashed(%q) = false", hash)
	}

	g := NewGate(true, hash, "termux456")

	if _, err := g.Verify("website", "s3cret"); err != nil {
		t.Errorf("hashed secret should validate: %v", err)
	}
	if _, err := g.Verify("website", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("error = %v, want ErrInvalidCredential", err)
	}
	if _, err := g.Verify("website", hash); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("the hash itself must not validate, got %v", err)
	}
}

func TestHashSecret_Empty(t *testing.T) {
	if _, err := HashSecret(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestIsHashed(t *testing.T) {
	tests := map[string]bool{
		"$2a$10$abcdefghijklmnopqrstuv": true,
		"$2b$12$abcdefghijklmnopqrstuv": true,
		"$2y$10$abcdefghijklmnopqrstuv": true,
		"termux456":                     false,
		"":                              false,
	}

	for secret, want := range tests {
		if got := IsHashed(secret); got != want {
			t.Errorf("IsHashed(%q) = %v, want %v", secret, got, want)
		}
	}
}
