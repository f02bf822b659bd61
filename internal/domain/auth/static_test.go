package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type mockTokenStore struct {
	tokens []*StaticToken
}

func (m *mockTokenStore) ListTokens(context.Context) ([]*StaticToken, error) {
	return m.tokens, nil
}

var _ TokenStore = (*mockTokenStore)(nil)

func TestStaticProvider_Authenticate(t *testing.T) {
	rawToken := "test-token-12345"
	argonHash, err := HashKeyArgon2id(rawToken)
	if err != nil {
		t.Fatalf("HashKeyArgon2id() error = %v", err)
	}

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name     string
		tokens   []*StaticToken
		raw      string
		wantErr  bool
		wantRole string
	}{
		{
			name: "valid token",
			tokens: []*StaticToken{
				{Hash: argonHash, Subject: "user-1", Roles: []string{"admin"}},
			},
			raw:      rawToken,
			wantRole: "admin",
		},
		{
			name: "unknown token",
			tokens: []*StaticToken{
				{Hash: argonHash, Subject: "user-1", Roles: []string{"admin"}},
			},
			raw:     "wrong-token",
			wantErr: true,
		},
		{
			name: "revoked token",
			tokens: []*StaticToken{
				{Hash: argonHash, Subject: "user-1", Revoked: true},
			},
			raw:     rawToken,
			wantErr: true,
		},
		{
			name: "expired token",
			tokens: []*StaticToken{
				{Hash: argonHash, Subject: "user-1", ExpiresAt: &past},
			},
			raw:     rawToken,
			wantErr: true,
		},
		{
			name: "not yet expired",
			tokens: []*StaticToken{
				{Hash: argonHash, Subject: "user-1", ExpiresAt: &future, Roles: []string{"user"}},
			},
			raw:      rawToken,
			wantRole: "user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewStaticProvider(&mockTokenStore{tokens: tt.tokens})
			id, err := p.Authenticate(context.Background(), tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("Authenticate() error = %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() unexpected error: %v", err)
			}
			if !id.HasRole(tt.wantRole) {
				t.Errorf("Authenticate() roles = %v, want role %q", id.Roles, tt.wantRole)
			}
		})
	}
}

func TestHashKey(t *testing.T) {
	rawKey := "my-secret-key"
	hash := HashKey(rawKey)
	if len(hash) != 64 {
		t.Errorf("HashKey() length = %d, want 64", len(hash))
	}
	if hash != HashKey(rawKey) {
		t.Error("HashKey() not deterministic")
	}
	if hash == HashKey("different-key") {
		t.Error("HashKey() collided for different input")
	}
}

func TestHashKeyArgon2id(t *testing.T) {
	rawKey := "test-token-secure-12345"

	hash, err := HashKeyArgon2id(rawKey)
	if err != nil {
		t.Fatalf("HashKeyArgon2id() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("HashKeyArgon2id() = %q, want prefix $argon2id$", hash)
	}

	hash2, err := HashKeyArgon2id(rawKey)
	if err != nil {
		t.Fatalf("HashKeyArgon2id() second call error = %v", err)
	}
	if hash == hash2 {
		t.Error("HashKeyArgon2id() produced identical hashes - should use random salt")
	}
}

func TestDetectHashType(t *testing.T) {
	tests := []struct {
		name     string
		hash     string
		wantType string
	}{
		{"argon2id PHC format", "$argon2id$v=19$m=47104,t=1,p=1$abc123$xyz789", "argon2id"},
		{"sha256 prefixed", "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", "sha256"},
		{"legacy bare SHA-256 hex (64 chars)", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", "sha256"},
		{"unknown format - too short", "abc123", "unknown"},
		{"unknown format - wrong prefix", "$bcrypt$abc123", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectHashType(tt.hash)
			if got != tt.wantType {
				t.Errorf("DetectHashType(%q) = %q, want %q", tt.hash, got, tt.wantType)
			}
		})
	}
}

func TestVerifyKey(t *testing.T) {
	rawKey := "test-token-verify-12345"

	argon2Hash, err := HashKeyArgon2id(rawKey)
	if err != nil {
		t.Fatalf("HashKeyArgon2id() setup error = %v", err)
	}

	sha256Hash := HashKey(rawKey)
	sha256Prefixed := "sha256:" + HashKey(rawKey)

	tests := []struct {
		name       string
		rawKey     string
		storedHash string
		wantMatch  bool
		wantErr    error
	}{
		{"argon2id hash - correct key", rawKey, argon2Hash, true, nil},
		{"argon2id hash - wrong key", "wrong-key", argon2Hash, false, nil},
		{"sha256 prefixed - correct key", rawKey, sha256Prefixed, true, nil},
		{"sha256 prefixed - wrong key", "wrong-key", sha256Prefixed, false, nil},
		{"legacy bare sha256 - correct key", rawKey, sha256Hash, true, nil},
		{"legacy bare sha256 - wrong key", "wrong-key", sha256Hash, false, nil},
		{"unknown hash type returns error", rawKey, "invalid-hash-format", false, ErrUnknownHashType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := VerifyKey(tt.rawKey, tt.storedHash)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("VerifyKey() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("VerifyKey() unexpected error = %v", err)
				return
			}
			if match != tt.wantMatch {
				t.Errorf("VerifyKey() = %v, want %v", match, tt.wantMatch)
			}
		})
	}
}

func TestVerifyKey_ConstantTimeComparison(t *testing.T) {
	rawKey := "test-constant-time-key"
	sha256Hash := HashKey(rawKey)

	for _, wrong := range []string{"test-constant-time-xyz", "completely-different-key-here"} {
		match, err := VerifyKey(wrong, sha256Hash)
		if err != nil {
			t.Errorf("VerifyKey() error = %v", err)
		}
		if match {
			t.Error("VerifyKey() should return false for wrong key")
		}
	}
}
