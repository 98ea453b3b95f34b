package device

import (
	"errors"
	"testing"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("ops@example.com", ScopeDevicesWrite, "secret", 5)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "ops@example.com" {
		t.Errorf("Subject = %q, want ops@example.com", claims.Subject)
	}
	if claims.Scope != ScopeDevicesWrite {
		t.Errorf("Scope = %q, want %q", claims.Scope, ScopeDevicesWrite)
	}
	if claims.ID == "" {
		t.Error("token missing jti")
	}
}

func TestParseToken_Invalid(t *testing.T) {
	valid, err := GenerateToken("ops", ScopeDevicesWrite, "secret", 5)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"garbage", "not.a.token", "secret"},
		{"empty", "", "secret"},
		{"wrong secret", valid, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
