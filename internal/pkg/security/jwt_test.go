package security

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memRevoker map[string]bool

func (m memRevoker) Revoke(ctx context.Context, signature string, ttl time.Duration) error {
	m[signature] = true
	return nil
}

func (m memRevoker) IsRevoked(ctx context.Context, signature string) (bool, error) {
	return m[signature], nil
}

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken(42, []string{"USER", "ADMIN"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 42 || !claims.HasRole("ADMIN") || claims.HasRole("AUDIT") {
		t.Fatalf("claims = %+v", claims)
	}
	if d := Remaining(claims); d <= 0 || d > jwtExpirationTime {
		t.Fatalf("Remaining = %v", d)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	token, _ := GenerateToken(1, nil)
	other, _ := GenerateToken(2, []string{"ADMIN"})
	a, b := strings.Split(token, "."), strings.Split(other, ".")
	tampered := a[0] + "." + b[1] + "." + a[2]
	if _, err := ValidateToken(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ValidateToken(tampered) err = %v", err)
	}
	if _, err := ExtractSignature("a.b"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("ExtractSignature err = %v", err)
	}
}

func TestAuthenticateHonoursRevocation(t *testing.T) {
	token, _ := GenerateToken(7, nil)
	revoker := memRevoker{}
	if _, err := Authenticate(context.Background(), token, revoker); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	sig, _ := ExtractSignature(token)
	_ = revoker.Revoke(context.Background(), sig, time.Minute)
	if _, err := Authenticate(context.Background(), token, revoker); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("Authenticate after revoke err = %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("BearerToken = %q, %v", tok, ok)
	}
	for _, h := range []string{"", "Bearer ", "Basic abc", strings.ToLower("Bearer abc")} {
		if _, ok := BearerToken(h); ok {
			t.Fatalf("BearerToken(%q) accepted", h)
		}
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err = CheckPasswordHash("s3cret!", hash); err != nil {
		t.Fatalf("CheckPasswordHash: %v", err)
	}
	if err = CheckPasswordHash("wrong", hash); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("CheckPasswordHash(wrong) err = %v", err)
	}
	if _, err = HashPassword(""); err == nil {
		t.Fatal("HashPassword accepted empty password")
	}
}
