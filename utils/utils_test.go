package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptRoundTrip(t *testing.T) {
	if err := InitializeEncryption(testKey); err != nil {
		t.Fatalf("InitializeEncryption: %v", err)
	}

	sealed, err := EncryptSensitiveData("+254700000001")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(sealed, "254700000001") {
		t.Fatalf("ciphertext leaks plaintext: %s", sealed)
	}

	again, _ := EncryptSensitiveData("+254700000001")
	if again == sealed {
		t.Error("expected a fresh nonce per encryption")
	}

	plain, err := DecryptSensitiveData(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "+254700000001" {
		t.Errorf("expected round trip, got %q", plain)
	}
}

func TestEncryptEmptyAndTampered(t *testing.T) {
	if err := InitializeEncryption(testKey); err != nil {
		t.Fatalf("InitializeEncryption: %v", err)
	}

	if s, err := EncryptSensitiveData(""); err != nil || s != "" {
		t.Errorf("expected empty passthrough, got %q, %v", s, err)
	}

	sealed, _ := EncryptSensitiveData("12 Market Street")
	tampered := []byte(sealed)
	tampered[len(tampered)-3] ^= 0x01
	if _, err := DecryptSensitiveData(string(tampered)); err == nil {
		t.Error("expected tampered ciphertext to fail")
	}

	if err := InitializeEncryption("short"); err == nil {
		t.Error("expected short key to be rejected")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	if err := InitializeJWT("test-secret-test-secret-test-secret", "idp.test", "microfin"); err != nil {
		t.Fatalf("InitializeJWT: %v", err)
	}

	token, err := GenerateToken(Claims{
		Email:            "officer@example.com",
		Roles:            []string{"officer", RoleAdmin},
		BranchID:         "branch-1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_123"},
	}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "user_123" || claims.BranchID != "branch-1" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if !claims.IsAdmin() {
		t.Error("expected admin role")
	}
}

func TestValidateTokenRejects(t *testing.T) {
	if err := InitializeJWT("test-secret-test-secret-test-secret", "idp.test", ""); err != nil {
		t.Fatalf("InitializeJWT: %v", err)
	}

	expired, _ := GenerateToken(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}, -time.Minute)
	if _, err := ValidateToken(expired); err == nil {
		t.Error("expected expired token to fail")
	}

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	signed, _ := other.SignedString([]byte("test-secret-test-secret-test-secret"))
	if _, err := ValidateToken(signed); err == nil {
		t.Error("expected wrong issuer to fail")
	}

	if _, err := GenerateToken(Claims{}, time.Hour); err == nil {
		t.Error("expected missing subject to fail")
	}
}

type sampleRequest struct {
	Name   string          `json:"name" validate:"required,min=2"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Kind   string          `json:"kind" validate:"required,oneof=FLAT REDUCING"`
	Date   string          `json:"date" validate:"omitempty,isodate"`
}

func TestFormatValidationError(t *testing.T) {
	err := ValidateStruct(sampleRequest{Name: "x", Amount: decimal.NewFromInt(-5), Kind: "BALLOON", Date: "yesterday"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	details := FormatValidationError(err)
	for _, field := range []string{"name", "amount", "kind", "date"} {
		if _, ok := details[field]; !ok {
			t.Errorf("expected details for %q, got %v", field, details)
		}
	}

	ok := sampleRequest{Name: "ok", Amount: decimal.RequireFromString("0.01"), Kind: "FLAT", Date: "2025-01-31"}
	if err := ValidateStruct(ok); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2025-03-01", "2025-03-01T10:00:00Z", "2025-03-01T10:00:00"} {
		if _, err := ParseDate(in); err != nil {
			t.Errorf("ParseDate(%q): %v", in, err)
		}
	}
	if d, err := ParseOptionalDate(" "); err != nil || d != nil {
		t.Errorf("expected nil for blank date, got %v, %v", d, err)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Unauthorized("no"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{ValidationFailed(nil), http.StatusBadRequest},
		{InvalidState("not pending", nil), http.StatusBadRequest},
		{NotFound("missing", nil), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", NotFound("missing", nil)), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	cause := errors.New("db down")
	if !errors.Is(Internal("failed", cause), cause) {
		t.Error("expected AppError to unwrap to its cause")
	}
}
