package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDevToken(t *testing.T) {
	v, err := NewVerifier("", nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	p, err := v.Verify("acme:Dispatcher")
	if err != nil || p.Tenant != "acme" || p.Role != "dispatcher" {
		t.Fatalf("got %+v %v", p, err)
	}
	if _, err := v.Verify("nocolon"); !errors.Is(err, ErrBadDevToken) {
		t.Fatalf("want ErrBadDevToken, got %v", err)
	}
}

func TestHMACToken(t *testing.T) {
	v, err := NewVerifier("HMAC", []byte("s3cret"), "org", "")
	if err != nil {
		t.Fatal(err)
	}
	tok := sign(t, "s3cret", jwt.MapClaims{"org": "acme", "role": "ADMIN", "exp": time.Now().Add(time.Hour).Unix()})
	p, err := v.Verify(tok)
	if err != nil || p.Tenant != "acme" || p.Role != "admin" {
		t.Fatalf("got %+v %v", p, err)
	}

	noRole := sign(t, "s3cret", jwt.MapClaims{"org": "acme"})
	if p, err := v.Verify(noRole); err != nil || p.Role != "user" {
		t.Fatalf("default role: %+v %v", p, err)
	}

	cases := map[string]string{
		"wrong key":  sign(t, "other", jwt.MapClaims{"org": "acme"}),
		"expired":    sign(t, "s3cret", jwt.MapClaims{"org": "acme", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no tenant":  sign(t, "s3cret", jwt.MapClaims{"role": "admin"}),
		"not a jwt":  "a.b",
		"dev format": "acme:admin",
	}
	for name, tok := range cases {
		if _, err := v.Verify(tok); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNewVerifierRejectsBadConfig(t *testing.T) {
	if _, err := NewVerifier("hmac", nil, "", ""); err == nil {
		t.Fatalf("hmac without secret must fail")
	}
	if _, err := NewVerifier("jwks", nil, "", ""); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("want ErrUnsupportedMode, got %v", err)
	}
}
