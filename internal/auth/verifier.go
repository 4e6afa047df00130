// Package auth verifies bearer tokens and extracts tenant/role claims.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Modes accepted by NewVerifier.
const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
)

var (
	ErrUnsupportedMode = errors.New("auth: unsupported mode")
	ErrMissingTenant   = errors.New("auth: missing tenant claim")
	ErrBadDevToken     = errors.New("auth: invalid dev token; expected tenant:role")
)

// Verifier validates tokens. In dev mode a token is the literal "tenant:role";
// in hmac mode it is an HS256 JWT signed with HMACSecret.
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string
	Leeway      time.Duration
}

type Principal struct {
	Tenant string
	Role   string
}

// NewVerifier builds a verifier; empty claim names default to "tenant" and "role".
func NewVerifier(mode string, secret []byte, tenantClaim, roleClaim string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeDev
	}
	switch mode {
	case ModeDev:
	case ModeHMAC:
		if len(secret) == 0 {
			return nil, errors.New("auth: hmac mode needs AUTH_HMAC_SECRET")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	if tenantClaim == "" {
		tenantClaim = "tenant"
	}
	if roleClaim == "" {
		roleClaim = "role"
	}
	return &Verifier{Mode: mode, HMACSecret: secret, TenantClaim: tenantClaim, RoleClaim: roleClaim, Leeway: 30 * time.Second}, nil
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == ModeDev {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" || role == "" {
			return Principal{}, ErrBadDevToken
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.Leeway))
	if err != nil {
		return Principal{}, fmt.Errorf("auth: %w", err)
	}
	tenant, _ := claims[v.TenantClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if tenant == "" {
		return Principal{}, ErrMissingTenant
	}
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}
