// Package auth resolves the caller's tenant and role from bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Modes.
const (
	ModeOff  = "off"
	ModeDev  = "dev"
	ModeHMAC = "hmac"
)

// Roles.
const (
	RoleAdmin   = "admin"
	RolePlanner = "planner"
	RoleViewer  = "viewer"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

type Principal struct {
	Tenant string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanPlan reports whether the principal may change the fleet and create plans.
func (p Principal) CanPlan() bool { return p.Role == RoleAdmin || p.Role == RolePlanner }

// Verifier validates bearer tokens. In dev mode a token is "tenant:role";
// in hmac mode it is an HS256 JWT.
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string

	now func() time.Time
}

func NewVerifier(mode, secret, tenantClaim, roleClaim string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeOff
	}
	if tenantClaim == "" {
		tenantClaim = "tenant"
	}
	if roleClaim == "" {
		roleClaim = "role"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret), TenantClaim: tenantClaim, RoleClaim: roleClaim, now: time.Now}
}

// Enabled reports whether requests must carry a token.
func (v *Verifier) Enabled() bool { return v != nil && v.Mode != ModeOff }

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case ModeDev:
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" || role == "" {
			return Principal{}, fmt.Errorf("%w: expected tenant:role", ErrInvalidToken)
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	case ModeHMAC:
		return v.verifyHS256(token)
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q", v.Mode)
	}
}

func (v *Verifier) verifyHS256(token string) (Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return v.HMACSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Principal{}, ErrExpired
	case err != nil:
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	tenant, _ := claims[v.TenantClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if tenant == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.TenantClaim)
	}
	if role == "" {
		role = RoleViewer
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

// SignHS256 builds an HS256 token for claims.
func SignHS256(secret string, claims map[string]any) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString([]byte(secret))
}
