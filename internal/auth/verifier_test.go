package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevToken(t *testing.T) {
	v := NewVerifier("dev", "", "", "")
	p, err := v.Verify("t1:Admin")
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t1", Role: RoleAdmin}, p)
	assert.True(t, p.IsAdmin())

	_, err = v.Verify("nocolon")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACToken(t *testing.T) {
	v := NewVerifier("hmac", "s3cret", "", "")
	v.now = func() time.Time { return time.Unix(1000, 0) }

	tok, err := SignHS256("s3cret", map[string]any{"tenant": "acme", "role": "planner", "exp": 2000})
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "acme", p.Tenant)
	assert.True(t, p.CanPlan())
	assert.False(t, p.IsAdmin())

	forged, err := SignHS256("other", map[string]any{"tenant": "acme"})
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	old, err := SignHS256("s3cret", map[string]any{"tenant": "acme", "exp": 999})
	require.NoError(t, err)
	_, err = v.Verify(old)
	assert.ErrorIs(t, err, ErrExpired)

	anon, err := SignHS256("s3cret", map[string]any{"role": "admin"})
	require.NoError(t, err)
	_, err = v.Verify(anon)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACRejectsOtherAlgorithms(t *testing.T) {
	v := NewVerifier("hmac", "k", "", "")
	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{"tenant": "acme"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = v.Verify(hs384)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"tenant": "acme"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDefaultRoleIsViewer(t *testing.T) {
	v := NewVerifier("hmac", "k", "org", "")
	tok, err := SignHS256("k", map[string]any{"org": "o1"})
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "o1", Role: RoleViewer}, p)
	assert.False(t, p.CanPlan())
}

func TestOffMode(t *testing.T) {
	v := NewVerifier("", "", "", "")
	assert.False(t, v.Enabled())
	_, err := v.Verify("x")
	assert.Error(t, err)
	var nilV *Verifier
	assert.False(t, nilV.Enabled())
}
