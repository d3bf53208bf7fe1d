package session

import (
	"testing"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fc
}

func TestGate_LoginAndVerify(t *testing.T) {
	fakeClock(t)
	g, err := NewGate("meteoRT", "secret", time.Hour)
	require.NoError(t, err)

	s, token, err := g.Login("meteoRT")
	require.NoError(t, err)
	assert.True(t, s.Authenticated)
	assert.Equal(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), s.ExpiresAt.UTC())
	assert.NotEmpty(t, token)

	got, err := g.Verify(token)
	require.NoError(t, err)
	assert.True(t, got.Authenticated)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
}

func TestGate_WrongPassword(t *testing.T) {
	g, err := NewGate("meteoRT", "secret", time.Hour)
	require.NoError(t, err)

	s, token, err := g.Login("meteort")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, s.Authenticated)
	assert.Empty(t, token)
}

func TestGate_ExpiredToken(t *testing.T) {
	fc := fakeClock(t)
	g, err := NewGate("meteoRT", "secret", time.Hour)
	require.NoError(t, err)

	_, token, err := g.Login("meteoRT")
	require.NoError(t, err)

	fc.Advance(2 * time.Hour)
	_, err = g.Verify(token)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestGate_RejectsForeignTokens(t *testing.T) {
	g, err := NewGate("meteoRT", "secret", time.Hour)
	require.NoError(t, err)
	other, err := NewGate("meteoRT", "different", time.Hour)
	require.NoError(t, err)

	_, token, err := other.Login("meteoRT")
	require.NoError(t, err)

	_, err = g.Verify(token)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Verify("")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Verify("not.a.jwt")
	require.ErrorIs(t, err, ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: issuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = g.Verify(unsigned)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestGate_RandomSecretPerInstance(t *testing.T) {
	a, err := NewGate("pw", "", time.Hour)
	require.NoError(t, err)
	b, err := NewGate("pw", "", time.Hour)
	require.NoError(t, err)

	_, token, err := a.Login("pw")
	require.NoError(t, err)
	_, err = a.Verify(token)
	require.NoError(t, err)
	_, err = b.Verify(token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewGate_Validation(t *testing.T) {
	_, err := NewGate("", "s", time.Hour)
	require.Error(t, err)
	_, err = NewGate("pw", "s", 0)
	require.Error(t, err)
}
