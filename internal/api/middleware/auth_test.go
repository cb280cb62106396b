package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticatorRoundTrip(t *testing.T) {
	a := NewAuthenticator("secret", time.Hour)
	tok, expires, err := a.Issue("admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
}

func TestAuthenticatorRejects(t *testing.T) {
	a := NewAuthenticator("secret", time.Minute)
	tok, _, err := a.Issue("admin")
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		_, err := NewAuthenticator("other", time.Minute).Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewAuthenticator("secret", time.Minute)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := a.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
}
