package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(env map[string]string) *Store {
	s := NewStore(keyring.NewArrayKeyring(nil))
	s.getenv = func(k string) string { return env[k] }
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestStore(nil)

	tok, err := s.Token("officer_smith")
	require.NoError(t, err)
	assert.Empty(t, tok, "missing token is not an error")

	require.NoError(t, s.SetToken("officer_smith", "secret"))
	tok, err = s.Token("officer_smith")
	require.NoError(t, err)
	assert.Equal(t, "secret", tok)

	require.NoError(t, s.DeleteToken("officer_smith"))
	require.NoError(t, s.DeleteToken("officer_smith"))
	tok, err = s.Token("officer_smith")
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestEnvTokenWins(t *testing.T) {
	s := newTestStore(map[string]string{TokenEnv: " from-env "})
	require.NoError(t, s.SetToken("u1", "from-ring"))

	tok, err := s.Token("u1")
	require.NoError(t, err)
	assert.Equal(t, "from-env", tok)
}

func TestTokenKey(t *testing.T) {
	assert.Equal(t, "checkin-token-u1", TokenKey("u1"))
}
