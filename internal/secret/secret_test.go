package secret_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meetingintel/server/internal/secret"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := secret.Hash("s3cr3t-client-secret")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := secret.Verify("s3cr3t-client-secret", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = secret.Verify("wrong-secret", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	first, err := secret.Hash("same-input")
	require.NoError(t, err)
	second, err := secret.Hash("same-input")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$missing-separator",
	} {
		_, err := secret.Verify("anything", encoded)
		require.Error(t, err, "encoded=%q", encoded)
	}
}
